//go:build linux

package main

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"floraseven/bus"
	"floraseven/drivers/camera"
	"floraseven/drivers/i2cdev"
	"floraseven/drivers/pumpnode"
	"floraseven/services/capture"
	"floraseven/services/config"
	"floraseven/services/hub"
	"floraseven/services/metrics"
	"floraseven/services/router"
	"floraseven/services/session"
)

func runHub(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	m := metrics.New(config.NodeHub)
	b := bus.NewBus(16)

	i2c, err := i2cdev.Open(cfg.Hub.I2CDevice)
	if err != nil {
		return err
	}
	defer i2c.Close()

	dev := pumpnode.New(i2c)
	dev.Configure(pumpnode.Config{Address: cfg.Hub.PumpAddress, SettleDelay: cfg.Hub.SettleDelay})
	act := hub.NewActuator(&dev, m, log)

	sess := session.New(newPaho(cfg), b.NewConnection("session"), session.Config{
		Retry:         session.RetryPolicy{MaxAttempts: cfg.Broker.Retry.MaxAttempts, Delay: cfg.Broker.Retry.Delay},
		Subscriptions: []string{cfg.Topics.PumpCommand(), cfg.Topics.CaptureCommand()},
	}, m, log)
	defer sess.Close()

	status := hub.NewStatus(act, sess, cfg.Topics.HubStatus(), log)

	pool, err := camera.NewPool(camera.FileSensor{Path: cfg.Hub.Camera.StillPath}, camera.Config{
		Buffers:       cfg.Hub.Camera.Buffers,
		MaxFrameBytes: cfg.Hub.Camera.MaxFrameBytes,
	})
	if err != nil {
		return err
	}
	pipe := capture.New(capture.Config{
		UploadURL:   cfg.Hub.Upload.URL,
		StatusTopic: cfg.Topics.ImageStatus(),
		Timeout:     cfg.Hub.Upload.Timeout,
	}, pool, sess, m, log)

	r := router.New(router.Topics{
		Pump:    cfg.Topics.PumpCommand(),
		Capture: cfg.Topics.CaptureCommand(),
	}, act, status, pipe, m, log)

	h := hub.New(hub.Config{
		StatusInterval:    cfg.Hub.StatusInterval,
		ReconnectInterval: cfg.Hub.ReconnectInterval,
		Drops:             m,
	}, sess, b.NewConnection("hub"), r, status, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.Run(gctx) })
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return m.Serve(gctx, cfg.Metrics.Listen) })
	}
	log.Info("hub started",
		zap.String("broker", cfg.Broker.URL),
		zap.String("i2c", cfg.Hub.I2CDevice),
		zap.String("still", cfg.Hub.Camera.StillPath))
	return g.Wait()
}

func newPaho(cfg *config.Config) *session.PahoClient {
	return session.NewPahoClient(session.PahoOptions{
		Broker:         cfg.Broker.URL,
		ClientID:       cfg.Broker.ClientID,
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		QoS:            cfg.Broker.QoS,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
	})
}
