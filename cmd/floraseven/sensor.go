//go:build linux

package main

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"floraseven/bus"
	"floraseven/drivers/i2cdev"
	"floraseven/services/config"
	"floraseven/services/metrics"
	"floraseven/services/sensornode"
	"floraseven/services/session"
)

// darkMeter stands in when the light sensor cannot be opened; every reading
// reports the cause.
type darkMeter struct{ err error }

func (d darkMeter) Lux() (float64, error) { return 0, d.err }

func runSensor(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	s := cfg.Sensor
	m := metrics.New(config.NodeSensor)
	b := bus.NewBus(8)

	sess := session.New(newPaho(cfg), b.NewConnection("session"), session.Config{
		Retry: session.RetryPolicy{MaxAttempts: cfg.Broker.Retry.MaxAttempts, Delay: cfg.Broker.Retry.Delay},
	}, m, log)
	defer sess.Close()

	var light sensornode.LightMeter
	i2c, err := i2cdev.Open(s.I2CDevice)
	if err == nil {
		defer i2c.Close()
		light, err = sensornode.NewBH1750(i2c)
	}
	if err != nil {
		log.Warn("light sensor unavailable", zap.Error(err))
		light = darkMeter{err: err}
	}

	n := sensornode.New(sensornode.Config{
		Topic:     cfg.Topics.PlantData(s.NodeID),
		Channels:  sensornode.Channels{Moisture: s.Channels.Moisture, UV: s.Channels.UV, EC: s.Channels.EC},
		Samples:   s.Samples,
		PublishEC: s.PublishEC,
		EC: sensornode.ECCalibration{
			ZeroVolts:  s.EC.ZeroVolts,
			KnownVolts: s.EC.KnownVolts,
			KnownMsCm:  s.EC.KnownMsCm,
			TempCoeff:  s.EC.TempCoeff,
		},
	}, sess, sensornode.W1Thermometer{Path: s.W1Path}, light, sensornode.IIOADC{Dir: s.ADCDir}, m, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.Schedule(gctx, s.Interval) })
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return m.Serve(gctx, cfg.Metrics.Listen) })
	}
	log.Info("sensor node started",
		zap.String("broker", cfg.Broker.URL),
		zap.String("node_id", s.NodeID),
		zap.Duration("interval", s.Interval))
	return g.Wait()
}
