package sensornode

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Schedule runs Cycle now and then every interval until ctx is done. A cycle
// that overruns the interval delays the next one instead of overlapping it.
func (n *Node) Schedule(ctx context.Context, every time.Duration) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() { _ = n.Cycle(ctx) }),
		gocron.WithName("sensor-cycle"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return err
	}
	s.Start()
	n.log.Info("cycle scheduled", zap.Duration("every", every))

	<-ctx.Done()
	return s.Shutdown()
}
