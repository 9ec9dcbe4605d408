package hub

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"floraseven/types"
	"floraseven/x/mathx"
)

// errorFloor separates real readings (zero included) from error markers such
// as the node's sentinel.
const errorFloor = -0.5

// Publisher sends a payload to the broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Status builds and publishes the hub status document.
type Status struct {
	act   *Actuator
	pub   Publisher
	topic string
	log   *zap.Logger
}

func NewStatus(act *Actuator, pub Publisher, topic string, log *zap.Logger) *Status {
	if log == nil {
		log = zap.NewNop()
	}
	return &Status{act: act, pub: pub, topic: topic, log: log.Named("status")}
}

// Snapshot reads both quantities from the node. A failed read is reported as
// an error status, not returned.
func (s *Status) Snapshot() types.HubStatus {
	doc := types.HubStatus{ActuatorActive: s.act.Active()}
	doc.QuantityA, doc.SensorStatus.QuantityA = reading(s.act.Acidity())
	doc.QuantityB, doc.SensorStatus.QuantityB = reading(s.act.Ultraviolet())
	return doc
}

// PublishStatus implements router.StatusPublisher.
func (s *Status) PublishStatus(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	doc := s.Snapshot()
	payload, err := json.Marshal(doc)
	if err == nil {
		err = s.pub.Publish(s.topic, payload)
	}
	if err != nil {
		s.log.Warn("status publish failed", zap.Error(err))
		return err
	}
	s.log.Info("status published", zap.ByteString("payload", payload))
	return nil
}

func reading(v float32, err error) (*float64, string) {
	if err != nil || v < errorFloor {
		return nil, types.SensorError
	}
	r := mathx.Round(float64(v), 1)
	return &r, types.SensorActive
}
