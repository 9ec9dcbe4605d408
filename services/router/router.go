// Package router dispatches inbound broker messages on the hub to the pump
// and capture handlers. It owns no state; every side effect goes through one of
// the three injected collaborators.
package router

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"floraseven/errcode"
	"floraseven/protocol"
	"floraseven/types"
)

// Commander sends actuator commands to the pump node.
type Commander interface {
	SendCommand(cmd protocol.Command) error
}

// StatusPublisher publishes the hub status document.
type StatusPublisher interface {
	PublishStatus(ctx context.Context) error
}

// Capturer runs one capture-and-upload. A nil Capturer fails every capture
// request with BufferUnavailable.
type Capturer interface {
	CaptureAndUpload(ctx context.Context) error
}

// Observer is told the outcome of every routed message. May be nil.
type Observer interface {
	Routed(topic string, err error)
}

// Topics is the routing table.
type Topics struct {
	Pump    string
	Capture string
}

type Router struct {
	topics  Topics
	cmd     Commander
	status  StatusPublisher
	capture Capturer
	obs     Observer
	log     *zap.Logger
}

func New(topics Topics, cmd Commander, status StatusPublisher, capture Capturer, obs Observer, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		topics:  topics,
		cmd:     cmd,
		status:  status,
		capture: capture,
		obs:     obs,
		log:     log.Named("router"),
	}
}

// Route handles one message. Topics are matched exactly.
func (r *Router) Route(ctx context.Context, topic string, payload []byte) error {
	var err error
	switch topic {
	case r.topics.Pump:
		err = r.pump(ctx, payload)
	case r.topics.Capture:
		// Payload is ignored.
		if r.capture == nil {
			err = &errcode.E{C: errcode.BufferUnavailable, Op: "router.capture", Msg: "no camera"}
			break
		}
		err = r.capture.CaptureAndUpload(ctx)
	default:
		err = &errcode.E{C: errcode.InvalidTopic, Op: "router.route", Msg: topic}
	}
	if err != nil {
		r.log.Warn("message not handled", zap.String("topic", topic), zap.String("code", string(errcode.Of(err))), zap.Error(err))
	} else {
		r.log.Debug("message handled", zap.String("topic", topic))
	}
	if r.obs != nil {
		r.obs.Routed(topic, err)
	}
	return err
}

// pump parses {"state":"ON"|"OFF"}. A parse failure or unknown state has no
// side effect. A recognised state sends once and publishes status once, even
// when the send fails.
func (r *Router) pump(ctx context.Context, payload []byte) error {
	cmd, err := ParsePumpCommand(payload)
	if err != nil {
		return err
	}
	sendErr := r.cmd.SendCommand(cmd)
	if err := r.status.PublishStatus(ctx); err != nil {
		r.log.Warn("status publish failed", zap.Error(err))
	}
	return sendErr
}

// ParsePumpCommand decodes a pump command payload.
func ParsePumpCommand(payload []byte) (protocol.Command, error) {
	const op = "router.pump"
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return 0, errcode.Wrap(errcode.MalformedValue, op, err)
	}
	raw, ok := doc["state"]
	if !ok {
		return 0, &errcode.E{C: errcode.MissingField, Op: op, Msg: "state"}
	}
	var state string
	if string(raw) == "null" {
		return 0, &errcode.E{C: errcode.MalformedValue, Op: op, Msg: "state is null"}
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		return 0, &errcode.E{C: errcode.MalformedValue, Op: op, Msg: "state is not a string", Err: err}
	}
	switch state {
	case types.PumpStateOn:
		return protocol.PumpOn, nil
	case types.PumpStateOff:
		return protocol.PumpOff, nil
	default:
		return 0, &errcode.E{C: errcode.UnknownState, Op: op, Msg: state}
	}
}
