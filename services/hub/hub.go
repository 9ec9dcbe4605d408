// Package hub runs the hub node's control loop.
//
// One goroutine owns all hub behaviour: it consumes inbound broker messages
// from the local bus, fires the periodic status report, and keeps the broker
// session alive. Bus transactions, uploads and publishes therefore never
// overlap, and the actuator belief has a single writer.
package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"floraseven/bus"
	"floraseven/services/session"
)

// Session is the broker session as the loop sees it.
type Session interface {
	EnsureConnected(ctx context.Context) error
}

// Router dispatches one inbound message.
type Router interface {
	Route(ctx context.Context, topic string, payload []byte) error
}

// StatusPublisher publishes the status document.
type StatusPublisher interface {
	PublishStatus(ctx context.Context) error
}

// DropObserver is told how many inbound messages the local queue discarded.
type DropObserver interface {
	InboundDropped(n int)
}

type Config struct {
	StatusInterval    time.Duration // default 60s
	ReconnectInterval time.Duration // default 5s
	Drops             DropObserver  // may be nil
}

type Hub struct {
	cfg    Config
	sess   Session
	conn   *bus.Connection
	router Router
	status StatusPublisher
	log    *zap.Logger

	dropped uint32 // drops already reported
}

func New(cfg Config, sess Session, conn *bus.Connection, router Router, status StatusPublisher, log *zap.Logger) *Hub {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = 60 * time.Second
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{cfg: cfg, sess: sess, conn: conn, router: router, status: status, log: log.Named("hub")}
}

// Run blocks until ctx is done. Connection and handler failures are logged;
// the loop keeps going.
func (h *Hub) Run(ctx context.Context) error {
	sub := h.conn.Subscribe(session.InboundPrefix.Append("#"))
	defer h.conn.Unsubscribe(sub)

	h.ensure(ctx)

	statusT := time.NewTicker(h.cfg.StatusInterval)
	defer statusT.Stop()
	reconnT := time.NewTicker(h.cfg.ReconnectInterval)
	defer reconnT.Stop()

	h.log.Info("running", zap.Duration("status_interval", h.cfg.StatusInterval))
	for {
		select {
		case <-ctx.Done():
			h.log.Info("stopping")
			return nil
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			h.noteDrops(sub)
			h.dispatch(ctx, msg)
		case <-statusT.C:
			_ = h.status.PublishStatus(ctx)
		case <-reconnT.C:
			h.ensure(ctx)
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, msg *bus.Message) {
	topic, ok := session.InboundTopic(msg.Topic)
	if !ok {
		return
	}
	payload, _ := msg.Payload.([]byte)
	h.log.Debug("inbound", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	// Route logs its own failures.
	_ = h.router.Route(ctx, topic, payload)
}

// noteDrops reports messages the subscription discarded since the last call.
func (h *Hub) noteDrops(sub *bus.Subscription) {
	total := sub.Drops()
	n := int(total - h.dropped)
	if n == 0 {
		return
	}
	h.dropped = total
	h.log.Warn("inbound messages dropped", zap.Int("count", n), zap.Uint32("total", total))
	if h.cfg.Drops != nil {
		h.cfg.Drops.InboundDropped(n)
	}
}

func (h *Hub) ensure(ctx context.Context) {
	if err := h.sess.EnsureConnected(ctx); err != nil && ctx.Err() == nil {
		h.log.Warn("broker unavailable, will retry", zap.Error(err))
	}
}
