// Package session keeps a node's broker session alive.
//
// EnsureConnected is called at the top of every work cycle. It returns at once
// when the session is up; otherwise it runs a bounded connect loop governed by
// a RetryPolicy and resubscribes on success. The node never blocks forever on
// the broker: an exhausted policy is an error the caller skips past.
//
// Inbound messages arrive on the client library's goroutine. They are not
// handled there; each one is republished on the local bus under InboundPrefix
// so that the node's own loop consumes it.
package session

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"floraseven/bus"
	"floraseven/errcode"
	"floraseven/types"
	"floraseven/x/timex"
)

// Handler receives one inbound broker message.
type Handler func(topic string, payload []byte)

// Client is the broker connection. PahoClient is the production one.
type Client interface {
	IsConnected() bool
	Connect() error
	Subscribe(topic string, h Handler) error
	Publish(topic string, payload []byte) error
	Disconnect()
}

// LossNotifier is implemented by clients that report a connection dropped
// by the broker or the network.
type LossNotifier interface {
	OnConnectionLost(func(err error))
}

// RetryPolicy bounds the connect loop: at most MaxAttempts tries with a fixed
// Delay between consecutive tries.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Delay: 5 * time.Second}
}

// Observer is told about connect attempts and publishes. May be nil.
type Observer interface {
	ConnectAttempt(err error)
	SessionState(level types.SessionLevel)
	Published(topic string, err error)
}

var (
	// StateTopic carries the retained types.SessionState.
	StateTopic = bus.T("session", "state")
	// InboundPrefix is prepended to the broker topic of every inbound message.
	InboundPrefix = bus.T("mqtt", "in")
)

type Config struct {
	Retry         RetryPolicy
	Subscriptions []string
}

type Manager struct {
	client Client
	conn   *bus.Connection
	cfg    Config
	obs    Observer
	log    *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) bool
}

func New(client Client, conn *bus.Connection, cfg Config, obs Observer, log *zap.Logger) *Manager {
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		client: client,
		conn:   conn,
		cfg:    cfg,
		obs:    obs,
		log:    log.Named("session"),
		sleep:  timex.Sleep,
	}
	m.publishState(types.SessionDisconnected, "idle", 0, nil)
	if ln, ok := client.(LossNotifier); ok {
		ln.OnConnectionLost(m.connectionLost)
	}
	return m
}

// connectionLost runs on the client's goroutine. The next EnsureConnected
// reconnects.
func (m *Manager) connectionLost(err error) {
	m.log.Warn("connection lost", zap.Error(err))
	m.publishState(types.SessionDisconnected, "connection_lost", 0, err)
}

// Policy returns the active retry policy.
func (m *Manager) Policy() RetryPolicy { return m.cfg.Retry }

// Connected reports the client's view of the session.
func (m *Manager) Connected() bool { return m.client.IsConnected() }

// EnsureConnected returns nil once the session is up. It never retries past
// the policy: exhaustion yields RetriesExhausted wrapping the last cause, and
// cancellation yields Timeout.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	const op = "session.connect"
	if m.client.IsConnected() {
		return nil
	}

	p := m.cfg.Retry
	var last error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errcode.Wrap(errcode.Timeout, op, err)
		}
		m.publishState(types.SessionConnecting, "connecting", attempt, nil)

		err := m.client.Connect()
		if m.obs != nil {
			m.obs.ConnectAttempt(err)
		}
		if err == nil {
			m.log.Info("connected", zap.Int("attempt", attempt))
			m.publishState(types.SessionConnected, "connected", attempt, nil)
			m.subscribeAll()
			return nil
		}

		last = err
		m.log.Warn("connect failed", zap.Int("attempt", attempt), zap.Int("max_attempts", p.MaxAttempts), zap.Error(err))
		if attempt == p.MaxAttempts {
			break
		}
		m.publishState(types.SessionDisconnected, "retrying", attempt, err)
		if !m.sleep(ctx, p.Delay) {
			return errcode.Wrap(errcode.Timeout, op, ctx.Err())
		}
	}

	m.publishState(types.SessionDisconnected, string(errcode.RetriesExhausted), p.MaxAttempts, last)
	return &errcode.E{C: errcode.RetriesExhausted, Op: op, Msg: strconv.Itoa(p.MaxAttempts) + " attempts", Err: last}
}

// subscribeAll subscribes every configured topic. A failed subscription is
// logged and does not undo the connection.
func (m *Manager) subscribeAll() {
	if len(m.cfg.Subscriptions) == 0 {
		m.publishState(types.SessionReady, "ready", 0, nil)
		return
	}
	m.publishState(types.SessionSubscriptionPending, "subscribing", 0, nil)
	failed := 0
	for _, topic := range m.cfg.Subscriptions {
		if err := m.client.Subscribe(topic, m.inbound); err != nil {
			failed++
			m.log.Error("subscribe failed", zap.String("topic", topic), zap.Error(err))
			continue
		}
		m.log.Info("subscribed", zap.String("topic", topic))
	}
	status := "ready"
	if failed > 0 {
		status = "partial_subscription"
	}
	m.publishState(types.SessionReady, status, 0, nil)
}

// inbound runs on the client's goroutine.
func (m *Manager) inbound(topic string, payload []byte) {
	t := InboundPrefix.Append(bus.ParseTopic(topic)...)
	m.conn.Publish(m.conn.NewMessage(t, payload, false))
}

// Publish sends payload without queueing or retry.
func (m *Manager) Publish(topic string, payload []byte) error {
	const op = "session.publish"
	var err error
	if !m.client.IsConnected() {
		err = &errcode.E{C: errcode.NotConnected, Op: op, Msg: topic}
	} else if perr := m.client.Publish(topic, payload); perr != nil {
		err = errcode.Wrap(errcode.Error, op, perr)
	}
	if m.obs != nil {
		m.obs.Published(topic, err)
	}
	return err
}

// Close ends the session.
func (m *Manager) Close() {
	m.client.Disconnect()
	m.publishState(types.SessionDisconnected, "closed", 0, nil)
}

// InboundTopic strips InboundPrefix from a local bus topic. ok is false for
// topics outside the prefix.
func InboundTopic(t bus.Topic) (string, bool) {
	if len(t) <= len(InboundPrefix) {
		return "", false
	}
	for i, lvl := range InboundPrefix {
		if t[i] != lvl {
			return "", false
		}
	}
	return t[len(InboundPrefix):].String(), true
}

func (m *Manager) publishState(level types.SessionLevel, status string, attempt int, err error) {
	st := types.SessionState{Level: level, Status: status, Attempt: attempt, TS: timex.NowMs()}
	if err != nil {
		st.Error = err.Error()
	}
	m.conn.Publish(m.conn.NewMessage(StateTopic, st, true))
	if m.obs != nil {
		m.obs.SessionState(level)
	}
}
