// Package metrics exposes node counters on a private Prometheus registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"floraseven/errcode"
	"floraseven/types"
)

const namespace = "floraseven"

type Metrics struct {
	reg *prometheus.Registry

	busTx          *prometheus.CounterVec // op, result
	routed         *prometheus.CounterVec // topic, result
	captures       *prometheus.CounterVec // result
	captureBytes   prometheus.Counter
	publishes      *prometheus.CounterVec // topic, result
	connectAttempt *prometheus.CounterVec // result
	sessionState   *prometheus.GaugeVec   // level
	actuator       prometheus.Gauge
	cycles         *prometheus.CounterVec // result
	inboundDrops   prometheus.Counter
}

// New creates and registers every collector. node becomes a constant label.
func New(node string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"node": node}

	m := &Metrics{
		reg: reg,
		busTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bus", Name: "transactions_total",
			Help: "Two-wire bus transactions by command and result code.", ConstLabels: labels,
		}, []string{"op", "result"}),
		routed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "router", Name: "messages_total",
			Help: "Inbound broker messages by topic and result code.", ConstLabels: labels,
		}, []string{"topic", "result"}),
		captures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "capture", Name: "runs_total",
			Help: "Capture-and-upload runs by result code.", ConstLabels: labels,
		}, []string{"result"}),
		captureBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "capture", Name: "uploaded_bytes_total",
			Help: "Bytes of image data uploaded.", ConstLabels: labels,
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "publishes_total",
			Help: "Broker publishes by topic and result code.", ConstLabels: labels,
		}, []string{"topic", "result"}),
		connectAttempt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "connect_attempts_total",
			Help: "Broker connect attempts by result.", ConstLabels: labels,
		}, []string{"result"}),
		sessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "session", Name: "state",
			Help: "1 for the current session level, 0 otherwise.", ConstLabels: labels,
		}, []string{"level"}),
		actuator: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "hub", Name: "actuator_active",
			Help: "Believed pump state (1 on).", ConstLabels: labels,
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "sensor", Name: "cycles_total",
			Help: "Sensor read-and-publish cycles by result code.", ConstLabels: labels,
		}, []string{"result"}),
		inboundDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "hub", Name: "inbound_dropped_total",
			Help: "Inbound broker messages discarded by a full local queue.", ConstLabels: labels,
		}),
	}
	reg.MustRegister(m.busTx, m.routed, m.captures, m.captureBytes, m.publishes,
		m.connectAttempt, m.sessionState, m.actuator, m.cycles, m.inboundDrops)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// BusTransaction counts one pump node transaction.
func (m *Metrics) BusTransaction(op string, err error) {
	if m == nil {
		return
	}
	m.busTx.WithLabelValues(op, result(err)).Inc()
}

// Routed implements router.Observer.
func (m *Metrics) Routed(topic string, err error) {
	if m == nil {
		return
	}
	m.routed.WithLabelValues(topic, result(err)).Inc()
}

// Captured implements capture.Observer.
func (m *Metrics) Captured(err error, size int) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(result(err)).Inc()
	if err == nil {
		m.captureBytes.Add(float64(size))
	}
}

// ConnectAttempt implements session.Observer.
func (m *Metrics) ConnectAttempt(err error) {
	if m == nil {
		return
	}
	r := "ok"
	if err != nil {
		r = "failed"
	}
	m.connectAttempt.WithLabelValues(r).Inc()
}

// SessionState implements session.Observer.
func (m *Metrics) SessionState(level types.SessionLevel) {
	if m == nil {
		return
	}
	for _, l := range []types.SessionLevel{
		types.SessionDisconnected, types.SessionConnecting, types.SessionConnected,
		types.SessionSubscriptionPending, types.SessionReady,
	} {
		v := 0.0
		if l == level {
			v = 1
		}
		m.sessionState.WithLabelValues(string(l)).Set(v)
	}
}

// Published implements session.Observer.
func (m *Metrics) Published(topic string, err error) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(topic, result(err)).Inc()
}

// Actuator records the believed pump state.
func (m *Metrics) Actuator(on bool) {
	if m == nil {
		return
	}
	if on {
		m.actuator.Set(1)
	} else {
		m.actuator.Set(0)
	}
}

// Cycle counts one sensor cycle.
func (m *Metrics) Cycle(err error) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(result(err)).Inc()
}

// InboundDropped implements hub.DropObserver.
func (m *Metrics) InboundDropped(n int) {
	if m == nil {
		return
	}
	m.inboundDrops.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics and /health on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func result(err error) string { return string(errcode.Of(err)) }
