package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floraseven/errcode"
	"floraseven/types"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.BusTransaction("pump_on", nil)
	m.Routed("t", errcode.InvalidTopic)
	m.Captured(nil, 10)
	m.ConnectAttempt(errors.New("x"))
	m.SessionState(types.SessionReady)
	m.Published("t", nil)
	m.Actuator(true)
	m.Cycle(nil)
}

func TestCountersUseErrorCodes(t *testing.T) {
	m := New("hub")
	m.BusTransaction("request_acidity", errcode.Wrap(errcode.ShortRead, "read", nil))
	m.BusTransaction("request_acidity", nil)
	m.Routed("floraSeven/command/hub/pump", &errcode.E{C: errcode.UnknownState})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.busTx.WithLabelValues("request_acidity", "short_read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.busTx.WithLabelValues("request_acidity", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.routed.WithLabelValues("floraSeven/command/hub/pump", "unknown_state")))
}

func TestCaptureBytesOnlyOnSuccess(t *testing.T) {
	m := New("hub")
	m.Captured(nil, 100)
	m.Captured(errcode.UploadFailed, 50)
	assert.Equal(t, 100.0, testutil.ToFloat64(m.captureBytes))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.captures.WithLabelValues("upload_failed")))
}

func TestSessionStateIsOneHot(t *testing.T) {
	m := New("sensor")
	m.SessionState(types.SessionConnecting)
	m.SessionState(types.SessionReady)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessionState.WithLabelValues("ready")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.sessionState.WithLabelValues("connecting")))
}

func TestHandlerExposesNodeLabel(t *testing.T) {
	m := New("hub")
	m.Actuator(true)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), `floraseven_hub_actuator_active{node="hub"} 1`), string(body))
}

func TestInboundDropsAccumulate(t *testing.T) {
	m := New("hub")
	m.InboundDropped(2)
	m.InboundDropped(3)
	assert.Equal(t, 5.0, testutil.ToFloat64(m.inboundDrops))

	var nilM *Metrics
	nilM.InboundDropped(1)
}
