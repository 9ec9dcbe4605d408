package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floraseven/errcode"
)

func TestPahoConnectUnreachableBroker(t *testing.T) {
	p := NewPahoClient(PahoOptions{
		Broker:         "tcp://127.0.0.1:1",
		ClientID:       "floraSevenTest",
		ConnectTimeout: 500 * time.Millisecond,
	})
	defer p.Disconnect()

	start := time.Now()
	err := p.Connect()
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond+time.Second)
	assert.False(t, p.IsConnected())
}

// stuckToken never completes.
type stuckToken struct{ done chan struct{} }

func (t stuckToken) Wait() bool                       { <-t.done; return true }
func (t stuckToken) WaitTimeout(d time.Duration) bool { time.Sleep(d); return false }
func (t stuckToken) Done() <-chan struct{}            { return t.done }
func (t stuckToken) Error() error                     { return nil }

// doneToken has already completed with err.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

func TestPahoAwait(t *testing.T) {
	p := &PahoClient{}

	err := p.await("mqtt.publish x", stuckToken{done: make(chan struct{})}, 10*time.Millisecond)
	assert.ErrorIs(t, err, errcode.Timeout)
	assert.Contains(t, err.Error(), "mqtt.publish x")

	cause := errors.New("not authorized")
	assert.Equal(t, cause, p.await("mqtt.subscribe y", doneToken{err: cause}, time.Second))
	assert.NoError(t, p.await("mqtt.subscribe y", doneToken{}, time.Second))
}
