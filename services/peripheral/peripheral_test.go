package peripheral

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"floraseven/protocol"
)

type fakePin struct {
	sets []bool
}

func (p *fakePin) Set(high bool) { p.sets = append(p.sets, high) }
func (p *fakePin) level() bool   { return p.sets[len(p.sets)-1] }

type fixedSampler struct{ a, u float32 }

func (s fixedSampler) Sample() (float32, float32) { return s.a, s.u }

func newTest(t *testing.T) (*Peripheral, *fakePin, *bytes.Buffer) {
	t.Helper()
	pin := &fakePin{}
	var out bytes.Buffer
	p := New(pin, PlaceholderSampler{}, &out, Config{})
	return p, pin, &out
}

func write(p *Peripheral, b ...byte) { p.OnCommandReceived(bytes.NewReader(b)) }

func read(p *Peripheral) float32 {
	v := p.OnReadRequested()
	return protocol.DecodeValue(v[:])
}

func TestPinStartsLow(t *testing.T) {
	_, pin, _ := newTest(t)
	if len(pin.sets) != 1 || pin.level() {
		t.Fatalf("pin sets = %v, want [false]", pin.sets)
	}
}

func TestPumpOnLatchesUntilOff(t *testing.T) {
	p, pin, _ := newTest(t)

	write(p, byte(protocol.PumpOn))
	if pin.level() {
		t.Fatal("pin must not change in bus-event context")
	}
	p.Step()
	if !pin.level() || !p.PumpOn() {
		t.Fatal("pump should be on after step")
	}

	// Requests, reads and unknown bytes leave the pin alone.
	write(p, byte(protocol.RequestAcidity))
	read(p)
	write(p, 0x42)
	write(p, 1, 2, 3)
	p.Step()
	p.Step()
	if !pin.level() {
		t.Fatal("pin changed without PumpOff")
	}

	write(p, byte(protocol.PumpOff))
	p.Step()
	if pin.level() || p.PumpOn() {
		t.Fatal("pump should be off")
	}
}

func TestRequestThenReadReturnsValue(t *testing.T) {
	p, _, _ := newTest(t)
	p.Step() // sample placeholders

	write(p, byte(protocol.RequestAcidity))
	if got := read(p); got != 7.0 {
		t.Fatalf("acidity = %v, want 7", got)
	}
	write(p, byte(protocol.RequestUltraviolet))
	if got := read(p); got != 0.5 {
		t.Fatalf("ultraviolet = %v, want 0.5", got)
	}
}

func TestRequestIsServedWithoutLoopStep(t *testing.T) {
	p := New(&fakePin{}, fixedSampler{a: 6.5, u: 1.25}, nil, Config{})
	p.Step()

	// No Step between request and read.
	write(p, byte(protocol.RequestUltraviolet))
	if got := read(p); got != 1.25 {
		t.Fatalf("got %v, want 1.25", got)
	}
}

func TestReadIsOneShot(t *testing.T) {
	p, _, _ := newTest(t)
	p.Step()

	write(p, byte(protocol.RequestAcidity))
	if got := read(p); got != 7.0 {
		t.Fatalf("first read = %v", got)
	}
	if got := read(p); got != protocol.Sentinel {
		t.Fatalf("second read = %v, want sentinel", got)
	}
	if s := p.Stats(); s.Reads != 2 || s.SentinelReads != 1 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestReadWithoutRequestIsSentinel(t *testing.T) {
	p, _, _ := newTest(t)
	if got := read(p); got != protocol.Sentinel {
		t.Fatalf("got %v, want sentinel", got)
	}
}

func TestValuesBeforeFirstSample(t *testing.T) {
	p, _, _ := newTest(t)
	write(p, byte(protocol.RequestAcidity))
	if got := read(p); got != -1.0 {
		t.Fatalf("got %v, want -1 before first sample", got)
	}
}

func TestMalformedFramesAreDrainedAndCounted(t *testing.T) {
	p, pin, out := newTest(t)

	rx := bytes.NewReader([]byte{byte(protocol.PumpOn), byte(protocol.PumpOn)})
	p.OnCommandReceived(rx)
	if rx.Len() != 0 {
		t.Fatalf("%d bytes left undrained", rx.Len())
	}
	write(p) // zero-length write
	p.Step()

	if pin.level() {
		t.Fatal("a two-byte frame must not switch the pump")
	}
	if s := p.Stats(); s.BadFrames != 2 {
		t.Fatalf("BadFrames = %d", s.BadFrames)
	}
	if !strings.Contains(out.String(), "malformed frame, len 0 (x2)") {
		t.Fatalf("log missing malformed frame line:\n%s", out.String())
	}
}

func TestUnknownCommandIsLogged(t *testing.T) {
	p, _, out := newTest(t)
	write(p, 0xAB)
	p.Step()

	if !strings.Contains(out.String(), "unknown command 0xAB") {
		t.Fatalf("log:\n%s", out.String())
	}
	// Logged once, not on every step.
	out.Reset()
	p.Step()
	if strings.Contains(out.String(), "unknown") {
		t.Fatalf("unknown command logged twice:\n%s", out.String())
	}
}

func TestLatestActuatorCommandWins(t *testing.T) {
	p, pin, out := newTest(t)
	write(p, byte(protocol.PumpOn))
	write(p, byte(protocol.PumpOff))
	p.Step()

	if pin.level() {
		t.Fatal("last command was PumpOff")
	}
	if p.Stats().CommandOverwrites != 1 {
		t.Fatalf("overwrites = %d", p.Stats().CommandOverwrites)
	}
	if !strings.Contains(out.String(), "pump command overwritten") {
		t.Fatalf("log:\n%s", out.String())
	}
}

func TestStatusLine(t *testing.T) {
	p, _, out := newTest(t)
	p.Step()
	if !strings.Contains(out.String(), "status acidity=7.00 uv=0.50 pump=OFF\r\n") {
		t.Fatalf("log:\n%q", out.String())
	}
}

func TestConcurrentEventsAndLoop(t *testing.T) {
	p := New(&fakePin{}, PlaceholderSampler{}, nil, Config{})
	p.Step()

	const n = 2000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			write(p, byte(protocol.RequestAcidity))
			v := read(p)
			if v != 7.0 && v != protocol.Sentinel {
				t.Errorf("torn value %v", v)
				return
			}
		}
	}()
	for i := 0; i < 200; i++ {
		p.Step()
	}
	wg.Wait()
}

func TestRunStopsOnCancel(t *testing.T) {
	p := New(&fakePin{}, PlaceholderSampler{}, nil, Config{Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	write(p, byte(protocol.PumpOn))
	deadline := time.After(time.Second)
	for !p.PumpOn() {
		select {
		case <-deadline:
			t.Fatal("Run never applied the command")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}

func TestConversions(t *testing.T) {
	c := DefaultCalibration
	// 2.50 V -> pH 7
	v := 2.50 / 3.3 * 4095.0
	raw := int(v)
	if got := AcidityFromRaw(raw, c); got < 6.9 || got > 7.1 {
		t.Fatalf("AcidityFromRaw = %v", got)
	}
	if got := UVFromRaw(0, c); got != 0 {
		t.Fatalf("UV below range = %v, want clamped 0", got)
	}
	if got := UVFromRaw(4095, c); got != float32(c.UVMaxIndex) {
		t.Fatalf("UV above range = %v", got)
	}
}

func TestBootRestartsOnSetupFailure(t *testing.T) {
	var out bytes.Buffer
	restarts := 0
	ok := Boot(&out, func() error { return errors.New("listen: busy") }, time.Millisecond, func() { restarts++ })
	if ok {
		t.Fatal("Boot reported success")
	}
	if restarts != 1 {
		t.Fatalf("restarts = %d, want 1", restarts)
	}
	if got := out.String(); got != "boot: listen: busy, restarting\r\n" {
		t.Fatalf("console = %q", got)
	}
}

func TestBootSucceeds(t *testing.T) {
	restarts := 0
	if !Boot(nil, func() error { return nil }, time.Millisecond, func() { restarts++ }) {
		t.Fatal("Boot reported failure")
	}
	if restarts != 0 {
		t.Fatalf("restarts = %d, want 0", restarts)
	}
}
