// Package peripheral is the pump node's side of the two-wire link.
//
// Two entry points run in bus-event (interrupt) context and must stay bounded:
// OnCommandReceived and OnReadRequested. They touch nothing but atomics and two
// single-slot mailboxes. Everything else, pin writes, sampling and logging,
// happens in Step, called from the node's cooperative loop.
//
// Data requests are latched straight into the pending-request slot at receive
// time, so a read that follows a request is always answered for that request
// even if the loop has not run in between.
package peripheral

import (
	"context"
	"io"
	"math"
	"sync/atomic"
	"time"

	"floraseven/protocol"
	"floraseven/x/conv"
	"floraseven/x/mailbox"
	"floraseven/x/timex"
)

// Pin is the pump output. machine.Pin satisfies it.
type Pin interface {
	Set(high bool)
}

// RxBuffer is a received frame. *bytes.Reader satisfies it.
type RxBuffer interface {
	Len() int
	ReadByte() (byte, error)
}

// Sampler produces the node's current measured values.
type Sampler interface {
	Sample() (acidity, ultraviolet float32)
}

// unread is the measured value before the first sample.
const unread float32 = -1.0

// Config tunes the loop. Zero fields take defaults.
type Config struct {
	Interval time.Duration // default 1s
}

// Stats is a snapshot of the event counters.
type Stats struct {
	Commands          uint32
	UnknownCommands   uint32
	BadFrames         uint32
	CommandOverwrites uint32
	RequestOverwrites uint32
	Reads             uint32
	SentinelReads     uint32
}

type Peripheral struct {
	pin      Pin
	sampler  Sampler
	console  io.Writer
	interval time.Duration

	commands mailbox.Byte // PumpOn / PumpOff
	pending  mailbox.Byte // RequestAcidity / RequestUltraviolet

	acidity atomic.Uint32 // float32 bits
	uv      atomic.Uint32
	pumpOn  atomic.Bool

	unknown     atomic.Uint32
	lastUnknown atomic.Uint32
	badFrames   atomic.Uint32
	lastBadLen  atomic.Uint32
	reads       atomic.Uint32
	sentinels   atomic.Uint32

	// loop-owned
	seen Stats
	line []byte
	num  [24]byte
}

// New drives the pin low and returns a peripheral ready for bus events.
// A nil console discards log output.
func New(pin Pin, sampler Sampler, console io.Writer, cfg Config) *Peripheral {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if console == nil {
		console = io.Discard
	}
	p := &Peripheral{
		pin:      pin,
		sampler:  sampler,
		console:  console,
		interval: cfg.Interval,
		line:     make([]byte, 0, 96),
	}
	pin.Set(false)
	p.acidity.Store(math.Float32bits(unread))
	p.uv.Store(math.Float32bits(unread))
	return p
}

// -----------------------------------------------------------------------------
// Bus event context
// -----------------------------------------------------------------------------

// OnCommandReceived handles a controller write. Only single-byte frames are
// valid; anything else is drained and counted.
func (p *Peripheral) OnCommandReceived(rx RxBuffer) {
	n := rx.Len()
	if n != 1 {
		for rx.Len() > 0 {
			if _, err := rx.ReadByte(); err != nil {
				break
			}
		}
		p.lastBadLen.Store(uint32(n))
		p.badFrames.Add(1)
		return
	}
	b, err := rx.ReadByte()
	if err != nil {
		p.badFrames.Add(1)
		return
	}
	switch c := protocol.Command(b); {
	case c.IsActuator():
		p.commands.Post(b)
	case c.IsDataRequest():
		p.pending.Post(b)
	default:
		p.lastUnknown.Store(uint32(b))
		p.unknown.Add(1)
	}
}

// OnReadRequested answers a controller read. The pending request is consumed:
// a second read without a new request gets the sentinel.
func (p *Peripheral) OnReadRequested() [protocol.ValueSize]byte {
	p.reads.Add(1)
	v := protocol.Sentinel
	if b, ok := p.pending.Take(); ok {
		switch protocol.Command(b) {
		case protocol.RequestAcidity:
			v = math.Float32frombits(p.acidity.Load())
		case protocol.RequestUltraviolet:
			v = math.Float32frombits(p.uv.Load())
		}
	}
	if v == protocol.Sentinel {
		p.sentinels.Add(1)
	}
	return protocol.EncodeValue(v)
}

// -----------------------------------------------------------------------------
// Loop context
// -----------------------------------------------------------------------------

// Run calls Step every interval until ctx is done.
func (p *Peripheral) Run(ctx context.Context) {
	p.logLine("peripheral: ready")
	for {
		p.Step()
		if !timex.Sleep(ctx, p.interval) {
			return
		}
	}
}

// Step samples, applies at most one pending actuator command, and logs what
// the bus-event side recorded since the previous step.
func (p *Peripheral) Step() {
	a, u := p.sampler.Sample()
	p.acidity.Store(math.Float32bits(a))
	p.uv.Store(math.Float32bits(u))
	p.logStatus(a, u)

	if b, ok := p.commands.Take(); ok {
		switch protocol.Command(b) {
		case protocol.PumpOn:
			p.pin.Set(true)
			p.pumpOn.Store(true)
			p.logLine("pump: on")
		case protocol.PumpOff:
			p.pin.Set(false)
			p.pumpOn.Store(false)
			p.logLine("pump: off")
		}
	}

	s := p.Stats()
	if s.UnknownCommands != p.seen.UnknownCommands {
		p.start("bus: unknown command 0x")
		p.line = append(p.line, conv.U8Hex(p.num[:], byte(p.lastUnknown.Load()))...)
		p.count(s.UnknownCommands - p.seen.UnknownCommands)
		p.flush()
	}
	if s.BadFrames != p.seen.BadFrames {
		p.start("bus: malformed frame, len ")
		p.line = append(p.line, conv.Utoa(p.num[:], uint64(p.lastBadLen.Load()))...)
		p.count(s.BadFrames - p.seen.BadFrames)
		p.flush()
	}
	if s.CommandOverwrites != p.seen.CommandOverwrites {
		p.start("bus: pump command overwritten")
		p.count(s.CommandOverwrites - p.seen.CommandOverwrites)
		p.flush()
	}
	if s.RequestOverwrites != p.seen.RequestOverwrites {
		p.start("bus: data request overwritten")
		p.count(s.RequestOverwrites - p.seen.RequestOverwrites)
		p.flush()
	}
	p.seen = s
}

// PumpOn reports the latched pump output.
func (p *Peripheral) PumpOn() bool { return p.pumpOn.Load() }

// Values returns the last sampled measured values.
func (p *Peripheral) Values() (acidity, ultraviolet float32) {
	return math.Float32frombits(p.acidity.Load()), math.Float32frombits(p.uv.Load())
}

func (p *Peripheral) Stats() Stats {
	return Stats{
		Commands:          p.commands.Posts(),
		UnknownCommands:   p.unknown.Load(),
		BadFrames:         p.badFrames.Load(),
		CommandOverwrites: p.commands.Overwrites(),
		RequestOverwrites: p.pending.Overwrites(),
		Reads:             p.reads.Load(),
		SentinelReads:     p.sentinels.Load(),
	}
}

// ---- console lines, formatted without fmt ----

func (p *Peripheral) logStatus(a, u float32) {
	p.start("status acidity=")
	p.line = append(p.line, conv.Fixed(p.num[:], a, 2)...)
	p.line = append(p.line, " uv="...)
	p.line = append(p.line, conv.Fixed(p.num[:], u, 2)...)
	if p.pumpOn.Load() {
		p.line = append(p.line, " pump=ON"...)
	} else {
		p.line = append(p.line, " pump=OFF"...)
	}
	p.flush()
}

func (p *Peripheral) count(n uint32) {
	if n > 1 {
		p.line = append(p.line, " (x"...)
		p.line = append(p.line, conv.Utoa(p.num[:], uint64(n))...)
		p.line = append(p.line, ')')
	}
}

func (p *Peripheral) start(s string) { p.line = append(p.line[:0], s...) }

func (p *Peripheral) logLine(s string) {
	p.start(s)
	p.flush()
}

func (p *Peripheral) flush() {
	p.line = append(p.line, '\r', '\n')
	_, _ = p.console.Write(p.line)
}
