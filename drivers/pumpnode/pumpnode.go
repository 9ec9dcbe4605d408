// Package pumpnode is the hub-side driver for the pump node on the two-wire bus.
//
// The node speaks a one-byte command protocol (see package protocol):
//
//	err := d.SendCommand(protocol.PumpOn)        // single-byte write
//	v, err := d.RequestValue(protocol.RequestAcidity)
//
// RequestValue is two transactions: a command write, a fixed settle delay, then
// a bare 4-byte read. The delay covers the window in which the node has not yet
// latched the request; there is no handshake to replace it.
//
// The driver performs no retries. Callers decide what a failed read means.
package pumpnode

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"floraseven/errcode"
	"floraseven/protocol"
	"floraseven/x/conv"
)

// DefaultSettleDelay is the pause between a request write and its read.
const DefaultSettleDelay = 50 * time.Millisecond

// CountingReader is implemented by buses that can report how many bytes a bare
// read actually returned. Without it a short read is indistinguishable from a
// failed one.
type CountingReader interface {
	ReadFrom(addr uint16, buf []byte) (int, error)
}

// BusError describes a failed transaction.
type BusError struct {
	C      errcode.Code // WriteFailed or ShortRead
	Cmd    protocol.Command
	Status int // raw bus status, -1 when the bus gives none
	Got    int // bytes received (ShortRead only)
	Err    error
}

func (e *BusError) Error() string {
	var nb [12]byte
	s := "pumpnode: " + string(e.C) + " " + e.Cmd.String()
	if e.C == errcode.ShortRead {
		s += " got " + string(conv.Itoa(nb[:], int64(e.Got))) + "/4"
	}
	if e.Status >= 0 {
		s += " status " + string(conv.Itoa(nb[:], int64(e.Status)))
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *BusError) Unwrap() error      { return e.Err }
func (e *BusError) Code() errcode.Code { return e.C }
func (e *BusError) Is(target error) bool {
	c, ok := target.(errcode.Code)
	return ok && c == e.C
}

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to protocol.Address if zero.
	Address uint16
	// SettleDelay defaults to DefaultSettleDelay if zero.
	SettleDelay time.Duration
}

// Device wraps a bus connection to the pump node.
type Device struct {
	bus     drivers.I2C
	Address uint16

	settle time.Duration
	sleep  func(time.Duration)
	cmd    [1]byte
	buf    [protocol.ValueSize]byte
}

// New creates a Device. The bus must already be configured.
// It does not touch the node.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: protocol.Address,
		settle:  DefaultSettleDelay,
		sleep:   time.Sleep,
	}
}

// Configure applies optional config.
func (d *Device) Configure(cfgs ...Config) {
	if len(cfgs) == 0 {
		return
	}
	c := cfgs[0]
	if c.Address != 0 {
		d.Address = c.Address
	}
	if c.SettleDelay > 0 {
		d.settle = c.SettleDelay
	}
}

// SettleDelay returns the delay applied inside RequestValue.
func (d *Device) SettleDelay() time.Duration { return d.settle }

// SendCommand writes one command byte.
func (d *Device) SendCommand(cmd protocol.Command) error {
	d.cmd[0] = byte(cmd)
	if err := d.bus.Tx(d.Address, d.cmd[:], nil); err != nil {
		return &BusError{C: errcode.WriteFailed, Cmd: cmd, Status: statusOf(err), Err: err}
	}
	return nil
}

// RequestValue asks the node for the value selected by cmd and reads it back.
// A partial response is never decoded.
func (d *Device) RequestValue(cmd protocol.Command) (float32, error) {
	if err := d.SendCommand(cmd); err != nil {
		return 0, err
	}
	d.sleep(d.settle)

	for i := range d.buf {
		d.buf[i] = 0
	}
	if cr, ok := d.bus.(CountingReader); ok {
		n, err := cr.ReadFrom(d.Address, d.buf[:])
		if err != nil || n != protocol.ValueSize {
			return 0, &BusError{C: errcode.ShortRead, Cmd: cmd, Status: statusOf(err), Got: n, Err: err}
		}
	} else if err := d.bus.Tx(d.Address, nil, d.buf[:]); err != nil {
		return 0, &BusError{C: errcode.ShortRead, Cmd: cmd, Status: statusOf(err), Err: err}
	}
	return protocol.DecodeValue(d.buf[:]), nil
}

// Acidity reads quantity A.
func (d *Device) Acidity() (float32, error) { return d.RequestValue(protocol.RequestAcidity) }

// Ultraviolet reads quantity B.
func (d *Device) Ultraviolet() (float32, error) { return d.RequestValue(protocol.RequestUltraviolet) }

func statusOf(err error) int {
	if err == nil {
		return -1
	}
	var s interface{ Status() int }
	if errors.As(err, &s) {
		return s.Status()
	}
	return -1
}
