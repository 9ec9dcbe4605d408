// Package protocol defines the two-wire link between the hub (controller) and
// the pump node (peripheral).
//
// Every controller write is a single command byte. Data is fetched in two
// phases: the controller writes a Request* command, waits, then performs a
// bare read of exactly ValueSize bytes. The peripheral answers with the value
// selected by the last request, or Sentinel when none is pending.
//
// Values travel as IEEE-754 float32, little-endian, on both ends.
package protocol

import (
	"encoding/binary"
	"math"

	"floraseven/x/conv"
)

// Address is the pump node's 7-bit bus address.
const Address uint16 = 0x08

// ValueSize is the exact length of a read response.
const ValueSize = 4

// Sentinel is answered for a read with no (or an unrecognised) pending request.
const Sentinel float32 = -99.99

// Command is one frame on the bus.
type Command byte

const (
	PumpOff            Command = 0x00
	PumpOn             Command = 0x01
	RequestAcidity     Command = 0x10 // quantity A
	RequestUltraviolet Command = 0x11 // quantity B
)

// Known reports whether c belongs to the closed command set.
func (c Command) Known() bool {
	switch c {
	case PumpOff, PumpOn, RequestAcidity, RequestUltraviolet:
		return true
	default:
		return false
	}
}

// IsActuator reports whether c changes the pump output.
func (c Command) IsActuator() bool { return c == PumpOn || c == PumpOff }

// IsDataRequest reports whether c selects the value for the next read.
func (c Command) IsDataRequest() bool { return c == RequestAcidity || c == RequestUltraviolet }

func (c Command) String() string {
	switch c {
	case PumpOff:
		return "pump_off"
	case PumpOn:
		return "pump_on"
	case RequestAcidity:
		return "request_acidity"
	case RequestUltraviolet:
		return "request_ultraviolet"
	default:
		var b [2]byte
		return "unknown(0x" + string(conv.U8Hex(b[:], byte(c))) + ")"
	}
}

// EncodeValue serialises v into the wire form.
func EncodeValue(v float32) [ValueSize]byte {
	var out [ValueSize]byte
	binary.LittleEndian.PutUint32(out[:], math.Float32bits(v))
	return out
}

// DecodeValue is the inverse of EncodeValue. b must hold ValueSize bytes.
func DecodeValue(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[:ValueSize]))
}
