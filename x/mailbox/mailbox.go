// Package mailbox provides a lock-free single-slot handoff for one byte,
// written from interrupt context and consumed by a cooperative loop.
//
// Producer: Post never blocks and never allocates; a value that was not yet
// taken is overwritten and counted. Consumer: Take swaps the slot empty and
// is the only way to read it, so "flag set" is the sole ownership arbiter.
package mailbox

import "sync/atomic"

const full = 1 << 8

// Byte is a single-slot byte mailbox. The zero value is empty and ready.
type Byte struct {
	slot       atomic.Uint32 // full bit | payload
	posts      atomic.Uint32
	overwrites atomic.Uint32
}

// Post stores b. It reports false when an untaken value was replaced.
func (m *Byte) Post(b byte) bool {
	m.posts.Add(1)
	old := m.slot.Swap(full | uint32(b))
	if old&full != 0 {
		m.overwrites.Add(1)
		return false
	}
	return true
}

// Take returns the pending value and clears the slot.
func (m *Byte) Take() (byte, bool) {
	v := m.slot.Swap(0)
	if v&full == 0 {
		return 0, false
	}
	return byte(v), true
}

// Pending reports whether a value is waiting, without consuming it.
func (m *Byte) Pending() bool { return m.slot.Load()&full != 0 }

// Posts is the total number of Post calls.
func (m *Byte) Posts() uint32 { return m.posts.Load() }

// Overwrites is the number of values replaced before they were taken.
func (m *Byte) Overwrites() uint32 { return m.overwrites.Load() }
