//go:build linux

// Package i2cdev exposes a Linux /dev/i2c-N adapter as a tinygo.org/x/drivers
// I2C bus, so the same device drivers run on the hub host and on MCUs.
package i2cdev

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"floraseven/errcode"
)

// ioctl requests from <linux/i2c-dev.h>.
const (
	ioctlSlave = 0x0703
	ioctlRdwr  = 0x0707

	flagRead = 0x0001
)

// Error carries the errno of a failed transfer. Status is the raw errno.
type Error struct {
	Op    string
	Addr  uint16
	Errno unix.Errno
}

func (e *Error) Error() string { return "i2cdev: " + e.Op + ": " + e.Errno.Error() }
func (e *Error) Unwrap() error { return e.Errno }
func (e *Error) Status() int   { return int(e.Errno) }

// Bus is one open adapter. Transfers are serialised.
type Bus struct {
	mu   sync.Mutex
	fd   int
	path string
	addr int
}

// Open opens an adapter such as "/dev/i2c-1".
func Open(path string) (*Bus, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, errcode.Wrap(errcode.InvalidConfig, "i2cdev.open "+path, err)
	}
	return &Bus{fd: fd, path: path, addr: -1}, nil
}

func (b *Bus) Path() string { return b.path }

// Close releases the adapter.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fd < 0 {
		return nil
	}
	err := unix.Close(b.fd)
	b.fd = -1
	return err
}

// Tx implements drivers.I2C. With both w and r set it issues a combined
// write/read with a repeated start.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case len(w) > 0 && len(r) > 0:
		return b.rdwr(addr, w, r)
	case len(w) > 0:
		if err := b.target(addr); err != nil {
			return err
		}
		n, err := unix.Write(b.fd, w)
		if err != nil {
			return &Error{Op: "write", Addr: addr, Errno: errnoOf(err)}
		}
		if n != len(w) {
			return &Error{Op: "write", Addr: addr, Errno: unix.EIO}
		}
		return nil
	case len(r) > 0:
		n, err := b.read(addr, r)
		if err != nil {
			return err
		}
		if n != len(r) {
			return &Error{Op: "read", Addr: addr, Errno: unix.EIO}
		}
		return nil
	}
	return nil
}

// ReadFrom performs a bare read and reports how many bytes arrived.
func (b *Bus) ReadFrom(addr uint16, buf []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.read(addr, buf)
}

func (b *Bus) read(addr uint16, buf []byte) (int, error) {
	if err := b.target(addr); err != nil {
		return 0, err
	}
	n, err := unix.Read(b.fd, buf)
	if err != nil {
		return 0, &Error{Op: "read", Addr: addr, Errno: errnoOf(err)}
	}
	return n, nil
}

func (b *Bus) target(addr uint16) error {
	if b.addr == int(addr) {
		return nil
	}
	if err := unix.IoctlSetInt(b.fd, ioctlSlave, int(addr)); err != nil {
		return &Error{Op: "select", Addr: addr, Errno: errnoOf(err)}
	}
	b.addr = int(addr)
	return nil
}

// struct i2c_msg and struct i2c_rdwr_ioctl_data.
type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type rdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

func (b *Bus) rdwr(addr uint16, w, r []byte) error {
	msgs := [2]i2cMsg{
		{addr: addr, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))},
		{addr: addr, flags: flagRead, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))},
	}
	data := rdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: 2}
	_, _, e := unix.Syscall(unix.SYS_IOCTL, uintptr(b.fd), ioctlRdwr, uintptr(unsafe.Pointer(&data)))
	if e != 0 {
		return &Error{Op: "rdwr", Addr: addr, Errno: e}
	}
	return nil
}

func errnoOf(err error) unix.Errno {
	if e, ok := err.(unix.Errno); ok {
		return e
	}
	return unix.EIO
}
