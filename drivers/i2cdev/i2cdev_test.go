//go:build linux

package i2cdev

import (
	"errors"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"floraseven/errcode"
)

func TestOpenMissingAdapter(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "i2c-99"))
	if !errors.Is(err, errcode.InvalidConfig) {
		t.Fatalf("err = %v, want invalid_config", err)
	}
	if !errors.Is(err, unix.ENOENT) {
		t.Fatalf("cause lost: %v", err)
	}
}

func TestErrorStatusIsErrno(t *testing.T) {
	var err error = &Error{Op: "write", Addr: 0x08, Errno: unix.EREMOTEIO}
	var s interface{ Status() int }
	if !errors.As(err, &s) || s.Status() != int(unix.EREMOTEIO) {
		t.Fatalf("Status not exposed: %v", err)
	}
	if !errors.Is(err, unix.EREMOTEIO) {
		t.Fatal("errno not unwrappable")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	// A regular file stands in for the adapter; only open/close are exercised.
	p := filepath.Join(t.TempDir(), "i2c-0")
	fd, err := unix.Open(p, unix.O_CREAT|unix.O_RDWR, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	unix.Close(fd)

	b, err := Open(p)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.Path() != p {
		t.Fatalf("Path = %q", b.Path())
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
