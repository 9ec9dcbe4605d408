// Package camera models the hub's camera subsystem: a sensor that fills frame
// buffers and a small fixed pool of those buffers.
//
// Buffers are scarce. Every FrameBuffer handed out by Acquire must go back
// through Release exactly once; a leaked buffer permanently lowers capture
// capacity, which Outstanding makes visible.
package camera

import (
	"bytes"
	"errors"
	"image/jpeg"
	"os"
	"strconv"
	"sync"

	"floraseven/errcode"
)

// Format is the pixel encoding of a frame.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatRGB565
	FormatGrayscale
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatRGB565:
		return "rgb565"
	case FormatGrayscale:
		return "grayscale"
	default:
		return "unknown"
	}
}

// Frame describes what a Sensor wrote into a buffer.
type Frame struct {
	N      int
	Width  int
	Height int
	Format Format
}

// Sensor fills dst with one frame.
type Sensor interface {
	Grab(dst []byte) (Frame, error)
}

// FrameBuffer is one captured image borrowed from a Pool.
type FrameBuffer struct {
	Data   []byte
	Width  int
	Height int
	Format Format

	buf []byte
}

func (fb *FrameBuffer) Len() int { return len(fb.Data) }

// Resolution renders "WxH".
func (fb *FrameBuffer) Resolution() string {
	return strconv.Itoa(fb.Width) + "x" + strconv.Itoa(fb.Height)
}

// -----------------------------------------------------------------------------
// Pool
// -----------------------------------------------------------------------------

// Config sizes the pool. Zero fields take defaults.
type Config struct {
	Buffers       int // default 1
	MaxFrameBytes int // default 512 KiB
}

const (
	defaultBuffers       = 1
	defaultMaxFrameBytes = 512 << 10
)

type Pool struct {
	sensor Sensor

	mu          sync.Mutex
	free        []*FrameBuffer
	out         map[*FrameBuffer]struct{}
	badReleases int
	lastErr     error
}

// NewPool allocates the buffers and probes the sensor with one grab. A probe
// failure means the camera is unusable.
func NewPool(s Sensor, cfg Config) (*Pool, error) {
	if cfg.Buffers <= 0 {
		cfg.Buffers = defaultBuffers
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = defaultMaxFrameBytes
	}
	p := &Pool{
		sensor: s,
		out:    make(map[*FrameBuffer]struct{}, cfg.Buffers),
	}
	for i := 0; i < cfg.Buffers; i++ {
		p.free = append(p.free, &FrameBuffer{buf: make([]byte, cfg.MaxFrameBytes)})
	}
	if _, err := s.Grab(p.free[0].buf); err != nil {
		return nil, errcode.Wrap(errcode.BufferUnavailable, "camera.probe", err)
	}
	return p, nil
}

// Acquire captures a frame into a free buffer. It returns nil when every
// buffer is outstanding or the sensor fails; LastError tells which.
func (p *Pool) Acquire() *FrameBuffer {
	p.mu.Lock()
	if len(p.free) == 0 {
		p.lastErr = errPoolExhausted
		p.mu.Unlock()
		return nil
	}
	fb := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.mu.Unlock()

	f, err := p.sensor.Grab(fb.buf)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.free = append(p.free, fb)
		p.lastErr = err
		return nil
	}
	fb.Data = fb.buf[:f.N]
	fb.Width, fb.Height, fb.Format = f.Width, f.Height, f.Format
	p.out[fb] = struct{}{}
	p.lastErr = nil
	return fb
}

// Release returns fb to the pool. Releasing nil, a foreign buffer, or the
// same buffer twice is ignored and counted.
func (p *Pool) Release(fb *FrameBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.out[fb]; !ok {
		p.badReleases++
		return
	}
	delete(p.out, fb)
	fb.Data = nil
	p.free = append(p.free, fb)
}

// Outstanding is the number of acquired, unreleased buffers.
func (p *Pool) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.out)
}

// BadReleases counts ignored Release calls.
func (p *Pool) BadReleases() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.badReleases
}

// LastError is the reason the most recent Acquire returned nil.
func (p *Pool) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

var errPoolExhausted = errors.New("camera: no free frame buffer")

// -----------------------------------------------------------------------------
// FileSensor
// -----------------------------------------------------------------------------

// FileSensor serves the JPEG still at Path, re-reading it on every grab so an
// external capture tool can refresh it.
type FileSensor struct {
	Path string
}

func (s FileSensor) Grab(dst []byte) (Frame, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Frame{}, err
	}
	if len(data) > len(dst) {
		return Frame{}, errors.New("camera: frame of " + strconv.Itoa(len(data)) + " bytes exceeds buffer")
	}
	n := copy(dst, data)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// Not a JPEG: hand it on raw and let the consumer reject the format.
		return Frame{N: n, Format: FormatUnknown}, nil
	}
	return Frame{N: n, Width: cfg.Width, Height: cfg.Height, Format: FormatJPEG}, nil
}
