package sensornode

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/bh1750"
)

// W1Thermometer reads a DS18B20 through the Linux w1 sysfs interface, e.g.
// /sys/bus/w1/devices/28-xxxxxxxxxxxx/w1_slave.
type W1Thermometer struct {
	Path string
}

var errW1CRC = errors.New("w1: crc check failed")

func (w W1Thermometer) Celsius() (float64, error) {
	b, err := os.ReadFile(w.Path)
	if err != nil {
		return 0, err
	}
	return parseW1(string(b))
}

// parseW1 decodes the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1(s string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) < 2 {
		return 0, errors.New("w1: short read")
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, errW1CRC
	}
	i := strings.LastIndex(lines[1], "t=")
	if i < 0 {
		return 0, errors.New("w1: no temperature field")
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][i+2:]))
	if err != nil {
		return 0, err
	}
	return float64(milli) / 1000, nil
}

// BH1750Meter reads an ambient light sensor on a two-wire bus.
type BH1750Meter struct {
	bus *errBus
	dev bh1750.Device
}

// NewBH1750 configures the sensor for continuous high-resolution readings.
func NewBH1750(bus drivers.I2C) (*BH1750Meter, error) {
	eb := &errBus{I2C: bus}
	m := &BH1750Meter{bus: eb, dev: bh1750.New(eb)}
	m.dev.Configure()
	if err := eb.take(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *BH1750Meter) Lux() (float64, error) {
	mlx := m.dev.Illuminance()
	if err := m.bus.take(); err != nil {
		return 0, err
	}
	return float64(mlx) / 1000, nil
}

// errBus remembers the first failed transaction, which the bh1750 driver
// does not report.
type errBus struct {
	drivers.I2C
	err error
}

func (b *errBus) Tx(addr uint16, w, r []byte) error {
	err := b.I2C.Tx(addr, w, r)
	if err != nil && b.err == nil {
		b.err = err
	}
	return err
}

func (b *errBus) take() error {
	err := b.err
	b.err = nil
	return err
}

// IIOADC reads raw counts from a Linux industrial I/O converter, e.g.
// /sys/bus/iio/devices/iio:device0.
type IIOADC struct {
	Dir string
}

func (a IIOADC) Read(ch int) (int, error) {
	b, err := os.ReadFile(filepath.Join(a.Dir, "in_voltage"+strconv.Itoa(ch)+"_raw"))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(b)))
}

// StaticADC returns fixed counts per channel; for bench runs without a
// converter attached.
type StaticADC map[int]int

func (a StaticADC) Read(ch int) (int, error) {
	v, ok := a[ch]
	if !ok {
		return 0, errors.New("adc: no such channel " + strconv.Itoa(ch))
	}
	return v, nil
}
