// Package sensornode runs the plant node's read-and-publish cycle.
package sensornode

import (
	"context"
	"encoding/json"
	"math"

	"go.uber.org/zap"

	"floraseven/errcode"
	"floraseven/types"
	"floraseven/x/mathx"
)

// Marker values published in place of a failed reading.
const (
	InvalidTemp  = -99.0
	InvalidLight = -1.0
)

// Soil probe sanity range, °C.
const (
	minTempC = -50.0
	maxTempC = 120.0
)

// 12-bit converter at 3.3 V.
const (
	adcFullScale = 4095
	adcVref      = 3.3
)

type Thermometer interface {
	Celsius() (float64, error)
}

type LightMeter interface {
	Lux() (float64, error)
}

// ADC reads one raw sample from a channel.
type ADC interface {
	Read(channel int) (int, error)
}

// Session is the broker session.
type Session interface {
	EnsureConnected(ctx context.Context) error
	Publish(topic string, payload []byte) error
}

// CycleObserver counts cycles. May be nil.
type CycleObserver interface {
	Cycle(err error)
}

type Channels struct {
	Moisture int
	UV       int
	EC       int
}

// ECCalibration is the two-point conductivity fit plus temperature
// compensation toward 25 °C.
type ECCalibration struct {
	ZeroVolts  float64 // distilled water
	KnownVolts float64 // standard solution
	KnownMsCm  float64 // standard solution conductivity
	TempCoeff  float64 // per °C
}

var DefaultECCalibration = ECCalibration{
	ZeroVolts:  0.15,
	KnownVolts: 1.85,
	KnownMsCm:  1.413,
	TempCoeff:  0.019,
}

type Config struct {
	Topic     string
	Channels  Channels
	Samples   int // per analog reading; default 8
	EC        ECCalibration
	PublishEC bool // include ec_comp_ms_cm
}

type Node struct {
	cfg   Config
	sess  Session
	temp  Thermometer
	light LightMeter
	adc   ADC
	obs   CycleObserver
	log   *zap.Logger
}

func New(cfg Config, sess Session, temp Thermometer, light LightMeter, adc ADC, obs CycleObserver, log *zap.Logger) *Node {
	if cfg.Samples <= 0 {
		cfg.Samples = 8
	}
	if cfg.EC == (ECCalibration{}) {
		cfg.EC = DefaultECCalibration
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{cfg: cfg, sess: sess, temp: temp, light: light, adc: adc, obs: obs, log: log.Named("sensornode")}
}

// Cycle connects if needed, reads every sensor and publishes one document.
// When the broker is unreachable the cycle is skipped.
func (n *Node) Cycle(ctx context.Context) (err error) {
	defer func() {
		if n.obs != nil {
			n.obs.Cycle(err)
		}
	}()
	if err := n.sess.EnsureConnected(ctx); err != nil {
		n.log.Warn("broker unavailable, skipping cycle", zap.Error(err))
		return err
	}

	doc := n.Read()
	payload, err := json.Marshal(doc)
	if err != nil {
		return errcode.Wrap(errcode.Error, "sensornode.encode", err)
	}
	if err := n.sess.Publish(n.cfg.Topic, payload); err != nil {
		n.log.Warn("publish failed", zap.Error(err))
		return err
	}
	n.log.Info("published", zap.ByteString("payload", payload))
	return nil
}

// Read samples every sensor. Failed readings are replaced by marker values.
func (n *Node) Read() types.PlantData {
	tempC, err := n.temp.Celsius()
	if err != nil || math.IsNaN(tempC) || !mathx.Between(tempC, minTempC, maxTempC) {
		n.log.Warn("invalid soil temperature", zap.Float64("celsius", tempC), zap.Error(err))
		tempC = InvalidTemp
	}

	lux, err := n.light.Lux()
	if err != nil || lux < 0 {
		n.log.Warn("light read failed", zap.Error(err))
		lux = InvalidLight
	}

	moisture := n.average(n.cfg.Channels.Moisture)
	uvVolts := mathx.ADCVolts(n.average(n.cfg.Channels.UV), adcFullScale, adcVref)
	ecVolts := mathx.ADCVolts(n.average(n.cfg.Channels.EC), adcFullScale, adcVref)

	ec, compensated := CompensatedEC(ecVolts, tempC, n.cfg.EC)
	if !compensated {
		n.log.Warn("using uncompensated EC, soil temperature invalid")
	}
	n.log.Debug("ec", zap.Float64("volts", ecVolts), zap.Float64("ms_cm", ec))

	doc := types.PlantData{
		TempSoilC:   mathx.Round(tempC, 1),
		MoistureRaw: moisture,
		LightLux:    math.Round(lux),
		UVVoltage:   mathx.Round(uvVolts, 2),
		ECVoltage:   mathx.Round(ecVolts, 3),
	}
	if n.cfg.PublishEC {
		v := mathx.Round(ec, 2)
		doc.ECCompMsCm = &v
	}
	return doc
}

// average returns the mean of the configured number of samples; failed
// samples are left out. With no good sample it returns 0.
func (n *Node) average(ch int) int {
	sum, good := 0, 0
	for i := 0; i < n.cfg.Samples; i++ {
		v, err := n.adc.Read(ch)
		if err != nil {
			continue
		}
		sum += v
		good++
	}
	if good == 0 {
		n.log.Warn("adc channel unreadable", zap.Int("channel", ch))
		return 0
	}
	return sum / good
}

// CompensatedEC converts the probe voltage to mS/cm and normalises it to 25 °C.
// compensated is false when tempC is a marker or the correction would divide by
// (nearly) zero; the measured value is then returned as is.
func CompensatedEC(volts, tempC float64, c ECCalibration) (ms float64, compensated bool) {
	span := c.KnownVolts - c.ZeroVolts
	if mathx.Abs(span) > 0.01 && volts > c.ZeroVolts {
		ms = c.KnownMsCm * (volts - c.ZeroVolts) / span
		if ms < 0 {
			ms = 0
		}
	}
	k := 1.0 + c.TempCoeff*(tempC-25.0)
	if tempC <= minTempC || mathx.Abs(k) <= 0.01 {
		return ms, false
	}
	return ms / k, true
}
