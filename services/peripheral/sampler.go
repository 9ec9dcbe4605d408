package peripheral

import "floraseven/x/mathx"

// 12-bit converter at 3.3 V.
const (
	adcFullScale = 4095
	adcVref      = 3.3
)

// PlaceholderSampler reports fixed values until the probes are calibrated.
type PlaceholderSampler struct{}

func (PlaceholderSampler) Sample() (float32, float32) { return 7.0, 0.5 }

// ADC is one analog channel. machine.ADC satisfies it; Get returns a
// left-aligned 16-bit reading.
type ADC interface {
	Get() uint16
}

// Calibration maps probe voltages to measured units.
type Calibration struct {
	// Acidity: voltages read in pH 7 and pH 4 buffer solutions.
	NeutralVolts float64
	AcidVolts    float64
	// Ultraviolet: sensor output range and the UV index it spans.
	UVMinVolts, UVMaxVolts float64
	UVMaxIndex             float64
}

// DefaultCalibration holds typical datasheet values; calibrate per probe.
var DefaultCalibration = Calibration{
	NeutralVolts: 2.50,
	AcidVolts:    3.05,
	UVMinVolts:   0.99,
	UVMaxVolts:   2.80,
	UVMaxIndex:   15.0,
}

// AcidityFromRaw converts a 12-bit reading with a two-point linear fit.
func AcidityFromRaw(raw int, c Calibration) float32 {
	v := mathx.ADCVolts(raw, adcFullScale, adcVref)
	return float32(mathx.MapFloat(v, c.NeutralVolts, c.AcidVolts, 7.0, 4.0))
}

// UVFromRaw converts a 12-bit reading to a UV index, clamped at zero.
func UVFromRaw(raw int, c Calibration) float32 {
	v := mathx.ADCVolts(raw, adcFullScale, adcVref)
	uv := mathx.MapFloat(v, c.UVMinVolts, c.UVMaxVolts, 0, c.UVMaxIndex)
	return float32(mathx.Clamp(uv, 0, c.UVMaxIndex))
}

// ADCSampler reads both probes and converts them.
type ADCSampler struct {
	Acidity     ADC
	Ultraviolet ADC
	Cal         Calibration
}

func (s ADCSampler) Sample() (float32, float32) {
	a := int(s.Acidity.Get() >> 4)
	u := int(s.Ultraviolet.Get() >> 4)
	return AcidityFromRaw(a, s.Cal), UVFromRaw(u, s.Cal)
}
