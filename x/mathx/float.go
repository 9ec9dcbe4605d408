package mathx

import "math"

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

// MapFloat linearly maps x from [inMin,inMax] to [outMin,outMax].
// A degenerate input range yields outMin.
func MapFloat(x, inMin, inMax, outMin, outMax float64) float64 {
	if inMax == inMin {
		return outMin
	}
	return (x-inMin)*(outMax-outMin)/(inMax-inMin) + outMin
}

// ADCVolts converts a raw ADC count to volts for a converter of the given
// resolution (e.g. 4095 for 12-bit) and reference voltage.
func ADCVolts(raw int, fullScale int, vref float64) float64 {
	if fullScale <= 0 {
		return 0
	}
	return float64(raw) * (vref / float64(fullScale))
}
