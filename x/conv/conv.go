// Package conv holds allocation-free number formatting for MCU log lines.
// Every helper writes into the tail of buf and returns the used slice.
package conv

const hexd = "0123456789ABCDEF"

// Utoa writes base-10 n. buf should be >= 20 bytes for uint64.
func Utoa(buf []byte, n uint64) []byte {
	if len(buf) == 0 {
		return buf[:0]
	}
	i := len(buf)
	if n == 0 {
		i--
		buf[i] = '0'
		return buf[i:]
	}
	for n > 0 && i > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return buf[i:]
}

// Itoa writes base-10 n with a leading '-' when negative.
func Itoa(buf []byte, n int64) []byte {
	if n >= 0 {
		return Utoa(buf, uint64(n))
	}
	s := Utoa(buf, uint64(-n))
	i := len(buf) - len(s)
	if i == 0 {
		return s
	}
	i--
	buf[i] = '-'
	return buf[i:]
}

// U8Hex writes two uppercase hex digits, no prefix.
func U8Hex(buf []byte, b byte) []byte {
	if len(buf) < 2 {
		return buf[:0]
	}
	i := len(buf) - 2
	buf[i] = hexd[b>>4]
	buf[i+1] = hexd[b&0xF]
	return buf[i:]
}

// Fixed writes f rounded to prec decimals (prec 0..6). NaN and values
// beyond int64 range are written as "nan"/"inf".
func Fixed(buf []byte, f float32, prec int) []byte {
	if prec < 0 {
		prec = 0
	}
	if prec > 6 {
		prec = 6
	}
	v := float64(f)
	if v != v {
		return tail(buf, "nan")
	}
	neg := v < 0
	if neg {
		v = -v
	}
	scale := uint64(1)
	for i := 0; i < prec; i++ {
		scale *= 10
	}
	if v*float64(scale) > 9.2e18 {
		return tail(buf, "inf")
	}
	scaled := uint64(v*float64(scale) + 0.5)
	ip, fp := scaled/scale, scaled%scale

	i := len(buf)
	for d := 0; d < prec && i > 0; d++ {
		i--
		buf[i] = byte('0' + fp%10)
		fp /= 10
	}
	if prec > 0 && i > 0 {
		i--
		buf[i] = '.'
	}
	s := Utoa(buf[:i], ip)
	i -= len(s)
	if neg && scaled != 0 && i > 0 {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}

func tail(buf []byte, s string) []byte {
	if len(buf) < len(s) {
		return buf[:0]
	}
	i := len(buf) - len(s)
	copy(buf[i:], s)
	return buf[i:]
}
