package audio

import "math"

const (
	mulawBias = 0x84  // 132, added before segment search and removed after expansion
	mulawClip = 32635 // largest magnitude that still fits segment 7 once biased
	pcmScale  = 32768.0
)

// EncodeMulaw converts normalized linear samples in [-1.0, 1.0] to G.711 μ-law bytes.
// Samples outside the range are clipped to the 16-bit signed range first.
func EncodeMulaw(samples []float32) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = LinearToMulaw(floatToInt16(s))
	}
	return out
}

// DecodeMulaw converts G.711 μ-law bytes to normalized linear samples.
func DecodeMulaw(data []byte) []float32 {
	out := make([]float32, len(data))
	for i, b := range data {
		out[i] = float32(MulawToLinear(b)) / pcmScale
	}
	return out
}

// LinearToMulaw encodes one 16-bit linear sample.
func LinearToMulaw(sample int16) byte {
	var sign byte
	magnitude := int32(sample)
	if magnitude < 0 {
		sign = 0x80
		magnitude = -magnitude
	}
	if magnitude > mulawClip {
		magnitude = mulawClip
	}
	magnitude += mulawBias

	// Smallest segment whose range holds the biased magnitude
	exponent := byte(7)
	for e := byte(0); e < 8; e++ {
		if magnitude < int32(0x100)<<e {
			exponent = e
			break
		}
	}

	mantissa := byte((magnitude >> (exponent + 3)) & 0x0F)
	return ^(sign | exponent<<4 | mantissa)
}

// MulawToLinear decodes one μ-law byte to a 16-bit linear sample.
func MulawToLinear(b byte) int16 {
	b = ^b
	sign := b & 0x80
	exponent := (b >> 4) & 0x07
	mantissa := int32(b & 0x0F)

	magnitude := ((mantissa<<3)+mulawBias)<<exponent - mulawBias
	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// MulawStep returns the quantization step of the segment a μ-law byte belongs to,
// on the normalized [-1.0, 1.0] scale.
func MulawStep(b byte) float64 {
	exponent := ((^b) >> 4) & 0x07
	return float64(int32(8)<<exponent) / pcmScale
}

func floatToInt16(s float32) int16 {
	v := math.Round(float64(s) * pcmScale)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
