package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// PCM16ToFloat converts little-endian 16-bit PCM to normalized samples.
func PCM16ToFloat(pcmData []byte) ([]float32, error) {
	if len(pcmData)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}

	samples := make([]float32, len(pcmData)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(pcmData[i*2:]))) / pcmScale
	}
	return samples, nil
}

// FloatToPCM16 converts normalized samples to little-endian 16-bit PCM.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// Upsample2x doubles the sample rate by repeating every sample once.
// This is a deliberate approximation (8 kHz to 16 kHz for recognizers), not a resampler.
func Upsample2x(samples []float32) []float32 {
	out := make([]float32, len(samples)*2)
	for i, s := range samples {
		out[2*i] = s
		out[2*i+1] = s
	}
	return out
}

// Resample performs simple linear interpolation resampling
// Used to bring synthesizer output (e.g. 24kHz) down to the 8kHz call rate
func Resample(samples []float32, inputRate, outputRate int) []float32 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]float32, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio

		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}

		fraction := srcPos - float64(idx0)
		output[i] = float32(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// CalculateRMS calculates the root mean square of normalized samples on the 16-bit scale
// Useful for detecting audio levels and silence
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		v := float64(sample) * pcmScale
		sum += v * v
	}

	return math.Sqrt(sum / float64(len(samples)))
}

// Tone generates n samples of a sine wave at freq Hz
func Tone(freq, amplitude float64, n, sampleRate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}
