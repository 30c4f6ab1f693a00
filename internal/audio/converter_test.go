package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestPCM16ToFloat(t *testing.T) {
	samples := []int16{0, 16384, -16384, 32767, -32768}
	pcmData := make([]byte, len(samples)*2)
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(pcmData[i*2:], uint16(sample))
	}

	out, err := PCM16ToFloat(pcmData)
	if err != nil {
		t.Fatalf("PCM16ToFloat failed: %v", err)
	}

	if len(out) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(out))
	}

	if out[1] != 0.5 || out[2] != -0.5 || out[4] != -1.0 {
		t.Errorf("Unexpected normalized samples: %v", out)
	}
}

func TestPCM16ToFloat_OddLength(t *testing.T) {
	if _, err := PCM16ToFloat([]byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd-length PCM data")
	}
}

func TestFloatToPCM16_RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.999, -1.0}
	back, err := PCM16ToFloat(FloatToPCM16(in))
	if err != nil {
		t.Fatalf("PCM16ToFloat failed: %v", err)
	}

	for i := range in {
		if math.Abs(float64(back[i]-in[i])) > 1.0/pcmScale {
			t.Errorf("Sample %d: expected %f, got %f", i, in[i], back[i])
		}
	}
}

func TestUpsample2x(t *testing.T) {
	out := Upsample2x([]float32{0.1, -0.2, 0.3})
	want := []float32{0.1, 0.1, -0.2, -0.2, 0.3, 0.3}

	if len(out) != len(want) {
		t.Fatalf("Expected %d samples, got %d", len(want), len(out))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, want[i], out[i])
		}
	}
}

func TestResample(t *testing.T) {
	// 0.1 seconds at 24kHz
	samples := make([]float32, 2400)
	for i := range samples {
		samples[i] = float32(i%100) / 100
	}

	out := Resample(samples, 24000, 8000)
	// Should have approximately 800 samples (0.1 seconds at 8kHz)
	if len(out) < 799 || len(out) > 801 {
		t.Errorf("Expected around 800 samples after resampling, got %d", len(out))
	}

	same := Resample(samples, 8000, 8000)
	if len(same) != len(samples) {
		t.Errorf("Expected no-op resample to keep %d samples, got %d", len(samples), len(same))
	}
}

func TestCalculateRMS(t *testing.T) {
	if rms := CalculateRMS(nil); rms != 0 {
		t.Errorf("Expected RMS 0 for empty input, got %f", rms)
	}

	samples := make([]float32, 160)
	for i := range samples {
		samples[i] = 0.5
	}
	if rms := CalculateRMS(samples); math.Abs(rms-16384) > 0.01 {
		t.Errorf("Expected RMS 16384, got %f", rms)
	}

	for i := range samples {
		if i%2 == 0 {
			samples[i] = 0.5
		} else {
			samples[i] = -0.5
		}
	}
	if rms := CalculateRMS(samples); math.Abs(rms-16384) > 0.01 {
		t.Errorf("Expected RMS 16384 for alternating signal, got %f", rms)
	}
}

func TestTone(t *testing.T) {
	samples := Tone(1000, 0.5, 8000, 8000)
	if len(samples) != 8000 {
		t.Fatalf("Expected 8000 samples, got %d", len(samples))
	}
	if samples[0] != 0 {
		t.Errorf("Expected tone to start at 0, got %f", samples[0])
	}
	// quarter period of 1 kHz at 8 kHz is 2 samples
	if math.Abs(float64(samples[2])-0.5) > 1e-6 {
		t.Errorf("Expected peak 0.5 at sample 2, got %f", samples[2])
	}

	// RMS of a sine is amplitude / sqrt(2)
	want := 0.5 / math.Sqrt2 * 32768
	if rms := CalculateRMS(samples); math.Abs(rms-want) > 1 {
		t.Errorf("Expected RMS %f, got %f", want, rms)
	}
}
