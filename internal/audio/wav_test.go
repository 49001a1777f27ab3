package audio

import (
	"math"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 0.999, -0.999}
	data, err := EncodeWAV(samples, 24000)
	if err != nil {
		t.Fatalf("EncodeWAV error: %v", err)
	}
	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV error: %v", err)
	}
	if rate != 24000 {
		t.Fatalf("expected sample rate 24000, got %d", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(decoded))
	}
	for i, want := range samples {
		if math.Abs(float64(decoded[i]-want)) > 1.0/32767 {
			t.Fatalf("sample %d: got %f, want %f", i, decoded[i], want)
		}
	}
}

func TestEncodeClipsOutOfRange(t *testing.T) {
	data, err := EncodeWAV([]float32{2.5, -2.5}, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV error: %v", err)
	}
	decoded, _, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV error: %v", err)
	}
	if decoded[0] < 0.99 || decoded[1] > -0.99 {
		t.Fatalf("expected clipped samples, got %v", decoded)
	}
}

func TestEncodeRejectsBadSampleRate(t *testing.T) {
	if _, err := EncodeWAV([]float32{0}, 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav file at all, really")); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}
