package pcm

import (
	"testing"
	"time"
)

func TestEncodeBoundaries(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		want   uint16 // little-endian value read back as uint16
	}{
		{"positive_full_scale", 1.0, 0x7FFF},
		{"negative_full_scale", -1.0, 0x8000},
		{"zero", 0.0, 0x0000},
		{"clamped_above", 2.5, 0x7FFF},
		{"clamped_below", -3.0, 0x8000},
		{"half_positive", 0.5, 0x3FFF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Encode([]float32{tt.sample})
			if len(out) != 2 {
				t.Fatalf("len = %d, want 2", len(out))
			}
			got := uint16(out[0]) | uint16(out[1])<<8
			if got != tt.want {
				t.Errorf("Encode(%v) = %#04x, want %#04x", tt.sample, got, tt.want)
			}
		})
	}
}

func TestEncodeLength(t *testing.T) {
	// Concatenated encoded chunks must be exactly 2 bytes per sample.
	frames := [][]float32{
		make([]float32, 4096),
		make([]float32, 4096),
		make([]float32, 100),
		nil,
	}

	total := 0
	samples := 0
	for _, f := range frames {
		total += len(Encode(f))
		samples += len(f)
	}

	if total != samples*BytesPerSample {
		t.Errorf("total encoded bytes = %d, want %d", total, samples*BytesPerSample)
	}
}

func TestRoundTrip(t *testing.T) {
	in := []float32{-1, -0.5, -0.25, 0, 0.25, 0.5, 1}
	out := Decode(Encode(in))

	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		diff := out[i] - in[i]
		if diff < 0 {
			diff = -diff
		}
		if diff > 1.0/32767 {
			t.Errorf("sample %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestDuration(t *testing.T) {
	// 4096 samples at 16kHz is 256ms.
	got := Duration(4096*BytesPerSample, 16000)
	if got != 256*time.Millisecond {
		t.Errorf("Duration = %v, want 256ms", got)
	}

	if Duration(100, 0) != 0 {
		t.Error("Duration with zero sample rate should be 0")
	}
}
