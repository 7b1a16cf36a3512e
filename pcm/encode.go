// Package pcm converts floating-point audio frames into the PCM16
// little-endian wire format the recognition service expects.
package pcm

import "time"

// BytesPerSample is the size of one encoded sample (16-bit).
const BytesPerSample = 2

// Encode converts float32 samples in [-1, 1] to 16-bit signed
// little-endian bytes. Samples are clamped first; negative values scale
// by 32768 and non-negative values by 32767 so both ends of the range
// map onto the full int16 range without overflow.
func Encode(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}

		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}

		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

// Decode converts 16-bit signed little-endian bytes back to float32
// samples. A trailing odd byte is ignored. Useful for tests and for
// inspecting captured audio.
func Decode(data []byte) []float32 {
	n := len(data) / BytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
		if v < 0 {
			out[i] = float32(v) / 32768
		} else {
			out[i] = float32(v) / 32767
		}
	}
	return out
}

// Duration returns the play time of an encoded chunk at the given
// sample rate (mono).
func Duration(encodedBytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := encodedBytes / BytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
