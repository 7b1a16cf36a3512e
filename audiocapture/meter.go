package audiocapture

import (
	"math"
	"sync"
	"time"
)

// DefaultSpeechThreshold is the RMS level above which a frame counts as
// speech rather than background noise.
const DefaultSpeechThreshold = 0.015

// Meter tracks the signal level of the capture stream. It is a
// diagnostic aid: a stream that stays silent for a long time usually
// means the wrong device was acquired.
type Meter struct {
	mu        sync.Mutex
	threshold float32
	level     float32
	lastVoice time.Time
}

// NewMeter creates a meter with the given speech threshold; zero uses
// DefaultSpeechThreshold.
func NewMeter(threshold float32) *Meter {
	if threshold == 0 {
		threshold = DefaultSpeechThreshold
	}
	return &Meter{threshold: threshold}
}

// Observe folds one frame into the meter and reports whether it
// contained speech-level signal.
func (m *Meter) Observe(samples []float32) bool {
	rms := calculateRMS(samples)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = rms
	voiced := rms > m.threshold
	if voiced {
		m.lastVoice = time.Now()
	}
	return voiced
}

// Level returns the RMS of the most recent frame.
func (m *Meter) Level() float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// SilentFor returns how long the stream has been below the speech
// threshold; zero if speech was present in the most recent frame or no
// frame has been observed yet.
func (m *Meter) SilentFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastVoice.IsZero() {
		return 0
	}
	return time.Since(m.lastVoice)
}

// Reset clears the meter state.
func (m *Meter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = 0
	m.lastVoice = time.Time{}
}

// calculateRMS calculates the root mean square of audio samples.
func calculateRMS(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}
