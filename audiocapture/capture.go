// Package audiocapture acquires a raw audio stream and exposes it as a
// sequence of fixed-size float32 frames at a fixed sample rate.
//
// Acquisition tries loopback (tab/system output) capture first, because
// it needs no echo cancellation and keeps speaker output recognizable.
// If loopback is unavailable it falls back to microphone capture with
// echo cancellation and auto-gain disabled but noise suppression on.
package audiocapture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/60cod/realtime-translator/internal/metrics"
	"github.com/60cod/realtime-translator/internal/types"
)

// Sentinel errors.
var (
	// ErrAlreadyCapturing is returned by Start while a capture is active.
	ErrAlreadyCapturing = errors.New("already capturing audio")
	// ErrNoAudioBackend is returned when no backend could be acquired,
	// either because none exists on this platform or permission was denied.
	ErrNoAudioBackend = errors.New("no audio backend available")
)

// Options are the processing constraints requested from a backend.
type Options struct {
	EchoCancellation bool
	AutoGainControl  bool
	NoiseSuppression bool
}

// backend is a platform capture implementation. start must invoke the
// callback with frames of exactly frameSize samples in [-1, 1] until
// stop is called.
type backend interface {
	kind() types.SourceKind
	start(sampleRate, frameSize int, opts Options, callback func(samples []float32)) error
	stop() error
}

// Config holds configuration for audio capture.
type Config struct {
	SampleRate int           // default 16000 Hz
	FrameSize  int           // samples per callback, default 4096 (~256ms at 16kHz)
	BufferSize time.Duration // ring buffer duration, default 30 seconds

	// backends overrides the platform backend list; used by tests.
	backends []backend
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate: 16000,
		FrameSize:  4096,
		BufferSize: 30 * time.Second,
	}
}

// Capture holds an exclusive OS-level audio resource from Start until
// Stop and fans captured frames out to registered callbacks.
type Capture struct {
	mu sync.RWMutex

	sampleRate int
	frameSize  int

	capturing bool
	startTime time.Time
	source    types.SourceKind
	active    backend

	buffer   *RingBuffer
	meter    *Meter
	onFrame  []func(samples []float32)
	backends []backend
}

// New creates a new audio capture instance.
func New(cfg Config) (*Capture, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.FrameSize == 0 {
		cfg.FrameSize = 4096
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 30 * time.Second
	}

	backends := cfg.backends
	if backends == nil {
		backends = platformBackends()
	}

	return &Capture{
		sampleRate: cfg.SampleRate,
		frameSize:  cfg.FrameSize,
		buffer:     NewRingBuffer(int(cfg.BufferSize.Seconds()) * cfg.SampleRate),
		meter:      NewMeter(0),
		backends:   backends,
	}, nil
}

// Start acquires an audio backend and begins capturing. Backends are
// tried in preference order; the first that starts wins. Returns
// ErrNoAudioBackend (wrapped with each backend's failure) if none can
// be acquired.
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.capturing {
		return ErrAlreadyCapturing
	}

	var errs []error
	for _, b := range c.backends {
		err := b.start(c.sampleRate, c.frameSize, optionsFor(b.kind()), c.handleFrame)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.kind(), err))
			continue
		}

		c.active = b
		c.source = b.kind()
		c.capturing = true
		c.startTime = time.Now()
		c.meter.Reset()
		return nil
	}

	return fmt.Errorf("%w: %w", ErrNoAudioBackend, errors.Join(errs...))
}

// optionsFor returns the processing constraints for a source kind.
// Loopback audio must not be echo-cancelled or it would suppress the
// very signal being captured. Microphone keeps absolute levels (no AGC)
// but benefits from noise suppression.
func optionsFor(kind types.SourceKind) Options {
	if kind == types.SourceMicrophone {
		return Options{NoiseSuppression: true}
	}
	return Options{}
}

// Stop releases the audio backend. Safe to call when not capturing.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing {
		return nil
	}

	err := c.active.stop()
	c.capturing = false
	c.active = nil
	return err
}

// IsCapturing returns true if currently capturing audio.
func (c *Capture) IsCapturing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capturing
}

// Source returns which backend kind is (or was last) in use.
func (c *Capture) Source() types.SourceKind {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.source
}

// Duration returns how long capture has been running.
func (c *Capture) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.capturing {
		return 0
	}
	return time.Since(c.startTime)
}

// SampleRate returns the configured sample rate.
func (c *Capture) SampleRate() int {
	return c.sampleRate
}

// FrameSize returns the configured samples-per-frame.
func (c *Capture) FrameSize() int {
	return c.frameSize
}

// OnFrame registers a callback for captured frames. The callback
// receives float32 samples in the range [-1, 1] and must not retain
// the slice past its return.
func (c *Capture) OnFrame(callback func(samples []float32)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFrame = append(c.onFrame, callback)
}

// Level returns the RMS signal level of the most recent frame.
func (c *Capture) Level() float32 {
	return c.meter.Level()
}

// SilentFor returns how long the stream has stayed below the speech
// threshold, for diagnosing a wrongly acquired device.
func (c *Capture) SilentFor() time.Duration {
	return c.meter.SilentFor()
}

// GetBufferedAudio returns the last 'duration' of buffered audio.
func (c *Capture) GetBufferedAudio(duration time.Duration) []float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	samples := int(duration.Seconds() * float64(c.sampleRate))
	return c.buffer.Read(samples)
}

func (c *Capture) handleFrame(samples []float32) {
	c.mu.RLock()
	callbacks := c.onFrame
	c.mu.RUnlock()

	c.buffer.Write(samples)
	c.meter.Observe(samples)
	metrics.FramesCaptured.Inc()

	for _, cb := range callbacks {
		cb(samples)
	}
}
