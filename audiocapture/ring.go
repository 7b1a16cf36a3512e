package audiocapture

import "sync"

// RingBuffer is a thread-safe circular buffer for audio samples. It
// retains the most recent capacity samples; older samples are
// overwritten.
type RingBuffer struct {
	mu       sync.RWMutex
	data     []float32
	writePos int
	size     int
	filled   int
}

// NewRingBuffer creates a ring buffer holding up to size samples.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1
	}
	return &RingBuffer{
		data: make([]float32, size),
		size: size,
	}
}

// Write appends samples, overwriting the oldest when full.
func (rb *RingBuffer) Write(samples []float32) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for _, s := range samples {
		rb.data[rb.writePos] = s
		rb.writePos = (rb.writePos + 1) % rb.size
		if rb.filled < rb.size {
			rb.filled++
		}
	}
}

// Read returns a copy of the last n samples, or fewer if not enough
// have been written.
func (rb *RingBuffer) Read(n int) []float32 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n > rb.filled {
		n = rb.filled
	}
	if n == 0 {
		return nil
	}

	result := make([]float32, n)
	startPos := (rb.writePos - n + rb.size) % rb.size
	for i := 0; i < n; i++ {
		result[i] = rb.data[(startPos+i)%rb.size]
	}
	return result
}

// Clear empties the buffer.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.writePos = 0
	rb.filled = 0
}

// Len returns the number of samples currently retained.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.filled
}
