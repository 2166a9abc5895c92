package audio

import (
	"sync"
)

// Stream is a read-only view of live microphone audio. Readers see the most
// recent samples and never consume them.
type Stream interface {
	SampleRate() int
	Latest(n int) []int16
}

// History keeps the most recent samples of a live stream, overwriting the
// oldest once full
type History struct {
	buffer     []int16
	size       int
	write      int
	filled     bool
	sampleRate int
	mu         sync.RWMutex
}

// NewHistory creates a history holding up to size samples
func NewHistory(size, sampleRate int) *History {
	if size <= 0 {
		size = 1
	}
	return &History{
		buffer:     make([]int16, size),
		size:       size,
		sampleRate: sampleRate,
	}
}

// Write appends samples, dropping the oldest when the buffer is full
func (h *History) Write(samples []int16) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(samples) >= h.size {
		copy(h.buffer, samples[len(samples)-h.size:])
		h.write = 0
		h.filled = true
		return
	}
	for _, s := range samples {
		h.buffer[h.write] = s
		h.write++
		if h.write == h.size {
			h.write = 0
			h.filled = true
		}
	}
}

// Latest returns a copy of the newest n samples in order. When fewer have
// been written, the front is zero padded.
func (h *History) Latest(n int) []int16 {
	if n <= 0 {
		return nil
	}
	out := make([]int16, n)

	h.mu.RLock()
	defer h.mu.RUnlock()

	available := h.lenLocked()
	if n > available {
		n = available
	}
	start := (h.write - n + h.size) % h.size
	dst := out[len(out)-n:]
	for i := 0; i < n; i++ {
		dst[i] = h.buffer[(start+i)%h.size]
	}
	return out
}

// Len returns the number of valid samples
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lenLocked()
}

func (h *History) lenLocked() int {
	if h.filled {
		return h.size
	}
	return h.write
}

// SampleRate returns the sample rate of the stream
func (h *History) SampleRate() int {
	return h.sampleRate
}

// Clear discards all samples
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.write = 0
	h.filled = false
	for i := range h.buffer {
		h.buffer[i] = 0
	}
}
