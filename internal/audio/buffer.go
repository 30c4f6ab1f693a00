package audio

import (
	"sync"
)

// Accumulator collects μ-law payload bytes for one call until a window is full
type Accumulator struct {
	buffer    []byte
	threshold int
	mu        sync.Mutex
}

// NewAccumulator creates an accumulator that flushes once threshold bytes are held
func NewAccumulator(threshold int) *Accumulator {
	return &Accumulator{
		buffer:    make([]byte, 0, threshold),
		threshold: threshold,
	}
}

// Append adds payload to the buffer. When the buffer reaches the threshold its
// whole content is returned and the buffer is cleared in the same critical section,
// so two windows never overlap. Otherwise Append returns nil.
func (a *Accumulator) Append(payload []byte) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buffer = append(a.buffer, payload...)
	if len(a.buffer) < a.threshold {
		return nil
	}

	window := a.buffer
	a.buffer = make([]byte, 0, a.threshold)
	return window
}

// Drain returns whatever is buffered and clears it, or nil when empty
func (a *Accumulator) Drain() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.buffer) == 0 {
		return nil
	}
	window := a.buffer
	a.buffer = make([]byte, 0, a.threshold)
	return window
}

// Len returns the number of buffered bytes
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buffer)
}
