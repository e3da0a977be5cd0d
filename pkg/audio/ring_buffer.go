package audio

import "time"

// RingBuffer keeps the most recent frames up to a total duration. The VAD
// segmenter uses it to prepend pre-roll audio captured just before speech
// onset.
//
// RingBuffer is not safe for concurrent use.
type RingBuffer struct {
	frames   []Frame
	start    int
	count    int
	held     time.Duration
	capacity time.Duration
}

// NewRingBuffer creates a buffer holding up to capacity of audio.
// A zero capacity never holds anything.
func NewRingBuffer(capacity time.Duration) *RingBuffer {
	return &RingBuffer{capacity: capacity}
}

// Push appends a frame, evicting the oldest frames once the buffered
// duration would exceed capacity.
func (rb *RingBuffer) Push(f Frame) {
	d := f.Duration()
	if rb.capacity <= 0 || d > rb.capacity {
		rb.Clear()
		return
	}

	for rb.count > 0 && rb.held+d > rb.capacity {
		rb.held -= rb.frames[rb.start].Duration()
		rb.frames[rb.start] = Frame{}
		rb.start = (rb.start + 1) % len(rb.frames)
		rb.count--
	}

	if rb.count == len(rb.frames) {
		rb.grow()
	}
	rb.frames[(rb.start+rb.count)%len(rb.frames)] = f
	rb.count++
	rb.held += d
}

func (rb *RingBuffer) grow() {
	n := len(rb.frames) * 2
	if n == 0 {
		n = 4
	}
	next := make([]Frame, n)
	for i := 0; i < rb.count; i++ {
		next[i] = rb.frames[(rb.start+i)%len(rb.frames)]
	}
	rb.frames = next
	rb.start = 0
}

// Drain returns the buffered frames oldest first and empties the buffer.
func (rb *RingBuffer) Drain() []Frame {
	if rb.count == 0 {
		return nil
	}
	out := make([]Frame, rb.count)
	for i := range out {
		out[i] = rb.frames[(rb.start+i)%len(rb.frames)]
	}
	rb.Clear()
	return out
}

// Clear drops all buffered frames.
func (rb *RingBuffer) Clear() {
	for i := range rb.frames {
		rb.frames[i] = Frame{}
	}
	rb.start = 0
	rb.count = 0
	rb.held = 0
}

// Len returns the number of buffered frames.
func (rb *RingBuffer) Len() int {
	return rb.count
}

// Duration returns the buffered audio duration.
func (rb *RingBuffer) Duration() time.Duration {
	return rb.held
}

// Capacity returns the maximum buffered duration.
func (rb *RingBuffer) Capacity() time.Duration {
	return rb.capacity
}
