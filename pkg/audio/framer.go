package audio

import "fmt"

// Framer cuts an arbitrary stream of interleaved S16LE bytes into fixed-size
// mono frames. Only the first channel of multi-channel input is kept.
//
// Framer is not safe for concurrent use; the capture callback owns it.
type Framer struct {
	sampleRate   int
	channels     int
	frameSamples int

	pending []int16
	partial []byte // odd trailing bytes from the previous Write
	seq     uint64
}

// NewFramer creates a framer producing frames of frameSamples mono samples.
func NewFramer(sampleRate, channels, frameSamples int) (*Framer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}
	if frameSamples <= 0 {
		return nil, fmt.Errorf("invalid frame size: %d", frameSamples)
	}
	return &Framer{
		sampleRate:   sampleRate,
		channels:     channels,
		frameSamples: frameSamples,
		pending:      make([]int16, 0, frameSamples*2),
	}, nil
}

// Write appends raw device bytes and returns every complete frame they close.
func (fr *Framer) Write(b []byte) []Frame {
	if len(fr.partial) > 0 {
		b = append(fr.partial, b...)
		fr.partial = nil
	}

	stride := 2 * fr.channels
	whole := len(b) - len(b)%stride
	if whole < len(b) {
		fr.partial = append([]byte(nil), b[whole:]...)
	}

	interleaved := BytesToInt16(b[:whole])
	for i := 0; i < len(interleaved); i += fr.channels {
		fr.pending = append(fr.pending, interleaved[i])
	}

	var frames []Frame
	for len(fr.pending) >= fr.frameSamples {
		samples := make([]int16, fr.frameSamples)
		copy(samples, fr.pending[:fr.frameSamples])
		fr.pending = append(fr.pending[:0], fr.pending[fr.frameSamples:]...)

		frames = append(frames, Frame{
			Seq:        fr.seq,
			Samples:    samples,
			SampleRate: fr.sampleRate,
		})
		fr.seq++
	}
	return frames
}

// Buffered returns the number of mono samples waiting for a full frame.
func (fr *Framer) Buffered() int {
	return len(fr.pending)
}
