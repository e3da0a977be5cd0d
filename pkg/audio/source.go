package audio

import (
	"context"
	"io"
	"sync"
)

// FrameSource produces an ordered, non-restartable sequence of frames.
type FrameSource interface {
	// ReadFrame blocks until the next frame is available. It returns
	// ErrStreamInterrupted if the underlying stream drops, io.EOF when a
	// finite source is exhausted, or ctx.Err() when ctx is done.
	ReadFrame(ctx context.Context) (Frame, error)

	// Close releases the device. ReadFrame must not be called afterwards.
	Close() error
}

// SliceSource replays a fixed list of frames. It is used to feed recorded or
// synthetic audio through the pipeline.
type SliceSource struct {
	mu     sync.Mutex
	frames []Frame
	next   int

	// Err is returned once all frames are consumed. Defaults to io.EOF.
	Err error

	// Hold blocks ReadFrame after the last frame until ctx is done, mimicking a
	// live device that has gone quiet.
	Hold bool
}

// NewSliceSource builds a source from frames, renumbering them sequentially.
func NewSliceSource(frames []Frame) *SliceSource {
	out := make([]Frame, len(frames))
	for i, f := range frames {
		f.Seq = uint64(i)
		out[i] = f
	}
	return &SliceSource{frames: out}
}

// ReadFrame implements FrameSource.
func (s *SliceSource) ReadFrame(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()
	if s.next < len(s.frames) {
		f := s.frames[s.next]
		s.next++
		s.mu.Unlock()
		return f, nil
	}
	hold, err := s.Hold, s.Err
	s.mu.Unlock()

	if hold {
		<-ctx.Done()
		return Frame{}, ctx.Err()
	}
	if err == nil {
		err = io.EOF
	}
	return Frame{}, err
}

// Remaining returns how many frames have not been read yet.
func (s *SliceSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames) - s.next
}

// Close implements FrameSource.
func (s *SliceSource) Close() error {
	return nil
}

// ToneFrames returns n frames of frameSamples samples each, filled with a
// constant amplitude. Handy for building deterministic fixtures.
func ToneFrames(n, frameSamples, sampleRate int, amplitude int16) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		samples := make([]int16, frameSamples)
		for j := range samples {
			if j%2 == 0 {
				samples[j] = amplitude
			} else {
				samples[j] = -amplitude
			}
		}
		frames[i] = Frame{Seq: uint64(i), Samples: samples, SampleRate: sampleRate}
	}
	return frames
}
