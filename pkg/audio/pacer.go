package audio

import (
	"context"
	"fmt"
	"time"
)

// PacedSource releases frames from an underlying source at a fixed
// real-time interval of one frame duration. It makes a replayed recording
// behave like a live device. A consumer that falls behind is not caught up
// with a burst; the schedule restarts from the late read.
type PacedSource struct {
	src  FrameSource
	next time.Time
	now  func() time.Time
}

var _ FrameSource = (*PacedSource)(nil)

// NewPacedSource wraps src.
func NewPacedSource(src FrameSource) *PacedSource {
	return &PacedSource{src: src, now: time.Now}
}

// ReadFrame implements FrameSource.
func (p *PacedSource) ReadFrame(ctx context.Context) (Frame, error) {
	f, err := p.src.ReadFrame(ctx)
	if err != nil {
		return Frame{}, err
	}

	now := p.now()
	if p.next.Before(now) {
		p.next = now
	}
	if wait := p.next.Sub(now); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		}
	}
	p.next = p.next.Add(f.Duration())
	return f, nil
}

// Close implements FrameSource.
func (p *PacedSource) Close() error {
	return p.src.Close()
}

// OpenReplay loads a mono 16-bit WAV recording as a paced source producing
// frames of frameSamples. The recording must already be at sampleRate. Once
// the recording ends the source goes quiet instead of ending, like an idle
// microphone.
func OpenReplay(path string, sampleRate, frameSamples int) (*PacedSource, error) {
	samples, rate, err := ReadWAV(path)
	if err != nil {
		return nil, err
	}
	if rate != sampleRate {
		return nil, fmt.Errorf("%s is %d Hz, want %d Hz", path, rate, sampleRate)
	}
	src := NewSliceSource(FramesFromPCM(samples, rate, frameSamples))
	src.Hold = true
	return NewPacedSource(src), nil
}
