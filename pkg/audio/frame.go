// Package audio provides microphone capture and the PCM frame/segment types
// that flow through the dictation pipeline.
//
// A FrameSource produces fixed-duration mono 16-bit frames in strict sequence
// order. The VAD segmenter folds frames into Segments, which are then handed
// to the transcription dispatcher.
//
// Usage:
//
//	src, err := audio.OpenCapture(audio.DefaultCaptureConfig(), slog.Default())
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
//
//	for {
//	    frame, err := src.ReadFrame(ctx)
//	    ...
//	}
package audio

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDeviceUnavailable is returned when the input device cannot be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrStreamInterrupted is returned when the capture stream stops delivering
	// audio mid-read. The source cannot be restarted after this error.
	ErrStreamInterrupted = errors.New("audio stream interrupted")
)

// Frame is a fixed-duration slice of mono 16-bit PCM samples.
// Frames are immutable once produced.
type Frame struct {
	// Seq increases by one for every frame a source produces.
	Seq uint64

	Samples    []int16
	SampleRate int
}

// Duration returns the playback duration of the frame.
func (f Frame) Duration() time.Duration {
	return SamplesDuration(len(f.Samples), f.SampleRate)
}

// Float32 returns the samples normalized to [-1, 1).
func (f Frame) Float32() []float32 {
	return Int16ToFloat32(f.Samples)
}

// Segment is a contiguous run of speech frames closed by a silence gap
// (or by an explicit flush).
type Segment struct {
	ID         uuid.UUID
	Frames     []Frame
	SampleRate int

	// StartSeq and EndSeq are the sequence numbers of the first and last frame.
	StartSeq uint64
	EndSeq   uint64

	// Speech is the span from speech onset to the last frame scored as speech.
	Speech time.Duration

	// Flushed is set when the segment was closed by a Stop rather than by silence.
	Flushed     bool
	FinalizedAt time.Time
}

// Duration returns the total audio duration carried by the segment.
func (s *Segment) Duration() time.Duration {
	var d time.Duration
	for _, f := range s.Frames {
		d += f.Duration()
	}
	return d
}

// PCM concatenates the frames into a single sample slice.
func (s *Segment) PCM() []int16 {
	n := 0
	for _, f := range s.Frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range s.Frames {
		out = append(out, f.Samples...)
	}
	return out
}

// SamplesDuration converts a sample count at the given rate into a duration.
func SamplesDuration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// Int16ToFloat32 converts signed 16-bit samples to float32 in [-1, 1).
func Int16ToFloat32(in []int16) []float32 {
	out := make([]float32, len(in))
	for i, s := range in {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// BytesToInt16 decodes little-endian 16-bit PCM.
func BytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

// Int16ToBytes encodes samples as little-endian 16-bit PCM.
func Int16ToBytes(in []int16) []byte {
	out := make([]byte, len(in)*2)
	for i, s := range in {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
