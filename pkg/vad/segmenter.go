package vad

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/realtime-ai/asr-indicator/pkg/audio"
)

// SegmenterConfig controls how per-frame scores become segments.
type SegmenterConfig struct {
	// SpeechThreshold opens a segment on the first frame with
	// score >= SpeechThreshold.
	SpeechThreshold float32

	// HangoverMargin lowers the threshold while a segment is open: frames
	// scoring at least SpeechThreshold-HangoverMargin still count as speech.
	// Zero disables hangover.
	HangoverMargin float32

	// SilenceDuration of consecutive non-speech audio closes a segment.
	SilenceDuration time.Duration

	// MinSegment discards segments whose speech span is shorter.
	MinSegment time.Duration

	// MaxSegment force-closes a segment once it grows this long. Zero
	// means unlimited.
	MaxSegment time.Duration

	// PreRoll prepends up to this much audio from before speech onset.
	PreRoll time.Duration

	// TrailingPad keeps up to this much of the closing silence.
	TrailingPad time.Duration
}

// DefaultSegmenterConfig returns the defaults used by the service.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		SpeechThreshold: 0.5,
		HangoverMargin:  0.15,
		SilenceDuration: 700 * time.Millisecond,
		MinSegment:      100 * time.Millisecond,
	}
}

// Validate checks the thresholds and durations.
func (c SegmenterConfig) Validate() error {
	if c.SpeechThreshold < 0 || c.SpeechThreshold > 1 {
		return fmt.Errorf("speech threshold %v outside [0, 1]", c.SpeechThreshold)
	}
	if c.HangoverMargin < 0 || c.HangoverMargin > c.SpeechThreshold {
		return fmt.Errorf("hangover margin %v outside [0, speech threshold]", c.HangoverMargin)
	}
	if c.SilenceDuration <= 0 {
		return fmt.Errorf("silence duration must be positive")
	}
	if c.MinSegment < 0 || c.MaxSegment < 0 || c.PreRoll < 0 || c.TrailingPad < 0 {
		return fmt.Errorf("segment durations must not be negative")
	}
	if c.MaxSegment > 0 && c.MaxSegment < c.MinSegment {
		return fmt.Errorf("max segment %v shorter than min segment %v", c.MaxSegment, c.MinSegment)
	}
	return nil
}

// Result reports what a single Process or Flush call did.
type Result struct {
	// Score is the speech probability of the processed frame.
	Score float32

	// SpeechStarted is set on the frame that opened a segment.
	SpeechStarted bool

	// Segment is set when a segment was finalized.
	Segment *audio.Segment

	// Discarded is the speech span of a segment dropped for being shorter
	// than MinSegment.
	Discarded time.Duration

	// ResetErr is the scorer's error when clearing its state after a
	// segment closed. The segment itself is still valid.
	ResetErr error
}

// Segmenter groups speech frames into segments. All timing is derived from
// frame durations, so the output depends only on the input audio and config.
//
// Segmenter is not safe for concurrent use; the data plane owns it.
type Segmenter struct {
	cfg    SegmenterConfig
	scorer Scorer

	preRoll *audio.RingBuffer

	open   bool
	frames []audio.Frame
	// lastSpeech is one past the index of the last frame scored as speech.
	lastSpeech int
	// span runs from onset through the last speech frame.
	span time.Duration
	// silence accumulates since the last speech frame.
	silence time.Duration
}

// NewSegmenter creates a segmenter scoring frames with scorer.
func NewSegmenter(cfg SegmenterConfig, scorer Scorer) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if scorer == nil {
		return nil, fmt.Errorf("nil scorer")
	}
	return &Segmenter{
		cfg:     cfg,
		scorer:  scorer,
		preRoll: audio.NewRingBuffer(cfg.PreRoll),
	}, nil
}

// InSpeech reports whether a segment is currently open.
func (s *Segmenter) InSpeech() bool {
	return s.open
}

// Process scores one frame and advances the segment state.
func (s *Segmenter) Process(f audio.Frame) (Result, error) {
	score, err := s.scorer.Score(f.Float32())
	if err != nil {
		return Result{}, fmt.Errorf("score frame %d: %w", f.Seq, err)
	}
	res := Result{Score: score}
	d := f.Duration()

	if !s.open {
		if score < s.cfg.SpeechThreshold {
			s.preRoll.Push(f)
			return res, nil
		}
		s.open = true
		s.frames = append(s.preRoll.Drain(), f)
		s.lastSpeech = len(s.frames)
		s.span = d
		s.silence = 0
		res.SpeechStarted = true
	} else {
		s.frames = append(s.frames, f)
		if score >= s.cfg.SpeechThreshold-s.cfg.HangoverMargin {
			s.span += s.silence + d
			s.silence = 0
			s.lastSpeech = len(s.frames)
		} else {
			s.silence += d
			if s.silence >= s.cfg.SilenceDuration {
				s.finalize(&res, false)
				return res, nil
			}
		}
	}

	if s.cfg.MaxSegment > 0 && s.span+s.silence >= s.cfg.MaxSegment {
		s.finalize(&res, false)
	}
	return res, nil
}

// Flush finalizes the open segment immediately, applying the same trimming
// and minimum-duration policy as a silence-closed segment. It is a no-op when
// no segment is open.
func (s *Segmenter) Flush() Result {
	var res Result
	if s.open {
		s.finalize(&res, true)
	}
	s.preRoll.Clear()
	return res
}

// Reset drops any open segment and clears the scorer's recurrent state.
func (s *Segmenter) Reset() error {
	s.clear()
	s.preRoll.Clear()
	return s.scorer.Reset()
}

func (s *Segmenter) finalize(res *Result, flushed bool) {
	end := s.lastSpeech
	var pad time.Duration
	for end < len(s.frames) {
		d := s.frames[end].Duration()
		if pad+d > s.cfg.TrailingPad {
			break
		}
		pad += d
		end++
	}

	frames := s.frames[:end]
	span := s.span
	s.clear()
	s.preRoll.Clear()
	// A fresh utterance starts from clean model state.
	if err := s.scorer.Reset(); err != nil {
		res.ResetErr = fmt.Errorf("reset scorer: %w", err)
	}

	if span < s.cfg.MinSegment {
		res.Discarded = span
		return
	}

	res.Segment = &audio.Segment{
		ID:          uuid.New(),
		Frames:      frames,
		SampleRate:  frames[0].SampleRate,
		StartSeq:    frames[0].Seq,
		EndSeq:      frames[len(frames)-1].Seq,
		Speech:      span,
		Flushed:     flushed,
		FinalizedAt: time.Now(),
	}
}

// clear releases the buffer reference so the finalized segment owns its frames.
func (s *Segmenter) clear() {
	s.open = false
	s.frames = nil
	s.lastSpeech = 0
	s.span = 0
	s.silence = 0
}
