package vad

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/asr-indicator/pkg/audio"
)

// 20ms frames at 16kHz
const testFrameSamples = 320

func repeat(p float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func concat(parts ...[]float32) []float32 {
	var out []float32
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// runScores feeds one 20ms frame per score and returns the results in order.
func runScores(t *testing.T, cfg SegmenterConfig, scores []float32) (*Segmenter, []Result) {
	t.Helper()
	seg, err := NewSegmenter(cfg, NewMockScorerWithSequence(scores))
	require.NoError(t, err)

	frames := audio.ToneFrames(len(scores), testFrameSamples, 16000, 1000)
	results := make([]Result, 0, len(frames))
	for _, f := range frames {
		res, err := seg.Process(f)
		require.NoError(t, err)
		results = append(results, res)
	}
	return seg, results
}

func segmentsOf(results []Result) []*audio.Segment {
	var out []*audio.Segment
	for _, r := range results {
		if r.Segment != nil {
			out = append(out, r.Segment)
		}
	}
	return out
}

func TestSegmenter_OneSecondThenSilence(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	cfg.SpeechThreshold = 0.5
	cfg.SilenceDuration = 700 * time.Millisecond

	_, results := runScores(t, cfg, concat(repeat(0.8, 50), repeat(0.1, 50)))

	segs := segmentsOf(results)
	require.Len(t, segs, 1)

	// 700ms of silence is 35 frames, so the segment closes on the 35th
	// silence frame and not at silence onset.
	for i, r := range results {
		if i == 50+34 {
			assert.NotNil(t, r.Segment, "segment expected on frame %d", i)
		} else {
			assert.Nil(t, r.Segment, "no segment expected on frame %d", i)
		}
	}

	seg := segs[0]
	assert.Len(t, seg.Frames, 50)
	assert.Equal(t, uint64(0), seg.StartSeq)
	assert.Equal(t, uint64(49), seg.EndSeq)
	assert.Equal(t, time.Second, seg.Duration())
	assert.Equal(t, time.Second, seg.Speech)
	assert.False(t, seg.Flushed)
	assert.Equal(t, 16000, seg.SampleRate)
	assert.True(t, results[0].SpeechStarted)
}

func TestSegmenter_NotEnoughSilence(t *testing.T) {
	seg, results := runScores(t, DefaultSegmenterConfig(), concat(repeat(0.8, 50), repeat(0.1, 30)))

	assert.Empty(t, segmentsOf(results))
	assert.True(t, seg.InSpeech())

	res := seg.Flush()
	require.NotNil(t, res.Segment)
	assert.True(t, res.Segment.Flushed)
	assert.Len(t, res.Segment.Frames, 50)
	assert.False(t, seg.InSpeech())

	// finalized exactly once
	again := seg.Flush()
	assert.Nil(t, again.Segment)
}

func TestSegmenter_ThresholdTieEntersSpeech(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	cfg.MinSegment = 0

	_, results := runScores(t, cfg, concat(repeat(0.5, 1), repeat(0.1, 35)))
	assert.True(t, results[0].SpeechStarted)
	require.Len(t, segmentsOf(results), 1)
}

func TestSegmenter_BelowThresholdNeverOpens(t *testing.T) {
	seg, results := runScores(t, DefaultSegmenterConfig(), repeat(0.49, 100))
	assert.Empty(t, segmentsOf(results))
	assert.False(t, seg.InSpeech())
	assert.Nil(t, seg.Flush().Segment)
}

func TestSegmenter_ShortSegmentDiscarded(t *testing.T) {
	// 60ms of speech is below the 100ms minimum
	_, results := runScores(t, DefaultSegmenterConfig(), concat(repeat(0.9, 3), repeat(0.1, 40)))

	assert.Empty(t, segmentsOf(results))
	var discarded time.Duration
	for _, r := range results {
		discarded += r.Discarded
	}
	assert.Equal(t, 60*time.Millisecond, discarded)
}

func TestSegmenter_FlushAppliesMinimum(t *testing.T) {
	seg, _ := runScores(t, DefaultSegmenterConfig(), repeat(0.9, 2))

	res := seg.Flush()
	assert.Nil(t, res.Segment)
	assert.Equal(t, 40*time.Millisecond, res.Discarded)
}

func TestSegmenter_Hangover(t *testing.T) {
	// Dips to 0.4 sit between the 0.35 hangover floor and the 0.5 threshold.
	scores := concat(repeat(0.8, 10), repeat(0.4, 40), repeat(0.8, 10), repeat(0.1, 40))

	t.Run("dips count as speech with hangover", func(t *testing.T) {
		_, results := runScores(t, DefaultSegmenterConfig(), scores)
		segs := segmentsOf(results)
		require.Len(t, segs, 1)
		assert.Len(t, segs[0].Frames, 60)
	})

	t.Run("dips split the utterance without hangover", func(t *testing.T) {
		cfg := DefaultSegmenterConfig()
		cfg.HangoverMargin = 0

		_, results := runScores(t, cfg, scores)
		segs := segmentsOf(results)
		require.Len(t, segs, 2)
		assert.Len(t, segs[0].Frames, 10)
		assert.Len(t, segs[1].Frames, 10)
		assert.Equal(t, uint64(50), segs[1].StartSeq)
	})
}

func TestSegmenter_SilenceInsideSpeechIsKept(t *testing.T) {
	// A 300ms pause shorter than the silence duration stays in the segment.
	_, results := runScores(t, DefaultSegmenterConfig(),
		concat(repeat(0.8, 10), repeat(0.1, 15), repeat(0.8, 10), repeat(0.1, 35)))

	segs := segmentsOf(results)
	require.Len(t, segs, 1)
	assert.Len(t, segs[0].Frames, 35)
	assert.Equal(t, 700*time.Millisecond, segs[0].Speech)
}

func TestSegmenter_PreRollAndTrailingPad(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	cfg.PreRoll = 60 * time.Millisecond
	cfg.TrailingPad = 40 * time.Millisecond

	_, results := runScores(t, cfg, concat(repeat(0.1, 10), repeat(0.8, 10), repeat(0.1, 35)))

	segs := segmentsOf(results)
	require.Len(t, segs, 1)
	seg := segs[0]
	// 3 pre-roll + 10 speech + 2 trailing
	assert.Len(t, seg.Frames, 15)
	assert.Equal(t, uint64(7), seg.StartSeq)
	assert.Equal(t, uint64(21), seg.EndSeq)
	assert.Equal(t, 200*time.Millisecond, seg.Speech)
}

func TestSegmenter_MaxSegment(t *testing.T) {
	cfg := DefaultSegmenterConfig()
	cfg.MaxSegment = time.Second

	seg, results := runScores(t, cfg, repeat(0.9, 120))

	segs := segmentsOf(results)
	require.Len(t, segs, 2)
	assert.Len(t, segs[0].Frames, 50)
	assert.Len(t, segs[1].Frames, 50)
	assert.Equal(t, uint64(50), segs[1].StartSeq)
	assert.True(t, seg.InSpeech())
}

func TestSegmenter_SegmentsNeverOverlap(t *testing.T) {
	scores := concat(
		repeat(0.9, 20), repeat(0.1, 40),
		repeat(0.9, 15), repeat(0.1, 40),
		repeat(0.9, 25), repeat(0.1, 40),
	)
	_, results := runScores(t, DefaultSegmenterConfig(), scores)

	segs := segmentsOf(results)
	require.Len(t, segs, 3)
	for i := 1; i < len(segs); i++ {
		assert.Greater(t, segs[i].StartSeq, segs[i-1].EndSeq)
		assert.NotEqual(t, segs[i].ID, segs[i-1].ID)
	}
}

func TestSegmenter_Reset(t *testing.T) {
	scorer := NewMockScorerWithScore(0.9)
	seg, err := NewSegmenter(DefaultSegmenterConfig(), scorer)
	require.NoError(t, err)

	for _, f := range audio.ToneFrames(10, testFrameSamples, 16000, 1000) {
		_, err := seg.Process(f)
		require.NoError(t, err)
	}
	require.True(t, seg.InSpeech())

	require.NoError(t, seg.Reset())
	assert.False(t, seg.InSpeech())
	assert.Equal(t, 1, scorer.Resets())
	assert.Nil(t, seg.Flush().Segment)
}

func TestSegmenter_ResetErrorReported(t *testing.T) {
	boom := errors.New("tensor reset failed")
	scorer := NewMockScorerWithScore(0.9)
	scorer.ResetErr = boom
	seg, err := NewSegmenter(DefaultSegmenterConfig(), scorer)
	require.NoError(t, err)

	for _, f := range audio.ToneFrames(10, testFrameSamples, 16000, 1000) {
		_, err := seg.Process(f)
		require.NoError(t, err)
	}

	res := seg.Flush()
	require.NotNil(t, res.Segment, "segment survives a failed reset")
	assert.ErrorIs(t, res.ResetErr, boom)
	assert.Equal(t, 1, scorer.Resets())
}

func TestSegmenter_ScoreError(t *testing.T) {
	boom := errors.New("boom")
	scorer := &MockScorer{ScoreFunc: func([]float32) (float32, error) { return 0, boom }}
	seg, err := NewSegmenter(DefaultSegmenterConfig(), scorer)
	require.NoError(t, err)

	_, err = seg.Process(audio.ToneFrames(1, testFrameSamples, 16000, 1)[0])
	assert.ErrorIs(t, err, boom)
	assert.False(t, seg.InSpeech())
}

func TestSegmenterConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SegmenterConfig)
	}{
		{"threshold above one", func(c *SegmenterConfig) { c.SpeechThreshold = 1.5 }},
		{"negative threshold", func(c *SegmenterConfig) { c.SpeechThreshold = -0.1 }},
		{"margin above threshold", func(c *SegmenterConfig) { c.HangoverMargin = 0.6 }},
		{"zero silence", func(c *SegmenterConfig) { c.SilenceDuration = 0 }},
		{"negative pre-roll", func(c *SegmenterConfig) { c.PreRoll = -time.Millisecond }},
		{"max below min", func(c *SegmenterConfig) { c.MaxSegment = 50 * time.Millisecond }},
	}

	require.NoError(t, DefaultSegmenterConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSegmenterConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	_, err := NewSegmenter(DefaultSegmenterConfig(), nil)
	assert.Error(t, err)
}
