//go:build !vad

package vad

import "errors"

// ErrSileroDisabled is returned by the Silero constructors in builds without
// the 'vad' tag.
var ErrSileroDisabled = errors.New("silero VAD support is not enabled, rebuild with '-tags vad' or set vad.engine to \"energy\"")

// InitRuntime reports that onnxruntime is not compiled in.
func InitRuntime(string) error {
	return ErrSileroDisabled
}

// DestroyRuntime is a no-op without the 'vad' tag.
func DestroyRuntime() error {
	return nil
}

// SileroConfig configures the Silero VAD scorer.
type SileroConfig struct {
	ModelPath  string
	SampleRate int
}

// SileroScorer is unavailable without the 'vad' tag.
type SileroScorer struct{}

// NewSileroScorer always fails without the 'vad' tag.
func NewSileroScorer(SileroConfig) (*SileroScorer, error) {
	return nil, ErrSileroDisabled
}

// Score implements Scorer.
func (*SileroScorer) Score([]float32) (float32, error) { return 0, ErrSileroDisabled }

// Reset implements Scorer.
func (*SileroScorer) Reset() error { return nil }

// Destroy implements Scorer.
func (*SileroScorer) Destroy() error { return nil }
