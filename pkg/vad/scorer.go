// Package vad decides which audio frames contain speech and groups them into
// segments.
//
// A Scorer maps one frame of normalized samples to a speech probability in
// [0, 1]. Two scorers are available: the Silero VAD model (built with
// '-tags vad', backed by onnxruntime) and a dependency-free energy scorer.
// The Segmenter turns the per-frame scores into SpeechSegments.
package vad

import "fmt"

// Scorer computes a speech probability for a frame of audio.
type Scorer interface {
	// Score returns the speech probability of samples, normalized to [-1, 1].
	Score(samples []float32) (float32, error)

	// Reset clears any recurrent state. Called when a new stream starts.
	Reset() error

	// Destroy releases all resources held by the scorer.
	Destroy() error
}

// Scorer engine names.
const (
	EngineSilero = "silero"
	EngineEnergy = "energy"
)

// ScorerConfig selects and configures a Scorer.
type ScorerConfig struct {
	Engine string

	// Silero
	ModelPath   string
	LibraryPath string
	SampleRate  int

	// Energy
	FloorDB   float64
	CeilingDB float64
}

// NewScorer builds the scorer named by cfg.Engine.
func NewScorer(cfg ScorerConfig) (Scorer, error) {
	switch cfg.Engine {
	case EngineSilero:
		if err := InitRuntime(cfg.LibraryPath); err != nil {
			return nil, err
		}
		s, err := NewSileroScorer(SileroConfig{
			ModelPath:  cfg.ModelPath,
			SampleRate: cfg.SampleRate,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case EngineEnergy, "":
		return NewEnergyScorer(cfg.FloorDB, cfg.CeilingDB), nil
	default:
		return nil, fmt.Errorf("unknown vad engine %q", cfg.Engine)
	}
}
