package vad

import "sync"

// MockScorer is a Scorer for tests. Scores come from ScoreFunc; calls are
// recorded.
type MockScorer struct {
	// ScoreFunc is called for each Score. If nil, Score returns 0.
	ScoreFunc func(samples []float32) (float32, error)
	// ResetErr is returned from every Reset.
	ResetErr error

	calls      int
	resets     int
	destroyed  bool
	lastLength int

	mu sync.Mutex
}

var _ Scorer = (*MockScorer)(nil)

// NewMockScorer returns a scorer that always reports silence.
func NewMockScorer() *MockScorer {
	return &MockScorer{}
}

// NewMockScorerWithScore returns a scorer that always returns p.
func NewMockScorerWithScore(p float32) *MockScorer {
	return &MockScorer{
		ScoreFunc: func([]float32) (float32, error) { return p, nil },
	}
}

// NewMockScorerWithSequence returns scores in order, one per call. Once the
// sequence is exhausted it keeps returning 0.
func NewMockScorerWithSequence(scores []float32) *MockScorer {
	idx := 0
	return &MockScorer{
		ScoreFunc: func([]float32) (float32, error) {
			if idx >= len(scores) {
				return 0, nil
			}
			p := scores[idx]
			idx++
			return p, nil
		},
	}
}

// Score implements Scorer.
func (m *MockScorer) Score(samples []float32) (float32, error) {
	m.mu.Lock()
	m.calls++
	m.lastLength = len(samples)
	fn := m.ScoreFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(samples)
	}
	return 0, nil
}

// Reset implements Scorer.
func (m *MockScorer) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets++
	return m.ResetErr
}

// Destroy implements Scorer.
func (m *MockScorer) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
	return nil
}

// Calls returns the number of Score calls.
func (m *MockScorer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Resets returns the number of Reset calls.
func (m *MockScorer) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// Destroyed reports whether Destroy was called.
func (m *MockScorer) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}

// LastLength returns the sample count of the most recent Score call.
func (m *MockScorer) LastLength() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLength
}
