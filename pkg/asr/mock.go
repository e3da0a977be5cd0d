package asr

import (
	"context"
	"sync"
	"time"
)

// MockEngine is an Engine for tests.
type MockEngine struct {
	// TranscribeFunc, when set, produces the result for each call.
	TranscribeFunc func(ctx context.Context, pcm []int16, sampleRate int) (*Result, error)

	mu     sync.Mutex
	calls  [][]int16
	closed bool
}

// NewMockEngine returns an engine that answers every call with text.
func NewMockEngine(text string) *MockEngine {
	return &MockEngine{
		TranscribeFunc: func(context.Context, []int16, int) (*Result, error) {
			return &Result{Text: text, Confidence: -1}, nil
		},
	}
}

// NewMockEngineWithTexts returns an engine that answers call i with
// texts[i], and with an empty result once texts run out.
func NewMockEngineWithTexts(texts ...string) *MockEngine {
	var mu sync.Mutex
	i := 0
	return &MockEngine{
		TranscribeFunc: func(context.Context, []int16, int) (*Result, error) {
			mu.Lock()
			defer mu.Unlock()
			if i >= len(texts) {
				return &Result{Confidence: -1}, nil
			}
			text := texts[i]
			i++
			return &Result{Text: text, Confidence: -1}, nil
		},
	}
}

// Name implements Engine.
func (m *MockEngine) Name() string {
	return "mock"
}

// Transcribe implements Engine.
func (m *MockEngine) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, pcm)
	m.mu.Unlock()

	start := time.Now()
	var (
		res *Result
		err error
	)
	if m.TranscribeFunc != nil {
		res, err = m.TranscribeFunc(ctx, pcm, sampleRate)
	} else {
		res = &Result{Confidence: -1}
	}
	if err != nil {
		return nil, err
	}
	res.Engine = m.Name()
	if sampleRate > 0 {
		res.AudioDuration = audioDuration(len(pcm), sampleRate)
	}
	res.Latency = time.Since(start)
	return res, nil
}

// Close implements Engine.
func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns the number of Transcribe calls.
func (m *MockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Inputs returns the PCM passed to each call, in order.
func (m *MockEngine) Inputs() [][]int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]int16(nil), m.calls...)
}

// Closed reports whether Close was called.
func (m *MockEngine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
