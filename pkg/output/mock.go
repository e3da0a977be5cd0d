package output

import (
	"context"
	"sync"
)

// MockSink records deliveries for tests.
type MockSink struct {
	// Err, when set, is returned by every Deliver call.
	Err error

	mu    sync.Mutex
	texts []string
}

// NewMockSink creates an empty mock.
func NewMockSink() *MockSink {
	return &MockSink{}
}

// Name implements Sink.
func (m *MockSink) Name() string { return "mock" }

// Deliver implements Sink.
func (m *MockSink) Deliver(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.texts = append(m.texts, text)
	return nil
}

// Texts returns the delivered texts in order.
func (m *MockSink) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// MemoryClipboard is an in-process Clipboard.
type MemoryClipboard struct {
	mu      sync.Mutex
	text    string
	ReadErr error
	writes  []string
}

// ReadAll implements Clipboard.
func (c *MemoryClipboard) ReadAll() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ReadErr != nil {
		return "", c.ReadErr
	}
	return c.text, nil
}

// WriteAll implements Clipboard.
func (c *MemoryClipboard) WriteAll(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	c.writes = append(c.writes, text)
	return nil
}

// Writes returns every value written, in order.
func (c *MemoryClipboard) Writes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}
