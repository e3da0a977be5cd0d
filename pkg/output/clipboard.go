package output

import (
	"context"

	"github.com/atotto/clipboard"
)

// Clipboard is the system clipboard.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// SystemClipboard uses xclip/xsel/wl-clipboard on Linux and the native API
// elsewhere.
type SystemClipboard struct{}

// ReadAll implements Clipboard.
func (SystemClipboard) ReadAll() (string, error) { return clipboard.ReadAll() }

// WriteAll implements Clipboard.
func (SystemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// ClipboardSink copies the text to the clipboard.
type ClipboardSink struct {
	cb Clipboard
}

// NewClipboardSink creates the sink.
func NewClipboardSink(cb Clipboard) *ClipboardSink {
	return &ClipboardSink{cb: cb}
}

// Name implements Sink.
func (c *ClipboardSink) Name() string { return string(MethodClipboard) }

// Deliver implements Sink.
func (c *ClipboardSink) Deliver(_ context.Context, text string) error {
	return c.cb.WriteAll(text)
}
