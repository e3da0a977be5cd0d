package output

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

const (
	// DefaultTypeDelay gives the user time to focus the target window.
	DefaultTypeDelay = 200 * time.Millisecond

	clipboardSettle = 80 * time.Millisecond
	restoreDelay    = 120 * time.Millisecond
)

// Keyboard injects the paste shortcut into the focused window.
type Keyboard interface {
	Paste() error
}

// keybdPaster sends Ctrl+V through a virtual keyboard.
type keybdPaster struct {
	mu sync.Mutex
	kb keybd_event.KeyBonding
}

// NewSystemKeyboard creates the virtual keyboard. On Linux this needs write
// access to /dev/uinput.
func NewSystemKeyboard() (Keyboard, error) {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	// The uinput device must be registered before the first event.
	if runtime.GOOS == "linux" {
		time.Sleep(2 * time.Second)
	}
	return &keybdPaster{kb: kb}, nil
}

func (k *keybdPaster) Paste() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kb.Clear()
	k.kb.HasCTRL(true)
	k.kb.SetKeys(keybd_event.VK_V)
	return k.kb.Launching()
}

// TypeSink types the text into the focused window by pasting it, then puts
// the previous clipboard content back.
type TypeSink struct {
	cb    Clipboard
	kb    Keyboard
	delay time.Duration
	sleep func(context.Context, time.Duration) error
}

// NewTypeSink creates the sink with the system keyboard.
func NewTypeSink(cb Clipboard, delay time.Duration) (*TypeSink, error) {
	kb, err := NewSystemKeyboard()
	if err != nil {
		return nil, err
	}
	return NewTypeSinkWithKeyboard(cb, kb, delay), nil
}

// NewTypeSinkWithKeyboard creates the sink with an explicit keyboard.
func NewTypeSinkWithKeyboard(cb Clipboard, kb Keyboard, delay time.Duration) *TypeSink {
	if delay < 0 {
		delay = DefaultTypeDelay
	}
	return &TypeSink{cb: cb, kb: kb, delay: delay, sleep: sleepCtx}
}

// Name implements Sink.
func (t *TypeSink) Name() string { return string(MethodType) }

// Deliver implements Sink.
func (t *TypeSink) Deliver(ctx context.Context, text string) error {
	// An unreadable clipboard (empty, or non-text content) is not restored.
	orig, readErr := t.cb.ReadAll()

	if err := t.cb.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	if err := t.sleep(ctx, t.delay+clipboardSettle); err != nil {
		return err
	}

	pasteErr := t.kb.Paste()

	if readErr == nil {
		// Restoring too early races the target application reading the paste.
		_ = t.sleep(context.WithoutCancel(ctx), restoreDelay)
		if err := t.cb.WriteAll(orig); err != nil && pasteErr == nil {
			return fmt.Errorf("restore clipboard: %w", err)
		}
	}

	if pasteErr != nil {
		return fmt.Errorf("send paste keystroke: %w", pasteErr)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
