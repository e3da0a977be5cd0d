// Package output delivers transcribed text to the user through exactly one
// configured sink: the clipboard, simulated typing into the focused window,
// or a file.
package output

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/realtime-ai/asr-indicator/pkg/metrics"
)

// Method names a sink.
type Method string

const (
	MethodClipboard Method = "clipboard"
	MethodType      Method = "type"
	MethodFile      Method = "file"
)

// ParseMethod validates a configured method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodClipboard, MethodType, MethodFile:
		return m, nil
	default:
		return "", fmt.Errorf("unknown output method %q", s)
	}
}

// Sink is one delivery target.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, text string) error
}

// Targeted is implemented by sinks with a user-visible destination, such as
// a file path.
type Targeted interface {
	Target() string
}

// DeliveryError reports a failed delivery. Deliveries are never retried.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Receipt describes a completed delivery.
type Receipt struct {
	Sink   string
	Target string
}

// Config selects and configures the sink.
type Config struct {
	Method Method
	// File is the append target for MethodFile. A leading ~ is expanded.
	File string
	// TypeDelay is the pause before the paste keystroke, giving the user
	// time to focus the target window.
	TypeDelay time.Duration
}

// Router delivers text through its sink.
type Router struct {
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRouter builds the sink for cfg.Method.
func NewRouter(cfg Config, logger *slog.Logger, m *metrics.Metrics) (*Router, error) {
	var (
		sink Sink
		err  error
	)
	switch cfg.Method {
	case MethodClipboard:
		sink = NewClipboardSink(SystemClipboard{})
	case MethodType:
		sink, err = NewTypeSink(SystemClipboard{}, cfg.TypeDelay)
	case MethodFile:
		sink, err = NewFileSink(cfg.File)
	default:
		err = fmt.Errorf("unknown output method %q", cfg.Method)
	}
	if err != nil {
		return nil, err
	}
	return NewRouterWithSink(sink, logger, m), nil
}

// NewRouterWithSink wraps an existing sink.
func NewRouterWithSink(sink Sink, logger *slog.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Router{
		sink:    sink,
		logger:  logger.With("component", "output", "sink", sink.Name()),
		metrics: m,
	}
}

// Sink returns the configured sink.
func (r *Router) Sink() Sink {
	return r.sink
}

// Deliver hands text to the sink. Failures are returned as *DeliveryError.
func (r *Router) Deliver(ctx context.Context, text string) (Receipt, error) {
	receipt := Receipt{Sink: r.sink.Name()}
	if t, ok := r.sink.(Targeted); ok {
		receipt.Target = t.Target()
	}

	if err := r.sink.Deliver(ctx, text); err != nil {
		r.metrics.Deliveries.WithLabelValues(receipt.Sink, metrics.OutcomeError).Inc()
		r.logger.Error("delivery failed", "error", err)
		return receipt, &DeliveryError{Sink: receipt.Sink, Err: err}
	}

	r.metrics.Deliveries.WithLabelValues(receipt.Sink, metrics.OutcomeSuccess).Inc()
	r.logger.Info("text delivered", "chars", len(text), "target", receipt.Target)
	return receipt, nil
}
