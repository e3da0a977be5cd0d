// Package asr turns finalized speech segments into text.
//
// Every backend implements Engine: one call per segment, PCM in, text out.
// Backends that need CGO (whisper.cpp, the Azure Speech SDK) are compiled
// only with their build tags; New reports a clear error when a configured
// engine was not built in.
package asr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Engine names accepted by New.
const (
	EngineOpenAI        = "openai"
	EngineWhisperServer = "whisper-server"
	EngineWhisperNative = "whisper-native"
	EngineAzure         = "azure"
)

// Engine transcribes one segment at a time. Implementations must honour ctx
// cancellation where the backend allows it.
type Engine interface {
	// Name returns the engine name used in logs and metrics.
	Name() string

	// Transcribe recognizes mono 16-bit PCM sampled at sampleRate.
	Transcribe(ctx context.Context, pcm []int16, sampleRate int) (*Result, error)

	// Close releases the engine's resources.
	Close() error
}

// Result is the output of one transcription.
type Result struct {
	// Text is the recognized text. It may be empty when nothing was
	// recognized.
	Text string

	// Confidence score (0.0-1.0) if available, otherwise -1
	Confidence float32

	// Language used or detected, when the engine reports it.
	Language string

	// Engine that produced the result.
	Engine string

	// AudioDuration is the length of the transcribed audio.
	AudioDuration time.Duration

	// Latency is the time spent inside the engine.
	Latency time.Duration
}

// Config selects and configures an engine.
type Config struct {
	Name        string
	Model       string
	Language    string
	Prompt      string
	Temperature float32

	// Remote engines.
	APIKey  string
	BaseURL string

	// whisper-native.
	ModelPath string
	Threads   int

	// azure.
	AzureKey    string
	AzureRegion string
}

// Error is the engine error type.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInvalidConfig
	ErrCodeInvalidAudio
	ErrCodeUnsupportedLanguage
	ErrCodeUnsupportedFeature
	ErrCodeAuthenticationFailed
	ErrCodeQuotaExceeded
	ErrCodeNetworkError
	ErrCodeProviderError
	ErrCodeTimeout
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeInvalidConfig:
		return "invalid_config"
	case ErrCodeInvalidAudio:
		return "invalid_audio"
	case ErrCodeUnsupportedLanguage:
		return "unsupported_language"
	case ErrCodeUnsupportedFeature:
		return "unsupported_feature"
	case ErrCodeAuthenticationFailed:
		return "authentication_failed"
	case ErrCodeQuotaExceeded:
		return "quota_exceeded"
	case ErrCodeNetworkError:
		return "network_error"
	case ErrCodeProviderError:
		return "provider_error"
	case ErrCodeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// CodeOf returns the ErrorCode carried by err, or ErrCodeUnknown.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeUnknown
}

// codeForStatus maps an HTTP status returned by a remote engine.
func codeForStatus(status int) ErrorCode {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeAuthenticationFailed
	case status == http.StatusTooManyRequests:
		return ErrCodeQuotaExceeded
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrCodeTimeout
	case status >= 400 && status < 500:
		return ErrCodeInvalidAudio
	default:
		return ErrCodeProviderError
	}
}

// requestError wraps a failed engine call, classifying context expiry as a
// timeout.
func requestError(ctx context.Context, msg string, code ErrorCode, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		code = ErrCodeTimeout
	}
	return &Error{Code: code, Message: msg, Err: err}
}

func validateAudio(pcm []int16, sampleRate int) error {
	if len(pcm) == 0 {
		return &Error{Code: ErrCodeInvalidAudio, Message: "audio data is empty"}
	}
	if sampleRate <= 0 {
		return &Error{Code: ErrCodeInvalidAudio, Message: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	return nil
}

func audioDuration(samples, sampleRate int) time.Duration {
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// New constructs the engine named by cfg.Name.
func New(cfg Config) (Engine, error) {
	switch cfg.Name {
	case EngineOpenAI:
		e, err := NewOpenAIEngine(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	case EngineWhisperServer:
		e, err := NewWhisperServerEngine(cfg)
		if err != nil {
			return nil, err
		}
		return e, nil
	case EngineWhisperNative:
		return newWhisperNative(cfg)
	case EngineAzure:
		return newAzure(cfg)
	default:
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: fmt.Sprintf("unknown engine %q", cfg.Name),
		}
	}
}
