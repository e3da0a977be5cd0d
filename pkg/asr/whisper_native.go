//go:build whispercpp

// The whisper.cpp static library (libwhisper.a) and whisper.h must be
// reachable through LIBRARY_PATH and C_INCLUDE_PATH at link time.

package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/realtime-ai/asr-indicator/pkg/audio"
)

// whisperSampleRate is the only rate whisper.cpp accepts.
const whisperSampleRate = 16000

// WhisperNativeEngine runs whisper.cpp in process. The model is loaded once;
// each call gets a fresh context since contexts are not goroutine safe.
type WhisperNativeEngine struct {
	mu    sync.Mutex
	model whisperlib.Model
	cfg   Config
}

func newWhisperNative(cfg Config) (Engine, error) {
	e, err := NewWhisperNativeEngine(cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// NewWhisperNativeEngine loads the model at cfg.ModelPath.
func NewWhisperNativeEngine(cfg Config) (*WhisperNativeEngine, error) {
	if cfg.ModelPath == "" {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "whisper-native requires engine.model_path"}
	}
	model, err := whisperlib.New(cfg.ModelPath)
	if err != nil {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: fmt.Sprintf("load whisper model %q", cfg.ModelPath),
			Err:     err,
		}
	}
	return &WhisperNativeEngine{model: model, cfg: cfg}, nil
}

// Name implements Engine.
func (w *WhisperNativeEngine) Name() string {
	return EngineWhisperNative
}

// Transcribe implements Engine. Inference cannot be interrupted; ctx is
// checked before it starts.
func (w *WhisperNativeEngine) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (*Result, error) {
	if err := validateAudio(pcm, sampleRate); err != nil {
		return nil, err
	}
	if sampleRate != whisperSampleRate {
		return nil, &Error{
			Code:    ErrCodeInvalidAudio,
			Message: fmt.Sprintf("whisper.cpp needs %d Hz audio, got %d", whisperSampleRate, sampleRate),
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, requestError(ctx, "transcription cancelled", ErrCodeTimeout, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model == nil {
		return nil, &Error{Code: ErrCodeProviderError, Message: "engine is closed"}
	}

	wctx, err := w.model.NewContext()
	if err != nil {
		return nil, &Error{Code: ErrCodeProviderError, Message: "create whisper context", Err: err}
	}

	lang := w.cfg.Language
	if lang == "" {
		lang = "auto"
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return nil, &Error{Code: ErrCodeUnsupportedLanguage, Message: fmt.Sprintf("language %q", lang), Err: err}
	}
	if w.cfg.Threads > 0 {
		wctx.SetThreads(uint(w.cfg.Threads))
	}
	if w.cfg.Prompt != "" {
		wctx.SetInitialPrompt(w.cfg.Prompt)
	}

	start := time.Now()
	if err := wctx.Process(audio.Int16ToFloat32(pcm), nil, nil, nil); err != nil {
		return nil, &Error{Code: ErrCodeProviderError, Message: "whisper inference failed", Err: err}
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &Error{Code: ErrCodeProviderError, Message: "read whisper segment", Err: err}
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return &Result{
		Text:          strings.Join(parts, " "),
		Confidence:    -1,
		Language:      wctx.Language(),
		Engine:        EngineWhisperNative,
		AudioDuration: audioDuration(len(pcm), sampleRate),
		Latency:       time.Since(start),
	}, nil
}

// Close releases the model.
func (w *WhisperNativeEngine) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.model == nil {
		return nil
	}
	err := w.model.Close()
	w.model = nil
	return err
}
