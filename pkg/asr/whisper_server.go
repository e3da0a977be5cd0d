package asr

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// WhisperServerEngine transcribes against a self-hosted OpenAI-compatible
// endpoint such as faster-whisper-server or whisper.cpp's server.
type WhisperServerEngine struct {
	client *openai.Client
	cfg    Config
}

// NewWhisperServerEngine creates the engine. cfg.BaseURL is required; the
// API key is optional since most local servers ignore it.
func NewWhisperServerEngine(cfg Config) (*WhisperServerEngine, error) {
	if cfg.BaseURL == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "whisper-server requires engine.base_url",
		}
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &WhisperServerEngine{
		client: openai.NewClientWithConfig(clientConfig),
		cfg:    cfg,
	}, nil
}

// Name implements Engine.
func (w *WhisperServerEngine) Name() string {
	return EngineWhisperServer
}

// Transcribe implements Engine.
func (w *WhisperServerEngine) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (*Result, error) {
	if err := validateAudio(pcm, sampleRate); err != nil {
		return nil, err
	}

	req := openai.AudioRequest{
		Model:    w.cfg.Model,
		FilePath: "audio.wav", // Filename hint for API
		Reader:   bytes.NewReader(encodeWAV(pcm, sampleRate)),
		Prompt:   w.cfg.Prompt,
		Language: w.cfg.Language,
	}
	if w.cfg.Temperature > 0 {
		req.Temperature = w.cfg.Temperature
	}

	start := time.Now()
	resp, err := w.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, requestError(ctx, "whisper-server request failed", goOpenAICode(err), err)
	}

	return &Result{
		Text:          resp.Text,
		Confidence:    -1, // not reported by the transcription endpoint
		Language:      resp.Language,
		Engine:        EngineWhisperServer,
		AudioDuration: audioDuration(len(pcm), sampleRate),
		Latency:       time.Since(start),
	}, nil
}

// Close implements Engine.
func (w *WhisperServerEngine) Close() error {
	return nil
}

func goOpenAICode(err error) ErrorCode {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return codeForStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return codeForStatus(reqErr.HTTPStatusCode)
	}
	return ErrCodeNetworkError
}
