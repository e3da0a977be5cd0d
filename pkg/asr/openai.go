package asr

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "whisper-1"

// OpenAIEngine transcribes with the OpenAI audio API.
type OpenAIEngine struct {
	client openai.Client
	cfg    Config
}

// NewOpenAIEngine creates the engine. cfg.APIKey is required; cfg.BaseURL
// optionally points at a compatible proxy.
func NewOpenAIEngine(cfg Config) (*OpenAIEngine, error) {
	if cfg.APIKey == "" {
		return nil, &Error{
			Code:    ErrCodeInvalidConfig,
			Message: "OpenAI API key is required",
		}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	// The dispatcher owns the deadline and never retries a segment.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEngine{
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

// Name implements Engine.
func (o *OpenAIEngine) Name() string {
	return EngineOpenAI
}

// Transcribe implements Engine.
func (o *OpenAIEngine) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (*Result, error) {
	if err := validateAudio(pcm, sampleRate); err != nil {
		return nil, err
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(encodeWAV(pcm, sampleRate)), "audio.wav", "audio/wav"),
		Model: openai.AudioModel(o.cfg.Model),
	}
	if o.cfg.Language != "" && o.cfg.Language != "auto" {
		params.Language = openai.String(o.cfg.Language)
	}
	if o.cfg.Prompt != "" {
		params.Prompt = openai.String(o.cfg.Prompt)
	}
	if o.cfg.Temperature > 0 {
		params.Temperature = openai.Float(float64(o.cfg.Temperature))
	}

	start := time.Now()
	resp, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		code := ErrCodeNetworkError
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			code = codeForStatus(apiErr.StatusCode)
		}
		return nil, requestError(ctx, "OpenAI transcription request failed", code, err)
	}

	return &Result{
		Text:          resp.Text,
		Confidence:    -1,
		Language:      o.cfg.Language,
		Engine:        EngineOpenAI,
		AudioDuration: audioDuration(len(pcm), sampleRate),
		Latency:       time.Since(start),
	}, nil
}

// Close implements Engine.
func (o *OpenAIEngine) Close() error {
	return nil
}
