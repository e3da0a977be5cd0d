//go:build azure

package asr

import (
	"context"
	"fmt"
	"time"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"

	pcmaudio "github.com/realtime-ai/asr-indicator/pkg/audio"
)

const defaultAzureLanguage = "en-US"

// AzureEngine runs a recognize-once request per segment, pushing the PCM
// through an in-memory input stream.
type AzureEngine struct {
	cfg Config
}

func newAzure(cfg Config) (Engine, error) {
	e, err := NewAzureEngine(cfg)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// NewAzureEngine validates the subscription settings.
func NewAzureEngine(cfg Config) (*AzureEngine, error) {
	if cfg.AzureKey == "" || cfg.AzureRegion == "" {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "Azure Speech credentials not set"}
	}
	if cfg.Language == "" || cfg.Language == "auto" {
		cfg.Language = defaultAzureLanguage
	}
	return &AzureEngine{cfg: cfg}, nil
}

// Name implements Engine.
func (a *AzureEngine) Name() string {
	return EngineAzure
}

// Transcribe implements Engine.
func (a *AzureEngine) Transcribe(ctx context.Context, pcm []int16, sampleRate int) (*Result, error) {
	if err := validateAudio(pcm, sampleRate); err != nil {
		return nil, err
	}

	format, err := audio.GetWaveFormatPCM(uint32(sampleRate), 16, 1)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidAudio, Message: "create stream format", Err: err}
	}
	defer format.Close()

	stream, err := audio.CreatePushAudioInputStreamFromFormat(format)
	if err != nil {
		return nil, &Error{Code: ErrCodeProviderError, Message: "create push stream", Err: err}
	}
	defer stream.Close()

	audioConfig, err := audio.NewAudioConfigFromStreamInput(stream)
	if err != nil {
		return nil, &Error{Code: ErrCodeProviderError, Message: "create audio config", Err: err}
	}
	defer audioConfig.Close()

	speechConfig, err := speech.NewSpeechConfigFromSubscription(a.cfg.AzureKey, a.cfg.AzureRegion)
	if err != nil {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "create speech config", Err: err}
	}
	defer speechConfig.Close()
	if err := speechConfig.SetSpeechRecognitionLanguage(a.cfg.Language); err != nil {
		return nil, &Error{Code: ErrCodeUnsupportedLanguage, Message: fmt.Sprintf("language %q", a.cfg.Language), Err: err}
	}

	recognizer, err := speech.NewSpeechRecognizerFromConfig(speechConfig, audioConfig)
	if err != nil {
		return nil, &Error{Code: ErrCodeProviderError, Message: "create recognizer", Err: err}
	}
	defer recognizer.Close()

	if err := stream.Write(pcmaudio.Int16ToBytes(pcm)); err != nil {
		return nil, &Error{Code: ErrCodeProviderError, Message: "write audio", Err: err}
	}
	stream.CloseStream()

	start := time.Now()
	select {
	case outcome := <-recognizer.RecognizeOnceAsync():
		defer outcome.Close()
		if outcome.Error != nil {
			return nil, requestError(ctx, "Azure recognition failed", ErrCodeProviderError, outcome.Error)
		}
		res := outcome.Result
		switch res.Reason {
		case common.RecognizedSpeech, common.NoMatch:
			text := ""
			if res.Reason == common.RecognizedSpeech {
				text = res.Text
			}
			return &Result{
				Text:          text,
				Confidence:    -1,
				Language:      a.cfg.Language,
				Engine:        EngineAzure,
				AudioDuration: audioDuration(len(pcm), sampleRate),
				Latency:       time.Since(start),
			}, nil
		default:
			details, _ := speech.NewCancellationDetailsFromSpeechRecognitionResult(res)
			msg := "Azure recognition canceled"
			code := ErrCodeProviderError
			if details != nil {
				msg = fmt.Sprintf("%s: %s", msg, details.ErrorDetails)
				if details.ErrorCode == common.AuthenticationFailure {
					code = ErrCodeAuthenticationFailed
				}
			}
			return nil, &Error{Code: code, Message: msg}
		}
	case <-ctx.Done():
		return nil, requestError(ctx, "Azure recognition aborted", ErrCodeTimeout, ctx.Err())
	}
}

// Close implements Engine.
func (a *AzureEngine) Close() error {
	return nil
}
