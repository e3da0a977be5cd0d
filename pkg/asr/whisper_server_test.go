package asr

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transcriptionRequest struct {
	Path     string
	Model    string
	Language string
	Prompt   string
	File     []byte
}

// newTranscriptionServer emulates the OpenAI transcription endpoint.
func newTranscriptionServer(t *testing.T, status int, body string, delay time.Duration) (*httptest.Server, <-chan transcriptionRequest) {
	t.Helper()
	reqs := make(chan transcriptionRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(10<<20)) {
			return
		}
		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(f)

		reqs <- transcriptionRequest{
			Path:     r.URL.Path,
			Model:    r.FormValue("model"),
			Language: r.FormValue("language"),
			Prompt:   r.FormValue("prompt"),
			File:     data,
		}

		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func testPCM(n int) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(i % 100)
	}
	return pcm
}

func TestNewWhisperServerEngine_RequiresBaseURL(t *testing.T) {
	_, err := NewWhisperServerEngine(Config{Name: EngineWhisperServer})
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidConfig, CodeOf(err))
}

func TestWhisperServerEngine_Transcribe(t *testing.T) {
	srv, reqs := newTranscriptionServer(t, http.StatusOK, `{"text":"hello world"}`, 0)

	e, err := NewWhisperServerEngine(Config{
		BaseURL:  srv.URL + "/v1/",
		Model:    "Systran/faster-whisper-small",
		Language: "en",
		Prompt:   "dictation",
	})
	require.NoError(t, err)
	assert.Equal(t, EngineWhisperServer, e.Name())

	res, err := e.Transcribe(context.Background(), testPCM(16000), 16000)
	require.NoError(t, err)
	assert.Equal(t, "hello world", res.Text)
	assert.Equal(t, float32(-1), res.Confidence)
	assert.Equal(t, time.Second, res.AudioDuration)
	assert.Equal(t, EngineWhisperServer, res.Engine)

	req := <-reqs
	assert.Equal(t, "/v1/audio/transcriptions", req.Path)
	assert.Equal(t, "Systran/faster-whisper-small", req.Model)
	assert.Equal(t, "en", req.Language)
	assert.Equal(t, "dictation", req.Prompt)
	require.Len(t, req.File, 44+32000)
	assert.Equal(t, "RIFF", string(req.File[:4]))
}

func TestWhisperServerEngine_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   ErrorCode
	}{
		{"unauthorized", http.StatusUnauthorized, ErrCodeAuthenticationFailed},
		{"rate limited", http.StatusTooManyRequests, ErrCodeQuotaExceeded},
		{"server error", http.StatusInternalServerError, ErrCodeProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTranscriptionServer(t, tt.status, `{"error":{"message":"nope","type":"test"}}`, 0)
			e, err := NewWhisperServerEngine(Config{BaseURL: srv.URL + "/v1"})
			require.NoError(t, err)

			_, err = e.Transcribe(context.Background(), testPCM(1600), 16000)
			require.Error(t, err)
			assert.Equal(t, tt.want, CodeOf(err))
		})
	}
}

func TestWhisperServerEngine_DeadlineIsTimeout(t *testing.T) {
	srv, _ := newTranscriptionServer(t, http.StatusOK, `{"text":"late"}`, time.Second)
	e, err := NewWhisperServerEngine(Config{BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = e.Transcribe(ctx, testPCM(1600), 16000)
	require.Error(t, err)
	assert.Equal(t, ErrCodeTimeout, CodeOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestWhisperServerEngine_EmptyAudio(t *testing.T) {
	e, err := NewWhisperServerEngine(Config{BaseURL: "http://127.0.0.1:1/v1"})
	require.NoError(t, err)

	_, err = e.Transcribe(context.Background(), nil, 16000)
	assert.Equal(t, ErrCodeInvalidAudio, CodeOf(err))
}

func TestEncodeWAV(t *testing.T) {
	pcm := []int16{0, 1, -1, 32767}
	wav := encodeWAV(pcm, 16000)

	require.Len(t, wav, 44+8)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint32(36+8), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]), "mono")
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(wav[28:32]), "byte rate")
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
	assert.Equal(t, "data", string(wav[36:40]))
	assert.Equal(t, uint32(8), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, int16(32767), int16(binary.LittleEndian.Uint16(wav[50:52])))
}

func TestErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &Error{Code: ErrCodeNetworkError, Message: "request failed", Err: inner}

	assert.Equal(t, "request failed: boom", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "network_error", err.Code.String())
	assert.Equal(t, ErrCodeUnknown, CodeOf(inner))
}

func TestNew(t *testing.T) {
	t.Run("unknown", func(t *testing.T) {
		_, err := New(Config{Name: "dragon"})
		assert.Equal(t, ErrCodeInvalidConfig, CodeOf(err))
	})
	t.Run("whisper-server", func(t *testing.T) {
		e, err := New(Config{Name: EngineWhisperServer, BaseURL: "http://localhost:8000/v1"})
		require.NoError(t, err)
		assert.Equal(t, EngineWhisperServer, e.Name())
	})
	t.Run("openai without key", func(t *testing.T) {
		_, err := New(Config{Name: EngineOpenAI})
		assert.Equal(t, ErrCodeInvalidConfig, CodeOf(err))
	})
}

func TestMockEngine(t *testing.T) {
	m := NewMockEngineWithTexts("one", "two")
	ctx := context.Background()

	for _, want := range []string{"one", "two", ""} {
		res, err := m.Transcribe(ctx, testPCM(160), 16000)
		require.NoError(t, err)
		assert.Equal(t, want, strings.TrimSpace(res.Text))
	}
	assert.Equal(t, 3, m.Calls())
	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
}
