package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/asr-indicator/pkg/output"
)

func noEnv() envconfig.Lookuper {
	return envconfig.MapLookuper(map[string]string{})
}

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFromReader_YAMLOverDefaults(t *testing.T) {
	yml := `
vad:
  speech_threshold: 0.6
  silence_duration_ms: 900
  pre_roll_ms: 200
engine:
  name: whisper-server
  base_url: http://localhost:8000/v1
  timeout: 30s
output:
  method: file
  file: ~/transcripts.txt
`
	cfg, err := LoadFromReader(strings.NewReader(yml), noEnv())
	require.NoError(t, err)

	assert.InDelta(t, 0.6, cfg.VAD.SpeechThreshold, 1e-6)
	assert.Equal(t, 900, cfg.VAD.SilenceDurationMs)
	assert.Equal(t, "whisper-server", cfg.Engine.Name)
	assert.Equal(t, 30*time.Second, cfg.Engine.Timeout)
	assert.Equal(t, "file", cfg.Output.Method)

	// Untouched sections keep their defaults.
	assert.Equal(t, 16000, cfg.Audio.SampleRate)
	assert.Equal(t, "info", cfg.Log.Level)

	seg := cfg.Segmenter()
	assert.Equal(t, 900*time.Millisecond, seg.SilenceDuration)
	assert.Equal(t, 200*time.Millisecond, seg.PreRoll)
	assert.NoError(t, seg.Validate())
}

func TestLoadFromReader_Empty(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(""), noEnv())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("audio:\n  sample_rat: 16000\n"), noEnv())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample_rat")
}

func TestLoadFromReader_EnvOverrides(t *testing.T) {
	env := envconfig.MapLookuper(map[string]string{
		"ASR_OUTPUT_METHOD":        "type",
		"ASR_OUTPUT_TYPE_DELAY":    "500ms",
		"ASR_VAD_SPEECH_THRESHOLD": "0.4",
		"ASR_LOG_LEVEL":            "debug",
		"ASR_UI_ICON_SUCCESS":      "face-smile",
		"OPENAI_API_KEY":           "sk-test",
	})
	cfg, err := LoadFromReader(strings.NewReader("output:\n  method: clipboard\n"), env)
	require.NoError(t, err)

	assert.Equal(t, "type", cfg.Output.Method, "environment wins over the file")
	assert.Equal(t, 500*time.Millisecond, cfg.Output.TypeDelay)
	assert.InDelta(t, 0.4, cfg.VAD.SpeechThreshold, 1e-6)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "face-smile", cfg.UI.Icons.Success)
	assert.Equal(t, "sk-test", cfg.Engine.APIKey)
	assert.Equal(t, output.MethodType, cfg.Sink().Method)
}

func TestLoadFromReader_FileKeyBeatsConventionalVariable(t *testing.T) {
	env := envconfig.MapLookuper(map[string]string{"OPENAI_API_KEY": "from-env"})
	cfg, err := LoadFromReader(strings.NewReader("engine:\n  api_key: from-file\n"), env)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Engine.APIKey)

	env = envconfig.MapLookuper(map[string]string{
		"OPENAI_API_KEY":     "from-env",
		"ASR_ENGINE_API_KEY": "from-asr-env",
	})
	cfg, err = LoadFromReader(strings.NewReader("engine:\n  api_key: from-file\n"), env)
	require.NoError(t, err)
	assert.Equal(t, "from-asr-env", cfg.Engine.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.VAD.SpeechThreshold = 1.5 },
			wantErr: "vad.speech_threshold",
		},
		{
			name:    "unknown output method",
			mutate:  func(c *Config) { c.Output.Method = "speaker" },
			wantErr: "output.method speaker is invalid",
		},
		{
			name:    "file method without file",
			mutate:  func(c *Config) { c.Output.Method = "file" },
			wantErr: "output.file is required",
		},
		{
			name:    "hangover above threshold",
			mutate:  func(c *Config) { c.VAD.SpeechThreshold, c.VAD.HangoverMargin = 0.3, 0.4 },
			wantErr: "vad.hangover_margin",
		},
		{
			name:    "max shorter than min",
			mutate:  func(c *Config) { c.VAD.MinSegmentMs, c.VAD.MaxSegmentMs = 500, 200 },
			wantErr: "vad.max_segment_ms",
		},
		{
			name:    "silence duration zero",
			mutate:  func(c *Config) { c.VAD.SilenceDurationMs = 0 },
			wantErr: "vad.silence_duration_ms",
		},
		{
			name:    "whisper-server without base url",
			mutate:  func(c *Config) { c.Engine.Name = "whisper-server" },
			wantErr: "engine.base_url is required",
		},
		{
			name:    "whisper-native at 8k",
			mutate:  func(c *Config) { c.Engine.Name, c.Engine.ModelPath, c.Audio.SampleRate = "whisper-native", "m.bin", 8000 },
			wantErr: "sample_rate 16000",
		},
		{
			name:    "silero without model",
			mutate:  func(c *Config) { c.VAD.Engine = "silero" },
			wantErr: "vad.model_path is required",
		},
		{
			name:    "bad server address",
			mutate:  func(c *Config) { c.Server.Addr = "not an address" },
			wantErr: "server.addr",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Engine.Timeout = -time.Second },
			wantErr: "engine.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Output.Method = "speaker"
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output.method")
	assert.Contains(t, err.Error(), "log.format")
}

func TestLoad_CreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, created, err := Load(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, Default().Output, cfg.Output)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// The written file round-trips through the strict decoder.
	_, created, err = Load(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("ASR_DOTENV_PROBE=loaded\n"), 0o600))
	t.Setenv("ASR_DOTENV_PROBE", "")
	require.NoError(t, os.Unsetenv("ASR_DOTENV_PROBE"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("ASR_DOTENV_PROBE"))
}

func TestConverters(t *testing.T) {
	cfg := Default()
	cfg.Engine.Timeout = 5 * time.Second
	cfg.Trace.Exporter = "stdout"

	assert.Equal(t, cfg.Audio.SampleRate, cfg.Capture().SampleRate)
	assert.Equal(t, cfg.Audio.SampleRate, cfg.Scorer().SampleRate)
	assert.Equal(t, "openai", cfg.ASR().Name)
	assert.Equal(t, cfg.Command.SocketPath, cfg.Listener().SocketPath)
	assert.True(t, cfg.Notify().Enabled)
	assert.Equal(t, "emblem-ok", cfg.Notify().Icons.Success)
	assert.Equal(t, "stdout", cfg.Tracing().ExporterType)
	assert.Equal(t, AppName, cfg.Tracing().ServiceName)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger := cfg.NewLoggerTo(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "component", "test")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"component":"test"`)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("verbose"))
}
