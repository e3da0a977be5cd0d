// Package config loads the service configuration.
//
// Values come from three layers, later ones winning: built-in defaults, the
// YAML file, and the environment (ASR_* variables, with a .env file loaded
// first). The result is validated before use.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/realtime-ai/asr-indicator/pkg/asr"
	"github.com/realtime-ai/asr-indicator/pkg/audio"
	"github.com/realtime-ai/asr-indicator/pkg/command"
	"github.com/realtime-ai/asr-indicator/pkg/dispatch"
	"github.com/realtime-ai/asr-indicator/pkg/notify"
	"github.com/realtime-ai/asr-indicator/pkg/output"
	"github.com/realtime-ai/asr-indicator/pkg/trace"
	"github.com/realtime-ai/asr-indicator/pkg/vad"
)

// AppName names the config directory and the notification sender.
const AppName = "asr-indicator"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ASR_"

// Config is the complete service configuration.
type Config struct {
	Audio   AudioConfig   `yaml:"audio" env:", prefix=AUDIO_"`
	VAD     VADConfig     `yaml:"vad" env:", prefix=VAD_"`
	Engine  EngineConfig  `yaml:"engine" env:", prefix=ENGINE_"`
	Output  OutputConfig  `yaml:"output" env:", prefix=OUTPUT_"`
	Command CommandConfig `yaml:"command" env:", prefix=COMMAND_"`
	UI      UIConfig      `yaml:"ui" env:", prefix=UI_"`
	Server  ServerConfig  `yaml:"server" env:", prefix=SERVER_"`
	Trace   TraceConfig   `yaml:"trace" env:", prefix=TRACE_"`
	Log     LogConfig     `yaml:"log" env:", prefix=LOG_"`
	Debug   DebugConfig   `yaml:"debug" env:", prefix=DEBUG_"`
}

// AudioConfig selects the capture device and frame format.
type AudioConfig struct {
	InputDevice      string `yaml:"input_device" env:"INPUT_DEVICE"`
	SampleRate       int    `yaml:"sample_rate" env:"SAMPLE_RATE" validate:"oneof=8000 16000"`
	Channels         int    `yaml:"channels" env:"CHANNELS" validate:"gte=1,lte=8"`
	FrameMs          int    `yaml:"frame_ms" env:"FRAME_MS" validate:"gte=10,lte=100"`
	DeviceSampleRate int    `yaml:"device_sample_rate" env:"DEVICE_SAMPLE_RATE" validate:"gte=0"`
	BufferFrames     int    `yaml:"buffer_frames" env:"BUFFER_FRAMES" validate:"gte=1"`
}

// VADConfig configures scoring and segmentation.
type VADConfig struct {
	Engine            string  `yaml:"engine" env:"ENGINE" validate:"oneof=silero energy"`
	ModelPath         string  `yaml:"model_path" env:"MODEL_PATH"`
	ONNXLibrary       string  `yaml:"onnx_library" env:"ONNX_LIBRARY"`
	SpeechThreshold   float32 `yaml:"speech_threshold" env:"SPEECH_THRESHOLD" validate:"gte=0,lte=1"`
	HangoverMargin    float32 `yaml:"hangover_margin" env:"HANGOVER_MARGIN" validate:"gte=0,lte=1"`
	SilenceDurationMs int     `yaml:"silence_duration_ms" env:"SILENCE_DURATION_MS" validate:"gt=0"`
	MinSegmentMs      int     `yaml:"min_segment_ms" env:"MIN_SEGMENT_MS" validate:"gte=0"`
	MaxSegmentMs      int     `yaml:"max_segment_ms" env:"MAX_SEGMENT_MS" validate:"gte=0"`
	PreRollMs         int     `yaml:"pre_roll_ms" env:"PRE_ROLL_MS" validate:"gte=0"`
	TrailingPadMs     int     `yaml:"trailing_pad_ms" env:"TRAILING_PAD_MS" validate:"gte=0"`
	EnergyFloorDB     float64 `yaml:"energy_floor_db" env:"ENERGY_FLOOR_DB"`
	EnergyCeilingDB   float64 `yaml:"energy_ceiling_db" env:"ENERGY_CEILING_DB"`
}

// EngineConfig selects the transcription engine.
type EngineConfig struct {
	Name        string        `yaml:"name" env:"NAME" validate:"oneof=openai whisper-server whisper-native azure"`
	Model       string        `yaml:"model" env:"MODEL"`
	Language    string        `yaml:"language" env:"LANGUAGE"`
	Prompt      string        `yaml:"prompt" env:"PROMPT"`
	Temperature float32       `yaml:"temperature" env:"TEMPERATURE" validate:"gte=0,lte=1"`
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL" validate:"omitempty,url"`
	ModelPath   string        `yaml:"model_path" env:"MODEL_PATH"`
	Threads     int           `yaml:"threads" env:"THREADS" validate:"gte=0"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT" validate:"gt=0"`
	AzureKey    string        `yaml:"azure_key" env:"AZURE_KEY"`
	AzureRegion string        `yaml:"azure_region" env:"AZURE_REGION"`
}

// OutputConfig selects the sink.
type OutputConfig struct {
	Method    string        `yaml:"method" env:"METHOD" validate:"oneof=clipboard type file"`
	File      string        `yaml:"file" env:"FILE"`
	TypeDelay time.Duration `yaml:"type_delay" env:"TYPE_DELAY" validate:"gte=0"`
}

// CommandConfig configures the command socket.
type CommandConfig struct {
	SocketPath string `yaml:"socket_path" env:"SOCKET_PATH"`
	Buffer     int    `yaml:"buffer" env:"BUFFER" validate:"gte=1"`
}

// UIConfig configures desktop notifications.
type UIConfig struct {
	ShowNotifications bool        `yaml:"show_notifications" env:"SHOW_NOTIFICATIONS"`
	AppName           string      `yaml:"app_name" env:"APP_NAME"`
	Icons             IconsConfig `yaml:"icons" env:", prefix=ICON_"`
}

// IconsConfig holds icon names or paths per notification kind.
type IconsConfig struct {
	App        string `yaml:"app" env:"APP"`
	Listening  string `yaml:"listening" env:"LISTENING"`
	Paused     string `yaml:"paused" env:"PAUSED"`
	Processing string `yaml:"processing" env:"PROCESSING"`
	Success    string `yaml:"success" env:"SUCCESS"`
	Error      string `yaml:"error" env:"ERROR"`
}

// ServerConfig configures the optional status server.
type ServerConfig struct {
	// Addr is the listen address. Empty disables the server.
	Addr string `yaml:"addr" env:"ADDR" validate:"omitempty,hostname_port"`
}

// TraceConfig configures OpenTelemetry export.
type TraceConfig struct {
	Exporter     string  `yaml:"exporter" env:"EXPORTER" validate:"oneof=none stdout otlp"`
	Endpoint     string  `yaml:"endpoint" env:"ENDPOINT"`
	SamplingRate float64 `yaml:"sampling_rate" env:"SAMPLING_RATE" validate:"gte=0,lte=1"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" env:"FORMAT" validate:"oneof=text json"`
}

// DebugConfig holds diagnostic switches.
type DebugConfig struct {
	// DumpDir, when set, receives a WAV file per finalized segment.
	DumpDir string `yaml:"dump_dir" env:"DUMP_DIR"`
}

// secrets are read from their conventional unprefixed variables.
type secrets struct {
	OpenAIKey   string `env:"OPENAI_API_KEY"`
	AzureKey    string `env:"AZURE_SPEECH_KEY"`
	AzureRegion string `env:"AZURE_SPEECH_REGION"`
}

// Default returns the built-in configuration.
func Default() *Config {
	capture := audio.DefaultCaptureConfig()
	seg := vad.DefaultSegmenterConfig()
	return &Config{
		Audio: AudioConfig{
			InputDevice:  capture.Device,
			SampleRate:   capture.SampleRate,
			Channels:     capture.Channels,
			FrameMs:      capture.FrameMs,
			BufferFrames: capture.BufferFrames,
		},
		VAD: VADConfig{
			Engine:            vad.EngineEnergy,
			SpeechThreshold:   seg.SpeechThreshold,
			HangoverMargin:    seg.HangoverMargin,
			SilenceDurationMs: int(seg.SilenceDuration / time.Millisecond),
			MinSegmentMs:      int(seg.MinSegment / time.Millisecond),
			EnergyFloorDB:     vad.DefaultEnergyFloorDB,
			EnergyCeilingDB:   vad.DefaultEnergyCeilingDB,
		},
		Engine: EngineConfig{
			Name:     asr.EngineOpenAI,
			Model:    asr.DefaultOpenAIModel,
			Language: "auto",
			Timeout:  dispatch.DefaultTimeout,
		},
		Output: OutputConfig{
			Method:    string(output.MethodClipboard),
			TypeDelay: output.DefaultTypeDelay,
		},
		Command: CommandConfig{
			SocketPath: command.DefaultSocketPath(),
			Buffer:     command.DefaultBuffer,
		},
		UI: UIConfig{
			ShowNotifications: true,
			AppName:           "ASR",
			Icons: IconsConfig{
				App:        "audio-input-microphone",
				Listening:  "media-record",
				Paused:     "media-playback-pause",
				Processing: "preferences-system-time",
				Success:    "emblem-ok",
				Error:      "dialog-error",
			},
		},
		Trace: TraceConfig{
			Exporter:     trace.ExporterNone,
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns ~/.config/asr-indicator/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: locate config dir: %w", err)
	}
	return filepath.Join(dir, AppName, "config.yaml"), nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables are kept.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML file at path, applies environment overrides and
// validates the result. A missing file is created with the defaults. The
// second return value reports whether that happened.
func Load(path string) (*Config, bool, error) {
	created := false
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := WriteDefault(path); err != nil {
			return nil, false, err
		}
		created = true
		data = nil
	case err != nil:
		return nil, false, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg, err := LoadFromReader(bytes.NewReader(data), envconfig.OsLookuper())
	if err != nil {
		return nil, false, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, created, nil
}

// LoadFromReader decodes YAML from r over the defaults, applies overrides
// from lookuper and validates. Useful in tests with envconfig.MapLookuper.
func LoadFromReader(r io.Reader, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := applyEnv(cfg, lookuper); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookuper envconfig.Lookuper) error {
	ctx := context.Background()

	var sec secrets
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &sec,
		Lookuper: lookuper,
	}); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if cfg.Engine.APIKey == "" {
		cfg.Engine.APIKey = sec.OpenAIKey
	}
	if cfg.Engine.AzureKey == "" {
		cfg.Engine.AzureKey = sec.AzureKey
	}
	if cfg.Engine.AzureRegion == "" {
		cfg.Engine.AzureRegion = sec.AzureRegion
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           cfg,
		Lookuper:         envconfig.PrefixLookuper(EnvPrefix, lookuper),
		DefaultOverwrite: true,
	}); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	return nil
}

// WriteDefault writes the default configuration to path, creating parent
// directories.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("config: encode defaults: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field ranges and cross-field constraints. It returns a
// joined error listing every failure.
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	if c.VAD.HangoverMargin > c.VAD.SpeechThreshold {
		errs = append(errs, fmt.Errorf("vad.hangover_margin %v exceeds vad.speech_threshold %v",
			c.VAD.HangoverMargin, c.VAD.SpeechThreshold))
	}
	if c.VAD.MaxSegmentMs > 0 && c.VAD.MaxSegmentMs < c.VAD.MinSegmentMs {
		errs = append(errs, fmt.Errorf("vad.max_segment_ms %d is shorter than vad.min_segment_ms %d",
			c.VAD.MaxSegmentMs, c.VAD.MinSegmentMs))
	}
	if c.VAD.Engine == vad.EngineSilero && c.VAD.ModelPath == "" {
		errs = append(errs, errors.New("vad.model_path is required for the silero engine"))
	}
	if c.VAD.EnergyCeilingDB <= c.VAD.EnergyFloorDB {
		errs = append(errs, fmt.Errorf("vad.energy_ceiling_db %v must be above vad.energy_floor_db %v",
			c.VAD.EnergyCeilingDB, c.VAD.EnergyFloorDB))
	}
	switch c.Engine.Name {
	case asr.EngineWhisperServer:
		if c.Engine.BaseURL == "" {
			errs = append(errs, errors.New("engine.base_url is required for whisper-server"))
		}
	case asr.EngineWhisperNative:
		if c.Engine.ModelPath == "" {
			errs = append(errs, errors.New("engine.model_path is required for whisper-native"))
		}
		if c.Audio.SampleRate != 16000 {
			errs = append(errs, errors.New("whisper-native needs audio.sample_rate 16000"))
		}
	case asr.EngineAzure:
		if c.Engine.AzureRegion == "" {
			errs = append(errs, errors.New("engine.azure_region is required for azure"))
		}
	}
	if c.Output.Method == string(output.MethodFile) && c.Output.File == "" {
		errs = append(errs, errors.New("output.file is required when output.method is file"))
	}

	return errors.Join(errs...)
}

// fieldError renders a validator failure with the YAML path of the field.
func fieldError(fe validator.FieldError) error {
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Errorf("%s %v is invalid; valid values: %s", path, fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte", "gt", "lte", "lt":
		return fmt.Errorf("%s %v must be %s %s", path, fe.Value(), fe.Tag(), fe.Param())
	default:
		return fmt.Errorf("%s %v fails %q", path, fe.Value(), fe.Tag())
	}
}

func expand(path string) string {
	if p, err := output.ExpandHome(path); err == nil {
		return p
	}
	return path
}

// Capture returns the audio capture settings.
func (c *Config) Capture() audio.CaptureConfig {
	return audio.CaptureConfig{
		Device:           c.Audio.InputDevice,
		SampleRate:       c.Audio.SampleRate,
		Channels:         c.Audio.Channels,
		FrameMs:          c.Audio.FrameMs,
		DeviceSampleRate: c.Audio.DeviceSampleRate,
		BufferFrames:     c.Audio.BufferFrames,
	}
}

// Scorer returns the VAD scorer settings.
func (c *Config) Scorer() vad.ScorerConfig {
	return vad.ScorerConfig{
		Engine:      c.VAD.Engine,
		ModelPath:   expand(c.VAD.ModelPath),
		LibraryPath: c.VAD.ONNXLibrary,
		SampleRate:  c.Audio.SampleRate,
		FloorDB:     c.VAD.EnergyFloorDB,
		CeilingDB:   c.VAD.EnergyCeilingDB,
	}
}

// Segmenter returns the segmentation settings.
func (c *Config) Segmenter() vad.SegmenterConfig {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	return vad.SegmenterConfig{
		SpeechThreshold: c.VAD.SpeechThreshold,
		HangoverMargin:  c.VAD.HangoverMargin,
		SilenceDuration: ms(c.VAD.SilenceDurationMs),
		MinSegment:      ms(c.VAD.MinSegmentMs),
		MaxSegment:      ms(c.VAD.MaxSegmentMs),
		PreRoll:         ms(c.VAD.PreRollMs),
		TrailingPad:     ms(c.VAD.TrailingPadMs),
	}
}

// ASR returns the engine settings.
func (c *Config) ASR() asr.Config {
	return asr.Config{
		Name:        c.Engine.Name,
		Model:       c.Engine.Model,
		Language:    c.Engine.Language,
		Prompt:      c.Engine.Prompt,
		Temperature: c.Engine.Temperature,
		APIKey:      c.Engine.APIKey,
		BaseURL:     c.Engine.BaseURL,
		ModelPath:   expand(c.Engine.ModelPath),
		Threads:     c.Engine.Threads,
		AzureKey:    c.Engine.AzureKey,
		AzureRegion: c.Engine.AzureRegion,
	}
}

// Sink returns the output settings.
func (c *Config) Sink() output.Config {
	return output.Config{
		Method:    output.Method(c.Output.Method),
		File:      c.Output.File,
		TypeDelay: c.Output.TypeDelay,
	}
}

// Listener returns the command socket settings.
func (c *Config) Listener() command.ListenerConfig {
	return command.ListenerConfig{
		SocketPath: c.Command.SocketPath,
		Buffer:     c.Command.Buffer,
	}
}

// Notify returns the notification settings.
func (c *Config) Notify() notify.Config {
	icons := c.UI.Icons
	return notify.Config{
		Enabled: c.UI.ShowNotifications,
		AppName: c.UI.AppName,
		Icons: notify.Icons{
			App:        icons.App,
			Listening:  icons.Listening,
			Paused:     icons.Paused,
			Processing: icons.Processing,
			Success:    icons.Success,
			Error:      icons.Error,
		},
	}
}

// Tracing returns the OpenTelemetry settings.
func (c *Config) Tracing() trace.Config {
	tc := trace.DefaultConfig()
	tc.ServiceName = AppName
	tc.ExporterType = c.Trace.Exporter
	tc.OTLPEndpoint = c.Trace.Endpoint
	tc.SamplingRate = c.Trace.SamplingRate
	return tc
}
