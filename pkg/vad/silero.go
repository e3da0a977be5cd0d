//go:build vad

package vad

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// sileroContextLen samples of the previous window are prepended to each input.
const sileroContextLen = 64

var (
	runtimeInitialized bool
	runtimeMu          sync.Mutex
)

// InitRuntime loads the onnxruntime shared library. libraryPath may be empty
// to search the usual install locations. Safe to call more than once.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeInitialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = findONNXRuntimeLibrary()
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	runtimeInitialized = true
	return nil
}

// DestroyRuntime tears down the onnxruntime environment.
func DestroyRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if !runtimeInitialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return fmt.Errorf("failed to destroy ONNX runtime: %w", err)
	}
	runtimeInitialized = false
	return nil
}

func findONNXRuntimeLibrary() string {
	paths := []string{
		os.Getenv("ONNXRUNTIME_LIB"),
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/onnxruntime/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	for _, env := range []string{"LD_LIBRARY_PATH", "DYLD_LIBRARY_PATH"} {
		for _, dir := range filepath.SplitList(os.Getenv(env)) {
			paths = append(paths,
				filepath.Join(dir, "libonnxruntime.so"),
				filepath.Join(dir, "libonnxruntime.dylib"))
		}
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// SileroConfig configures the Silero VAD scorer.
type SileroConfig struct {
	// ModelPath points at silero_vad.onnx.
	ModelPath string
	// SampleRate must be 8000 or 16000.
	SampleRate int
}

// Validate checks the model path and sample rate.
func (c SileroConfig) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("silero: model path must not be empty")
	}
	if c.SampleRate != 8000 && c.SampleRate != 16000 {
		return fmt.Errorf("silero: sample rate must be 8000 or 16000, got %d", c.SampleRate)
	}
	return nil
}

// WindowSamples is the number of samples the model consumes per inference:
// 512 at 16 kHz, 256 at 8 kHz.
func (c SileroConfig) WindowSamples() int {
	if c.SampleRate == 8000 {
		return 256
	}
	return 512
}

// SileroScorer runs the Silero VAD model. Frames must be a whole number of
// model windows; a multi-window frame scores as its loudest window.
//
// SileroScorer is not safe for concurrent use.
type SileroScorer struct {
	session *ort.DynamicAdvancedSession
	window  int

	// Tensors are allocated once and reused for every window.
	input   *ort.Tensor[float32]
	state   *ort.Tensor[float32]
	sr      *ort.Tensor[int64]
	output  *ort.Tensor[float32]
	stateN  *ort.Tensor[float32]
	started bool
}

var _ Scorer = (*SileroScorer)(nil)

// NewSileroScorer loads the model. InitRuntime must have been called.
func NewSileroScorer(cfg SileroConfig) (*SileroScorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &SileroScorer{window: cfg.WindowSamples()}

	var err error
	if s.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(s.window+sileroContextLen))); err != nil {
		return nil, fmt.Errorf("silero: input tensor: %w", err)
	}
	if s.state, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128)); err != nil {
		s.Destroy()
		return nil, fmt.Errorf("silero: state tensor: %w", err)
	}
	if s.sr, err = ort.NewTensor(ort.NewShape(1), []int64{int64(cfg.SampleRate)}); err != nil {
		s.Destroy()
		return nil, fmt.Errorf("silero: sr tensor: %w", err)
	}
	if s.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 1)); err != nil {
		s.Destroy()
		return nil, fmt.Errorf("silero: output tensor: %w", err)
	}
	if s.stateN, err = ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 128)); err != nil {
		s.Destroy()
		return nil, fmt.Errorf("silero: stateN tensor: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		s.Destroy()
		return nil, fmt.Errorf("silero: session options: %w", err)
	}
	defer options.Destroy()

	if err := options.SetIntraOpNumThreads(1); err != nil {
		s.Destroy()
		return nil, fmt.Errorf("silero: intra-op threads: %w", err)
	}
	if err := options.SetInterOpNumThreads(1); err != nil {
		s.Destroy()
		return nil, fmt.Errorf("silero: inter-op threads: %w", err)
	}

	s.session, err = ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		options)
	if err != nil {
		s.Destroy()
		return nil, fmt.Errorf("silero: load %s: %w", cfg.ModelPath, err)
	}
	return s, nil
}

// Score implements Scorer.
func (s *SileroScorer) Score(samples []float32) (float32, error) {
	if len(samples) == 0 || len(samples)%s.window != 0 {
		return 0, fmt.Errorf("silero: frame of %d samples is not a multiple of %d", len(samples), s.window)
	}

	var best float32
	for off := 0; off < len(samples); off += s.window {
		p, err := s.infer(samples[off : off+s.window])
		if err != nil {
			return 0, err
		}
		if p > best {
			best = p
		}
	}
	return best, nil
}

func (s *SileroScorer) infer(window []float32) (float32, error) {
	in := s.input.GetData()
	// The first window of a stream runs with a silent context.
	if !s.started {
		clear(in[:sileroContextLen])
		s.started = true
	} else {
		copy(in[:sileroContextLen], in[len(in)-sileroContextLen:])
	}
	copy(in[sileroContextLen:], window)

	if err := s.session.Run(
		[]ort.Value{s.input, s.state, s.sr},
		[]ort.Value{s.output, s.stateN},
	); err != nil {
		return 0, fmt.Errorf("silero: inference: %w", err)
	}

	copy(s.state.GetData(), s.stateN.GetData())
	return s.output.GetData()[0], nil
}

// Reset implements Scorer.
func (s *SileroScorer) Reset() error {
	clear(s.state.GetData())
	clear(s.input.GetData())
	s.started = false
	return nil
}

// Destroy implements Scorer.
func (s *SileroScorer) Destroy() error {
	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
		s.session = nil
	}
	if s.input != nil {
		errs = append(errs, s.input.Destroy())
	}
	if s.state != nil {
		errs = append(errs, s.state.Destroy())
	}
	if s.sr != nil {
		errs = append(errs, s.sr.Destroy())
	}
	if s.output != nil {
		errs = append(errs, s.output.Destroy())
	}
	if s.stateN != nil {
		errs = append(errs, s.stateN.Destroy())
	}
	s.input, s.state, s.sr, s.output, s.stateN = nil, nil, nil, nil, nil
	return errors.Join(errs...)
}
