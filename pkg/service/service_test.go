package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/asr-indicator/pkg/asr"
	"github.com/realtime-ai/asr-indicator/pkg/audio"
	"github.com/realtime-ai/asr-indicator/pkg/command"
	"github.com/realtime-ai/asr-indicator/pkg/config"
	"github.com/realtime-ai/asr-indicator/pkg/notify"
	"github.com/realtime-ai/asr-indicator/pkg/output"
	"github.com/realtime-ai/asr-indicator/pkg/session"
	"github.com/realtime-ai/asr-indicator/pkg/vad"
)

const (
	sampleRate   = 16000
	frameSamples = 512 // 32 ms
)

// liveSource hands out frames only when the test pushes them, like a
// microphone that produces audio in real time.
type liveSource struct {
	frames chan audio.Frame
	errs   chan error
	seq    uint64
}

func newLiveSource() *liveSource {
	return &liveSource{frames: make(chan audio.Frame), errs: make(chan error, 1)}
}

func (s *liveSource) ReadFrame(ctx context.Context) (audio.Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case err := <-s.errs:
		return audio.Frame{}, err
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

func (s *liveSource) Close() error { return nil }

func (s *liveSource) push(t *testing.T, n int, amplitude int16) {
	t.Helper()
	for _, f := range audio.ToneFrames(n, frameSamples, sampleRate, amplitude) {
		f.Seq = s.seq
		s.seq++
		select {
		case s.frames <- f:
		case <-time.After(2 * time.Second):
			t.Fatal("data plane stopped reading")
		}
	}
}

// loudScorer reports speech for any frame with signal.
func loudScorer() *vad.MockScorer {
	return &vad.MockScorer{
		ScoreFunc: func(samples []float32) (float32, error) {
			if len(samples) > 0 && (samples[0] > 0.01 || samples[0] < -0.01) {
				return 0.9, nil
			}
			return 0.05, nil
		},
	}
}

type shown struct {
	mu    sync.Mutex
	notes []notify.Notification
}

func (s *shown) send(n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
	return nil
}

func (s *shown) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, n := range s.notes {
		out = append(out, n.Message)
	}
	return out
}

type fixture struct {
	svc    *Service
	src    *liveSource
	sink   *output.MockSink
	engine *asr.MockEngine
	shown  *shown
	cancel context.CancelFunc
	done   chan error
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	// Unix socket paths are length-limited; t.TempDir can be too deep.
	dir, err := os.MkdirTemp("", "asrsvc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := config.Default()
	cfg.Command.SocketPath = filepath.Join(dir, "cmd.sock")
	cfg.Audio.FrameMs = 32
	cfg.Server.Addr = "127.0.0.1:0"
	return cfg
}

func start(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		src:    newLiveSource(),
		sink:   output.NewMockSink(),
		engine: asr.NewMockEngineWithTexts("first utterance", "second utterance"),
		shown:  &shown{},
		done:   make(chan error, 1),
	}

	svc, err := New(cfg, nil, Deps{
		Source:   f.src,
		Scorer:   loudScorer(),
		Engine:   f.engine,
		Sink:     f.sink,
		Notify:   f.shown.send,
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	f.svc = svc

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- svc.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		svc.Close()
	})
	return f
}

func (f *fixture) send(t *testing.T, cmd command.Command) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.Eventually(t, func() bool {
		return command.Send(ctx, f.svc.SocketPath(), cmd) == nil
	}, 2*time.Second, 20*time.Millisecond)
}

func TestService_EndToEnd(t *testing.T) {
	f := start(t, testConfig(t))

	// Frames while paused never reach the segmenter.
	f.src.push(t, 5, 8000)
	assert.Equal(t, session.Paused, f.svc.Machine().State())

	f.send(t, command.Start)
	require.Eventually(t, func() bool { return f.svc.Machine().State() != session.Paused }, time.Second, 5*time.Millisecond)

	// 320 ms of speech closed by 800 ms of silence.
	f.src.push(t, 10, 8000)
	f.src.push(t, 25, 0)
	require.Eventually(t, func() bool { return len(f.sink.Texts()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "first utterance", f.sink.Texts()[0])

	// Speech cut off by Stop is flushed and still transcribed.
	f.src.push(t, 10, 8000)
	f.src.push(t, 1, 0)
	f.send(t, command.Stop)
	require.Eventually(t, func() bool { return f.svc.Machine().State() == session.Paused }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(f.sink.Texts()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "second utterance", f.sink.Texts()[1])

	assert.Equal(t, 2, f.engine.Calls())
	assert.Eventually(t, func() bool {
		return slices.Contains(f.shown.messages(), "Text delivered")
	}, time.Second, 10*time.Millisecond)

	// PID file exists while running and is removed on shutdown.
	data, err := os.ReadFile(f.svc.PIDPath())
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid()), string(data))

	f.cancel()
	select {
	case err := <-f.done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("service did not stop")
	}
	_, err = os.Stat(f.svc.PIDPath())
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(f.svc.SocketPath())
	assert.True(t, os.IsNotExist(err), "socket removed on shutdown")
}

func TestService_DeviceFailureIsFatal(t *testing.T) {
	f := start(t, testConfig(t))

	f.src.errs <- fmt.Errorf("%w: device unplugged", audio.ErrStreamInterrupted)

	select {
	case err := <-f.done:
		require.Error(t, err)
		assert.ErrorIs(t, err, audio.ErrStreamInterrupted)
	case <-time.After(3 * time.Second):
		t.Fatal("service kept running after a device failure")
	}
}

func TestService_SecondInstanceRefused(t *testing.T) {
	cfg := testConfig(t)
	start(t, cfg)

	_, err := New(cfg, nil, Deps{
		Source:   newLiveSource(),
		Scorer:   loudScorer(),
		Engine:   asr.NewMockEngine("x"),
		Sink:     output.NewMockSink(),
		Registry: prometheus.NewRegistry(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")
}

func TestService_UnknownEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.Name = "nope"

	_, err := New(cfg, nil, Deps{Source: newLiveSource(), Scorer: loudScorer(), Sink: output.NewMockSink()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcription engine")
}
