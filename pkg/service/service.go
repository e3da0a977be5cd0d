// Package service assembles the components into the running service and
// supervises their goroutines.
//
//	capture -> pipeline (gated by session) -> dispatcher -> output
//	command socket -> session
//	session, pipeline, dispatcher -> bus -> notifier, status server
//
// Every long-running part runs under one errgroup. A fatal data-plane error
// cancels the group and is returned, so the process can exit non-zero and
// be restarted by its supervisor.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/realtime-ai/asr-indicator/pkg/asr"
	"github.com/realtime-ai/asr-indicator/pkg/audio"
	"github.com/realtime-ai/asr-indicator/pkg/command"
	"github.com/realtime-ai/asr-indicator/pkg/config"
	"github.com/realtime-ai/asr-indicator/pkg/dispatch"
	"github.com/realtime-ai/asr-indicator/pkg/metrics"
	"github.com/realtime-ai/asr-indicator/pkg/notify"
	"github.com/realtime-ai/asr-indicator/pkg/output"
	"github.com/realtime-ai/asr-indicator/pkg/pipeline"
	"github.com/realtime-ai/asr-indicator/pkg/server"
	"github.com/realtime-ai/asr-indicator/pkg/session"
	"github.com/realtime-ai/asr-indicator/pkg/vad"
)

// PIDFileName is written next to the command socket.
const PIDFileName = "asr-indicator.pid"

// Deps overrides the components New would otherwise build from the
// configuration. Nil fields are built.
type Deps struct {
	Source   audio.FrameSource
	Scorer   vad.Scorer
	Engine   asr.Engine
	Sink     output.Sink
	Notify   notify.SendFunc
	Registry *prometheus.Registry
}

// Service is the assembled service.
type Service struct {
	cfg    *config.Config
	logger *slog.Logger

	bus      *pipeline.EventBus
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	source audio.FrameSource
	scorer vad.Scorer
	engine asr.Engine

	machine    *session.Machine
	dispatcher *dispatch.Dispatcher
	pipeline   *pipeline.Pipeline
	listener   *command.Listener
	notifier   *notify.Notifier
	status     *server.StatusServer

	pidPath string
}

// pipelineFlusher breaks the construction cycle between the machine, which
// flushes the pipeline, and the pipeline, which is gated by the machine.
type pipelineFlusher struct {
	p *pipeline.Pipeline
}

func (f *pipelineFlusher) Flush(ctx context.Context) error {
	if f.p == nil {
		return pipeline.ErrStopped
	}
	return f.p.Flush(ctx)
}

// New builds every component. On error, whatever was already acquired is
// released.
func New(cfg *config.Config, logger *slog.Logger, deps Deps) (svc *Service, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:      cfg,
		logger:   logger.With("component", "service"),
		bus:      pipeline.NewEventBus(),
		registry: deps.Registry,
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	s.metrics = metrics.NewMetrics(s.registry)

	s.engine = deps.Engine
	if s.engine == nil {
		if s.engine, err = asr.New(cfg.ASR()); err != nil {
			return nil, fmt.Errorf("transcription engine: %w", err)
		}
	}

	var router *output.Router
	if deps.Sink != nil {
		router = output.NewRouterWithSink(deps.Sink, logger, s.metrics)
	} else if router, err = output.NewRouter(cfg.Sink(), logger, s.metrics); err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}

	s.scorer = deps.Scorer
	if s.scorer == nil {
		if s.scorer, err = vad.NewScorer(cfg.Scorer()); err != nil {
			return nil, fmt.Errorf("vad: %w", err)
		}
	}
	segmenter, err := vad.NewSegmenter(cfg.Segmenter(), s.scorer)
	if err != nil {
		return nil, fmt.Errorf("vad: %w", err)
	}

	var dumper *audio.SegmentDumper
	if cfg.Debug.DumpDir != "" {
		if dumper, err = audio.NewSegmentDumper(cfg.Debug.DumpDir); err != nil {
			return nil, fmt.Errorf("debug dump: %w", err)
		}
	}

	flusher := &pipelineFlusher{}
	s.machine = session.NewMachine(flusher, s.bus, logger, s.metrics)
	s.dispatcher = dispatch.New(s.engine, router, s.bus, dispatch.Options{
		Timeout: cfg.Engine.Timeout,
		OnBusy:  s.machine.SetBusy,
		Logger:  logger,
		Metrics: s.metrics,
	})

	s.listener, err = command.Listen(cfg.Listener(), logger, s.metrics)
	if err != nil {
		return nil, fmt.Errorf("command socket: %w", err)
	}

	// The device opens last so a failed startup does not hold it.
	s.source = deps.Source
	if s.source == nil {
		capture, err := audio.OpenCapture(cfg.Capture(), logger)
		if err != nil {
			return nil, err
		}
		s.source = capture
	}

	s.pipeline = pipeline.New(s.source, s.machine, segmenter, s.dispatcher, s.bus, pipeline.Options{
		Logger:  logger,
		Metrics: s.metrics,
		Dumper:  dumper,
	})
	flusher.p = s.pipeline

	s.notifier = notify.New(cfg.Notify(), s.bus, deps.Notify, logger)

	if cfg.Server.Addr != "" {
		s.status = server.New(server.Config{Addr: cfg.Server.Addr},
			s.machine, s.dispatcher, s.bus, s.registry, logger)
	}

	s.pidPath = filepath.Join(filepath.Dir(s.listener.Path()), PIDFileName)
	return s, nil
}

// Run starts every component and blocks until ctx is done or one of them
// fails. The segment being transcribed at shutdown is still delivered.
func (s *Service) Run(ctx context.Context) error {
	s.writePID()
	defer s.removePID()

	s.logger.Info("service started",
		"engine", s.engine.Name(),
		"socket", s.listener.Path(),
		"state", s.machine.State())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.pipeline.Run(gctx); err != nil {
			return fmt.Errorf("data plane: %w", err)
		}
		return nil
	})
	g.Go(func() error { return s.listener.Serve(gctx) })
	g.Go(func() error { return s.machine.Run(gctx, s.listener.C()) })
	g.Go(func() error { return s.dispatcher.Run(gctx) })
	g.Go(func() error { return s.notifier.Run(gctx) })
	if s.status != nil {
		g.Go(func() error { return s.status.Run(gctx) })
	}

	err := g.Wait()
	if err != nil {
		s.logger.Error("service failed", "error", err)
		return err
	}
	s.logger.Info("service stopped")
	return nil
}

// Close releases the device, the scorer, the engine and the socket.
func (s *Service) Close() error {
	var errs []error
	if s.source != nil {
		errs = append(errs, s.source.Close())
	}
	if s.listener != nil {
		errs = append(errs, s.listener.Close())
	}
	if s.scorer != nil {
		errs = append(errs, s.scorer.Destroy())
	}
	if s.engine != nil {
		errs = append(errs, s.engine.Close())
	}
	return errors.Join(errs...)
}

// Machine returns the session state machine.
func (s *Service) Machine() *session.Machine { return s.machine }

// Dispatcher returns the transcription dispatcher.
func (s *Service) Dispatcher() *dispatch.Dispatcher { return s.dispatcher }

// Bus returns the status event bus.
func (s *Service) Bus() pipeline.Bus { return s.bus }

// SocketPath returns the command socket path.
func (s *Service) SocketPath() string { return s.listener.Path() }

// PIDPath returns the PID file path.
func (s *Service) PIDPath() string { return s.pidPath }

// writePID records the process ID for external tooling. Failure is not
// fatal.
func (s *Service) writePID() {
	if err := os.WriteFile(s.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		s.logger.Warn("could not write pid file", "path", s.pidPath, "error", err)
	}
}

func (s *Service) removePID() {
	if err := os.Remove(s.pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("could not remove pid file", "path", s.pidPath, "error", err)
	}
}
