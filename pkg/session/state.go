// Package session owns the Paused/Listening/Processing state of the service.
//
// The state is a single atomic value. Only the Machine writes it, serialized
// by its mutex; the data plane reads it lock-free once per frame through
// Open.
//
// Transitions:
//
//	Paused     --Start-->  Listening   (Activated)
//	Listening  --Stop--->  Paused      (open segment flushed first, then Paused)
//	Processing --Stop--->  Paused
//	Listening  --busy--->  Processing  (Processing)
//	Processing --idle--->  Listening
//
// Redundant commands change nothing and publish nothing.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/realtime-ai/asr-indicator/pkg/command"
	"github.com/realtime-ai/asr-indicator/pkg/metrics"
	"github.com/realtime-ai/asr-indicator/pkg/pipeline"
)

// State is the operating state of the service.
type State int32

const (
	Paused State = iota
	Listening
	Processing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Paused:
		return "paused"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Flusher closes the open speech segment and returns once it is queued.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Machine is the session state machine.
type Machine struct {
	state atomic.Int32

	mu      sync.Mutex
	busy    bool
	flusher Flusher
	bus     pipeline.Bus
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewMachine creates a machine in the Paused state.
func NewMachine(flusher Flusher, bus pipeline.Bus, logger *slog.Logger, m *metrics.Metrics) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewUnregistered()
	}
	return &Machine{
		flusher: flusher,
		bus:     bus,
		logger:  logger.With("component", "session"),
		metrics: m,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// Open implements pipeline.Gate: frames flow unless the service is paused.
func (m *Machine) Open() bool {
	return m.State() != Paused
}

// set must be called with mu held.
func (m *Machine) set(s State) {
	m.state.Store(int32(s))
	m.metrics.SessionState.Set(float64(s))
}

func (m *Machine) publish(t pipeline.EventType) {
	m.bus.Publish(pipeline.NewEvent(t, m.State().String()))
}

// Start begins listening. It is a no-op unless the service is paused.
func (m *Machine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != Paused {
		m.logger.Debug("ignoring start", "state", m.State())
		return
	}

	m.set(Listening)
	m.logger.Info("listening")
	m.publish(pipeline.EventActivated)

	// Transcription of earlier speech may still be running.
	if m.busy {
		m.set(Processing)
		m.publish(pipeline.EventProcessing)
	}
}

// Stop pauses listening. The gate closes first so no new audio reaches the
// segmenter, then the open segment is flushed; Paused is published after the
// flush has completed. Segments already queued still transcribe and deliver.
func (m *Machine) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == Paused {
		m.logger.Debug("ignoring stop", "state", m.State())
		return nil
	}

	m.set(Paused)

	var flushErr error
	if m.flusher != nil {
		if err := m.flusher.Flush(ctx); err != nil {
			flushErr = fmt.Errorf("flush open segment: %w", err)
			m.logger.Warn("flush on stop failed", "error", err)
		}
	}

	m.logger.Info("paused")
	m.publish(pipeline.EventPaused)
	return flushErr
}

// SetBusy is called by the dispatcher when a segment starts (true) or the
// queue drains (false). It never blocks on the data plane.
func (m *Machine) SetBusy(busy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.busy = busy
	switch {
	case busy && m.State() == Listening:
		m.set(Processing)
		m.publish(pipeline.EventProcessing)
	case !busy && m.State() == Processing:
		m.set(Listening)
	}
}

// Handle applies one command.
func (m *Machine) Handle(ctx context.Context, cmd command.Command) error {
	m.metrics.Commands.WithLabelValues(cmd.String()).Inc()
	switch cmd {
	case command.Start:
		m.Start()
		return nil
	case command.Stop:
		return m.Stop(ctx)
	default:
		return fmt.Errorf("unknown command %v", cmd)
	}
}

// Run consumes commands until ctx is done or cmds is closed. Each command is
// consumed exactly once.
func (m *Machine) Run(ctx context.Context, cmds <-chan command.Command) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-cmds:
			if !ok {
				return nil
			}
			if err := m.Handle(ctx, cmd); err != nil {
				m.logger.Warn("command failed", "command", cmd, "error", err)
			}
		}
	}
}
