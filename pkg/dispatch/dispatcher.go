// Package dispatch transcribes finalized segments strictly in arrival order
// and routes the text to the output.
//
// Enqueue never blocks, so the data plane cannot stall behind a slow engine.
// A single worker calls the engine serially; each call runs under a watchdog
// deadline. A failed segment is reported and dropped and the worker moves on.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/realtime-ai/asr-indicator/pkg/asr"
	"github.com/realtime-ai/asr-indicator/pkg/audio"
	"github.com/realtime-ai/asr-indicator/pkg/metrics"
	"github.com/realtime-ai/asr-indicator/pkg/output"
	"github.com/realtime-ai/asr-indicator/pkg/pipeline"
	"github.com/realtime-ai/asr-indicator/pkg/trace"
)

// DefaultTimeout bounds a single engine call.
const DefaultTimeout = 60 * time.Second

// ErrNoSpeech is reported when the engine returns no text.
var ErrNoSpeech = errors.New("no speech recognized")

// Deliverer hands text to the user.
type Deliverer interface {
	Deliver(ctx context.Context, text string) (output.Receipt, error)
}

// Options carries the optional settings of a Dispatcher.
type Options struct {
	// Timeout is the engine watchdog. Zero means DefaultTimeout.
	Timeout time.Duration
	// OnBusy is called from the worker when it picks up work after being
	// idle (true) and when the queue drains (false).
	OnBusy  func(busy bool)
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type item struct {
	seg      *audio.Segment
	enqueued time.Time
}

// Dispatcher is the transcription queue and its worker.
//
// Engines must return promptly once their context is cancelled. A call that
// ignores cancellation is abandoned at the timeout and may still be running
// when the next segment's call starts.
type Dispatcher struct {
	engine asr.Engine
	out    Deliverer
	bus    pipeline.Bus

	timeout time.Duration
	onBusy  func(bool)
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	queue    []item
	inFlight bool
	closed   bool
	wake     chan struct{}
}

// New creates a dispatcher. Run starts its worker.
func New(engine asr.Engine, out Deliverer, bus pipeline.Bus, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.OnBusy == nil {
		opts.OnBusy = func(bool) {}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	return &Dispatcher{
		engine:  engine,
		out:     out,
		bus:     bus,
		timeout: opts.Timeout,
		onBusy:  opts.OnBusy,
		logger:  opts.Logger.With("component", "dispatch", "engine", engine.Name()),
		metrics: opts.Metrics,
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue appends seg to the queue. It never blocks; it implements
// pipeline.SegmentSink.
func (d *Dispatcher) Enqueue(seg *audio.Segment) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("dispatcher stopped, dropping segment", "segment", seg.ID)
		return
	}
	d.queue = append(d.queue, item{seg: seg, enqueued: time.Now()})
	d.metrics.QueueDepth.Set(float64(d.depthLocked()))
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Depth returns the number of segments queued or being transcribed.
func (d *Dispatcher) Depth() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.depthLocked()
}

func (d *Dispatcher) depthLocked() int {
	n := len(d.queue)
	if d.inFlight {
		n++
	}
	return n
}

// Run processes segments until ctx is done. The segment in flight when ctx
// is cancelled is completed; segments still queued are logged and dropped.
func (d *Dispatcher) Run(ctx context.Context) error {
	busy := false
	defer func() {
		if busy {
			d.onBusy(false)
		}
	}()

	for {
		it, ok := d.next(ctx)
		if !ok {
			d.shutdown()
			return nil
		}

		if !busy {
			busy = true
			d.onBusy(true)
		}

		d.process(ctx, it)

		d.mu.Lock()
		d.inFlight = false
		idle := len(d.queue) == 0
		d.metrics.QueueDepth.Set(float64(d.depthLocked()))
		d.mu.Unlock()

		if idle {
			busy = false
			d.onBusy(false)
		}
	}
}

// next pops the head of the queue, waiting for work.
func (d *Dispatcher) next(ctx context.Context) (item, bool) {
	for {
		if ctx.Err() != nil {
			return item{}, false
		}
		d.mu.Lock()
		if len(d.queue) > 0 {
			it := d.queue[0]
			d.queue[0] = item{}
			d.queue = d.queue[1:]
			d.inFlight = true
			d.mu.Unlock()
			return it, true
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return item{}, false
		case <-d.wake:
		}
	}
}

func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	dropped := d.queue
	d.queue = nil
	d.closed = true
	d.metrics.QueueDepth.Set(0)
	d.mu.Unlock()

	for _, it := range dropped {
		d.logger.Warn("dropping queued segment on shutdown",
			"segment", it.seg.ID,
			"duration", it.seg.Duration())
	}
}

func (d *Dispatcher) process(ctx context.Context, it item) {
	seg := it.seg
	segID := seg.ID.String()
	logger := d.logger.With("segment", segID)

	// The segment in flight completes even when shutdown starts.
	ctx = context.WithoutCancel(ctx)
	ctx, span := trace.StartSegment(ctx, segID, seg.Duration(), time.Since(it.enqueued), seg.Flushed)
	defer span.End()

	logger.Info("transcribing segment", "duration", seg.Duration(), "queued_for", time.Since(it.enqueued))

	res, err := d.transcribe(ctx, seg)
	if err != nil {
		outcome := metrics.OutcomeError
		if asr.CodeOf(err) == asr.ErrCodeTimeout {
			outcome = metrics.OutcomeTimeout
		}
		d.metrics.Transcriptions.WithLabelValues(d.engine.Name(), outcome).Inc()
		trace.RecordError(span, err)
		logger.Error("transcription failed", "error", err)
		d.fail(segID, pipeline.StageTranscribe, err)
		return
	}

	text := strings.TrimSpace(res.Text)
	span.SetAttributes(attribute.Int(trace.AttrTextLength, len(text)))
	if text == "" {
		d.metrics.Transcriptions.WithLabelValues(d.engine.Name(), metrics.OutcomeEmpty).Inc()
		logger.Warn("no text transcribed")
		d.fail(segID, pipeline.StageTranscribe, ErrNoSpeech)
		return
	}
	d.metrics.Transcriptions.WithLabelValues(d.engine.Name(), metrics.OutcomeSuccess).Inc()
	logger.Debug("transcription complete", "chars", len(text), "latency", res.Latency)

	dctx, dspan := trace.StartDeliver(ctx)
	receipt, err := d.out.Deliver(dctx, text)
	dspan.SetAttributes(
		attribute.String(trace.AttrSink, receipt.Sink),
		attribute.String(trace.AttrOutputTarget, receipt.Target),
	)
	trace.RecordError(dspan, err)
	dspan.End()
	if err != nil {
		trace.RecordError(span, err)
		d.fail(segID, pipeline.StageDeliver, err)
		return
	}

	latency := time.Since(seg.FinalizedAt)
	if seg.FinalizedAt.IsZero() {
		latency = time.Since(it.enqueued)
	}
	d.bus.Publish(pipeline.NewEvent(pipeline.EventSuccess, pipeline.SuccessPayload{
		SegmentID: segID,
		Text:      text,
		Sink:      receipt.Sink,
		Target:    receipt.Target,
		Latency:   latency,
	}))
}

type transcribeResult struct {
	res *asr.Result
	err error
}

// transcribe calls the engine under the watchdog. An engine that ignores
// the deadline is abandoned: its result is discarded when it finally
// returns.
func (d *Dispatcher) transcribe(ctx context.Context, seg *audio.Segment) (*asr.Result, error) {
	ctx, span := trace.StartTranscribe(ctx, d.engine.Name(), seg.SampleRate)
	defer span.End()

	tctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan transcribeResult, 1)
	start := time.Now()
	go func() {
		res, err := d.engine.Transcribe(tctx, seg.PCM(), seg.SampleRate)
		done <- transcribeResult{res: res, err: err}
	}()

	var (
		res *asr.Result
		err error
	)
	select {
	case r := <-done:
		res, err = r.res, r.err
		if err == nil && res == nil {
			err = &asr.Error{Code: asr.ErrCodeProviderError, Message: "engine returned no result"}
		}
	case <-tctx.Done():
		err = &asr.Error{
			Code:    asr.ErrCodeTimeout,
			Message: fmt.Sprintf("engine did not answer within %s", d.timeout),
			Err:     tctx.Err(),
		}
	}
	d.metrics.TranscriptionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		span.SetAttributes(attribute.String(trace.AttrErrorCode, asr.CodeOf(err).String()))
		trace.RecordError(span, err)
		return nil, err
	}
	return res, nil
}

func (d *Dispatcher) fail(segID, stage string, err error) {
	d.bus.Publish(pipeline.NewEvent(pipeline.EventFailure, pipeline.FailurePayload{
		SegmentID: segID,
		Stage:     stage,
		Reason:    err.Error(),
	}))
}
