package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/realtime-ai/asr-indicator/pkg/audio"
	"github.com/realtime-ai/asr-indicator/pkg/metrics"
	"github.com/realtime-ai/asr-indicator/pkg/vad"
)

// Gate decides per frame whether audio reaches the segmenter.
type Gate interface {
	Open() bool
}

// SegmentSink receives finalized segments. Enqueue must not block.
type SegmentSink interface {
	Enqueue(seg *audio.Segment)
}

// Options carries the optional collaborators of a Pipeline.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Dumper, when set, writes every queued segment to disk.
	Dumper *audio.SegmentDumper
}

// Pipeline is the audio data plane: source -> gate -> segmenter -> sink.
type Pipeline struct {
	src       audio.FrameSource
	gate      Gate
	segmenter *vad.Segmenter
	sink      SegmentSink
	bus       Bus

	logger  *slog.Logger
	metrics *metrics.Metrics
	dumper  *audio.SegmentDumper

	flushReq chan chan struct{}
	done     chan struct{}
}

// New wires a data plane. Run must be called to start it.
func New(src audio.FrameSource, gate Gate, segmenter *vad.Segmenter, sink SegmentSink, bus Bus, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewUnregistered()
	}
	return &Pipeline{
		src:       src,
		gate:      gate,
		segmenter: segmenter,
		sink:      sink,
		bus:       bus,
		logger:    opts.Logger.With("component", "pipeline"),
		metrics:   opts.Metrics,
		dumper:    opts.Dumper,
		flushReq:  make(chan chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run pumps frames until ctx is done or the source fails. A source failure
// is fatal to the data plane and is returned wrapped. io.EOF from a finite
// source flushes the open segment and ends Run without error.
func (p *Pipeline) Run(ctx context.Context) error {
	defer close(p.done)

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan audio.Frame)
	readErr := make(chan error, 1)
	go func() {
		for {
			f, err := p.src.ReadFrame(readCtx)
			if err != nil {
				readErr <- err
				return
			}
			select {
			case frames <- f:
			case <-readCtx.Done():
				return
			}
		}
	}()

	p.logger.Info("data plane started")
	wasOpen := false
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("data plane stopped")
			return nil

		case ack := <-p.flushReq:
			p.flush()
			// A flush means the gate closed, even if no frame saw it shut.
			wasOpen = false
			close(ack)

		case err := <-readErr:
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				// Finite sources (replayed recordings) end cleanly.
				p.flush()
				p.logger.Info("audio source exhausted")
				return nil
			}
			p.bus.Publish(NewEvent(EventDeviceError, FailurePayload{
				Stage:  StageCapture,
				Reason: err.Error(),
			}))
			return fmt.Errorf("read frame: %w", err)

		case f := <-frames:
			p.metrics.FramesCaptured.Inc()
			open := p.gate.Open()
			if !open {
				wasOpen = false
				p.metrics.FramesGated.Inc()
				continue
			}
			if !wasOpen {
				// Listening resumed: start from a clean segmenter.
				if err := p.segmenter.Reset(); err != nil {
					p.logger.Warn("segmenter reset failed", "error", err)
				}
				wasOpen = true
			}
			p.process(f)
		}
	}
}

func (p *Pipeline) process(f audio.Frame) {
	res, err := p.segmenter.Process(f)
	if err != nil {
		p.metrics.VADScoreErrors.Inc()
		p.logger.Warn("vad scoring failed", "seq", f.Seq, "error", err)
		return
	}
	p.handle(res)
}

func (p *Pipeline) flush() {
	res := p.segmenter.Flush()
	if res.Segment != nil {
		p.metrics.SegmentsFlushed.Inc()
	}
	p.handle(res)
}

func (p *Pipeline) handle(res vad.Result) {
	if res.ResetErr != nil {
		p.logger.Warn("vad state reset failed", "error", res.ResetErr)
	}
	if res.SpeechStarted {
		p.metrics.SpeechOnsets.Inc()
		p.logger.Debug("speech started", "score", res.Score)
		p.bus.Publish(NewEvent(EventSpeechStart, nil))
	}

	if res.Discarded > 0 {
		p.metrics.SegmentsDiscarded.Inc()
		p.logger.Debug("discarding short segment", "speech", res.Discarded)
		p.bus.Publish(NewEvent(EventSegmentDiscarded, SegmentPayload{Duration: res.Discarded}))
	}

	seg := res.Segment
	if seg == nil {
		return
	}

	if p.dumper != nil {
		if path, err := p.dumper.Dump(seg); err != nil {
			p.logger.Warn("segment dump failed", "segment", seg.ID, "error", err)
		} else {
			p.logger.Debug("segment dumped", "segment", seg.ID, "path", path)
		}
	}

	p.metrics.SegmentsEmitted.Inc()
	p.metrics.SegmentDuration.Observe(seg.Duration().Seconds())
	p.logger.Info("queueing speech segment",
		"segment", seg.ID,
		"duration", seg.Duration(),
		"speech", seg.Speech,
		"flushed", seg.Flushed)

	p.sink.Enqueue(seg)
	p.bus.Publish(NewEvent(EventSegmentQueued, SegmentPayload{
		SegmentID: seg.ID.String(),
		Duration:  seg.Duration(),
		Flushed:   seg.Flushed,
	}))
}

// ErrStopped is returned by Flush after Run has returned.
var ErrStopped = errors.New("data plane stopped")

// Flush closes any open segment and waits until it has been handed to the
// sink. It is executed on the data plane goroutine, between frames.
func (p *Pipeline) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case p.flushReq <- ack:
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
