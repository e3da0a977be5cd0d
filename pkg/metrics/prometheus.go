// Package metrics defines the Prometheus metrics exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the dictation service.
type Metrics struct {
	// Capture
	FramesCaptured prometheus.Counter
	FramesGated    prometheus.Counter

	// VAD
	VADScoreErrors    prometheus.Counter
	SpeechOnsets      prometheus.Counter
	SegmentsEmitted   prometheus.Counter
	SegmentsDiscarded prometheus.Counter
	SegmentsFlushed   prometheus.Counter
	SegmentDuration   prometheus.Histogram

	// Dispatch
	QueueDepth            prometheus.Gauge
	TranscriptionDuration prometheus.Histogram
	Transcriptions        *prometheus.CounterVec
	Deliveries            *prometheus.CounterVec

	// Control
	Commands          *prometheus.CounterVec
	MalformedCommands prometheus.Counter
	SessionState      prometheus.Gauge
}

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// NewMetrics creates the metrics and registers them with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FramesCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "asr_frames_captured_total",
			Help: "Total number of audio frames read from the capture device",
		}),
		FramesGated: f.NewCounter(prometheus.CounterOpts{
			Name: "asr_frames_gated_total",
			Help: "Total number of frames dropped because listening was paused",
		}),

		VADScoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "asr_vad_score_errors_total",
			Help: "Total number of frames the VAD failed to score",
		}),
		SpeechOnsets: f.NewCounter(prometheus.CounterOpts{
			Name: "asr_vad_speech_onsets_total",
			Help: "Total number of times the VAD opened a speech segment",
		}),
		SegmentsEmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "asr_segments_emitted_total",
			Help: "Total number of speech segments queued for transcription",
		}),
		SegmentsDiscarded: f.NewCounter(prometheus.CounterOpts{
			Name: "asr_segments_discarded_total",
			Help: "Total number of segments dropped for being too short",
		}),
		SegmentsFlushed: f.NewCounter(prometheus.CounterOpts{
			Name: "asr_segments_flushed_total",
			Help: "Total number of segments closed by a stop command",
		}),
		SegmentDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_segment_duration_seconds",
			Help:    "Audio duration of queued segments",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to 32s
		}),

		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "asr_dispatch_queue_depth",
			Help: "Segments waiting for transcription, including the one in flight",
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "asr_transcription_duration_seconds",
			Help:    "Time spent in the transcription engine per segment",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_transcriptions_total",
			Help: "Transcription attempts by outcome",
		}, []string{"engine", "outcome"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_deliveries_total",
			Help: "Output deliveries by sink and outcome",
		}, []string{"sink", "outcome"}),

		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "asr_commands_total",
			Help: "Control commands received",
		}, []string{"command"}),
		MalformedCommands: f.NewCounter(prometheus.CounterOpts{
			Name: "asr_commands_malformed_total",
			Help: "Control messages that were not a valid command",
		}),
		SessionState: f.NewGauge(prometheus.GaugeOpts{
			Name: "asr_session_state",
			Help: "Current session state (0 paused, 1 listening, 2 processing)",
		}),
	}
}

// NewUnregistered returns metrics backed by a private registry. Useful when
// nothing scrapes them.
func NewUnregistered() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
