// Package pipeline runs the audio data plane and carries status events.
//
// The data plane reads frames from an audio.FrameSource, drops them while the
// gate is closed and otherwise feeds them to the VAD segmenter. Finalized
// segments are handed to a SegmentSink without blocking.
//
// Status changes are published on a Bus so that notifications, the status
// feed and metrics can observe the service without being wired into it.
package pipeline

import (
	"time"
)

// EventType identifies the kind of status event.
type EventType string

const (
	// EventActivated is published when listening starts.
	EventActivated EventType = "activated"
	// EventPaused is published when listening stops.
	EventPaused EventType = "paused"
	// EventProcessing is published when a segment starts transcribing while
	// the service is listening.
	EventProcessing EventType = "processing"
	// EventSuccess is published when transcribed text was delivered.
	EventSuccess EventType = "success"
	// EventFailure is published when a segment produced no output.
	EventFailure EventType = "failure"

	// EventSpeechStart is published when the segmenter opens a segment.
	EventSpeechStart EventType = "speech_start"
	// EventSegmentQueued is published when a segment is handed to the dispatcher.
	EventSegmentQueued EventType = "segment_queued"
	// EventSegmentDiscarded is published when a segment is too short to keep.
	EventSegmentDiscarded EventType = "segment_discarded"
	// EventDeviceError is published when the audio device fails.
	EventDeviceError EventType = "device_error"
)

// Event is a single status notification.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, payload any) Event {
	return Event{Type: t, Timestamp: time.Now(), Payload: payload}
}

// SuccessPayload accompanies EventSuccess.
type SuccessPayload struct {
	SegmentID string        `json:"segment_id"`
	Text      string        `json:"text"`
	Sink      string        `json:"sink"`
	Target    string        `json:"target,omitempty"`
	Latency   time.Duration `json:"latency"`
}

// FailurePayload accompanies EventFailure and EventDeviceError.
type FailurePayload struct {
	SegmentID string `json:"segment_id,omitempty"`
	Stage     string `json:"stage"`
	Reason    string `json:"reason"`
}

// Failure stages.
const (
	StageTranscribe = "transcribe"
	StageDeliver    = "deliver"
	StageCapture    = "capture"
)

// SegmentPayload accompanies the segment events.
type SegmentPayload struct {
	SegmentID string        `json:"segment_id,omitempty"`
	Duration  time.Duration `json:"duration"`
	Flushed   bool          `json:"flushed,omitempty"`
}
