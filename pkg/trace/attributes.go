package trace

// Common attribute keys used throughout the application
const (
	AttrSegmentID       = "segment.id"
	AttrSegmentDuration = "segment.duration_ms"
	AttrSegmentFlushed  = "segment.flushed"
	AttrSampleRate      = "audio.sample_rate"

	AttrEngine       = "asr.engine"
	AttrTextLength   = "asr.text_length"
	AttrErrorCode    = "asr.error_code"
	AttrQueueWaitMs  = "dispatch.queue_wait_ms"
	AttrSink         = "output.sink"
	AttrOutputTarget = "output.target"
)
