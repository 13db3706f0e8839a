package services

import "errors"

// Sentinel errors classify pipeline stage failures. Each marker maps to one
// of the failure kinds persisted on a job's error_message and logged as
// error_kind.
var (
	ErrInvalidSource       = errors.New("invalid source")
	ErrSourceUnavailable   = errors.New("source unavailable")
	ErrConversionFailed    = errors.New("conversion failed")
	ErrNoSpeechDetected    = errors.New("no speech detected")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrSummarizationFailed = errors.New("summarization failed")
	ErrValidationFailed    = errors.New("validation failed")
	ErrTransient           = errors.New("transient failure")
)

// Kind returns the short classification name for an error, or "transient"
// when no known marker is present.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSource):
		return "invalid_source"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrConversionFailed):
		return "conversion_failed"
	case errors.Is(err, ErrNoSpeechDetected):
		return "no_speech_detected"
	case errors.Is(err, ErrTranscriptionFailed):
		return "transcription_failed"
	case errors.Is(err, ErrSummarizationFailed):
		return "summarization_failed"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	default:
		return "transient"
	}
}
