package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"invalid source", ErrInvalidSource, "invalid_source"},
		{"unavailable", ErrSourceUnavailable, "source_unavailable"},
		{"conversion", ErrConversionFailed, "conversion_failed"},
		{"no speech", ErrNoSpeechDetected, "no_speech_detected"},
		{"transcription", ErrTranscriptionFailed, "transcription_failed"},
		{"summarization", ErrSummarizationFailed, "summarization_failed"},
		{"validation", ErrValidationFailed, "validation_failed"},
		{"wrapped", fmt.Errorf("stage: %w", ErrValidationFailed), "validation_failed"},
		{"unknown", errors.New("socket closed"), "transient"},
		{"explicit transient", ErrTransient, "transient"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Kind(tc.err); got != tc.want {
				t.Fatalf("Kind(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestContextAnnotations(t *testing.T) {
	ctx := context.Background()
	if _, ok := JobIDFromContext(ctx); ok {
		t.Fatal("empty context reported a job id")
	}

	ctx = WithJobID(ctx, "job-1")
	ctx = WithLectureID(ctx, "ELE130_2024-09-02_3f2504e0")
	ctx = WithStage(ctx, "transcribing")

	if got, ok := JobIDFromContext(ctx); !ok || got != "job-1" {
		t.Fatalf("job id = %q %v", got, ok)
	}
	if got, ok := LectureIDFromContext(ctx); !ok || got != "ELE130_2024-09-02_3f2504e0" {
		t.Fatalf("lecture id = %q %v", got, ok)
	}
	if got, ok := StageFromContext(ctx); !ok || got != "transcribing" {
		t.Fatalf("stage = %q %v", got, ok)
	}
}
