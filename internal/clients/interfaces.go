// Package clients defines the narrow capability interfaces the pipeline
// suspends on, plus deterministic fakes used by default test runs. Real
// implementations live in the ytdlp, ffmpeg, and mistral subpackages and
// are selected by configuration at orchestrator construction.
package clients

import (
	"context"

	"catchup/internal/chunk"
	"catchup/internal/stitch"
)

// Metadata is provider-reported information about a recording.
type Metadata struct {
	Title       string  `json:"title"`
	DurationSec float64 `json:"duration_sec"`
	Uploader    string  `json:"uploader,omitempty"`
	UploadDate  string  `json:"upload_date,omitempty"`
}

// DownloadResult is the outcome of fetching a recording.
type DownloadResult struct {
	MediaPath string
	Metadata  Metadata
}

// Downloader fetches recordings from a lecture portal. Failures surface as
// SourceUnavailable (missing auth, removed recording).
type Downloader interface {
	// Probe fetches provider metadata without downloading media.
	Probe(ctx context.Context, sourceURL string) (Metadata, error)
	// Download fetches the recording into destDir.
	Download(ctx context.Context, sourceURL, destDir string) (DownloadResult, error)
}

// MediaConverter turns raw media into standardized audio and renders
// derived audio from plans. Failures surface as ConversionFailed.
type MediaConverter interface {
	// Convert produces 16 kHz mono 16-bit WAV at outPath and reports the
	// audio duration in seconds.
	Convert(ctx context.Context, rawMediaPath, outPath string) (float64, error)
	// RenderStitch writes the silence-compressed audio described by plan.
	RenderStitch(ctx context.Context, audioPath, outPath string, plan *stitch.Plan) error
	// ExtractChunk writes the span of audioPath to outPath.
	ExtractChunk(ctx context.Context, audioPath, outPath string, span chunk.Span) error
}

// VadProcessor detects speech regions in standardized audio. An audio file
// with no detectable speech fails with NoSpeechDetected.
type VadProcessor interface {
	DetectSpeech(ctx context.Context, audioPath string) ([]stitch.Interval, error)
}

// Transcription is the result of transcribing one audio chunk.
type Transcription struct {
	Text             string
	DetectedLanguage string
}

// TranscriberClient transcribes one audio chunk at a time. Per-chunk
// failures surface as TranscriptionFailed and may be retried by the caller.
type TranscriberClient interface {
	// Transcribe converts the chunk at chunkPath to text. language is a
	// BCP-47 tag or "auto" for provider-side detection.
	Transcribe(ctx context.Context, chunkPath, language string) (Transcription, error)
}

// SummarizerClient produces the two summarization passes. Pass one is
// grounded strictly in a single chunk's text; pass two merges the ordered
// chunk summaries without inventing topics. Failures surface as
// SummarizationFailed.
type SummarizerClient interface {
	SummarizeChunk(ctx context.Context, chunkText, language string) (string, error)
	MergeSummaries(ctx context.Context, title string, chunkSummaries []string, language string) (string, error)
}

// Set bundles one implementation of every capability.
type Set struct {
	Downloader  Downloader
	Converter   MediaConverter
	VAD         VadProcessor
	Transcriber TranscriberClient
	Summarizer  SummarizerClient
}
