package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"catchup/internal/chunk"
	"catchup/internal/clients"
	"catchup/internal/logging"
	"catchup/internal/services"
	"catchup/internal/stitch"
	"catchup/internal/store"
)

// pipelineStage couples the work done while a job sits in a status with the
// status entered on success.
type pipelineStage struct {
	run  func(ctx context.Context, o *Orchestrator, env *jobEnv) error
	next store.Status
}

// stages maps each in-flight status to its stage. Statuses without an entry
// (queued, done, error) have no work; the loop in process stops there.
var stages = map[store.Status]pipelineStage{
	store.StatusDownloading:  {run: runDownload, next: store.StatusConverting},
	store.StatusConverting:   {run: runConvert, next: store.StatusVAD},
	store.StatusVAD:          {run: runVAD, next: store.StatusTranscribing},
	store.StatusTranscribing: {run: runTranscribe, next: store.StatusSummarizing},
	store.StatusSummarizing:  {run: runSummarize, next: store.StatusDone},
}

func stageFor(status store.Status) (pipelineStage, bool) {
	stage, ok := stages[status]
	return stage, ok
}

// runDownload fetches the recording and persists provider metadata.
func runDownload(ctx context.Context, o *Orchestrator, env *jobEnv) error {
	result, err := o.set.Downloader.Download(ctx, env.lecture.SourceURL, env.workDir)
	if err != nil {
		return err
	}
	env.mediaPath = result.MediaPath
	env.metadata = result.Metadata

	metadataPath := env.dirs.PathFor(store.ArtifactMetadataJSON)
	payload := struct {
		LectureID   string  `json:"lecture_id"`
		CourseCode  string  `json:"course_code"`
		LectureDate string  `json:"lecture_date"`
		Title       string  `json:"title"`
		SourceURL   string  `json:"source_url"`
		SourceUID   string  `json:"source_uid"`
		Language    string  `json:"language"`
		DurationSec float64 `json:"duration_sec"`
		Uploader    string  `json:"uploader,omitempty"`
		UploadDate  string  `json:"upload_date,omitempty"`
	}{
		LectureID:   env.lecture.LectureID,
		CourseCode:  env.lecture.CourseCode,
		LectureDate: env.lecture.LectureDate,
		Title:       env.lecture.Title,
		SourceURL:   env.lecture.SourceURL,
		SourceUID:   env.lecture.SourceUID,
		Language:    env.lecture.Language,
		DurationSec: result.Metadata.DurationSec,
		Uploader:    result.Metadata.Uploader,
		UploadDate:  result.Metadata.UploadDate,
	}
	if err := writeJSON(metadataPath, payload); err != nil {
		return err
	}
	return o.saveArtifact(ctx, env, store.ArtifactMetadataJSON, metadataPath)
}

// runConvert standardizes the raw media into mono 16 kHz WAV.
func runConvert(ctx context.Context, o *Orchestrator, env *jobEnv) error {
	audioPath := env.dirs.PathFor(store.ArtifactAudioOriginalWAV)
	duration, err := o.set.Converter.Convert(ctx, env.mediaPath, audioPath)
	if err != nil {
		return err
	}
	if duration <= 0 {
		return fmt.Errorf("%w: converted audio reports duration %v", services.ErrConversionFailed, duration)
	}
	env.audioPath = audioPath
	env.duration = duration
	return o.saveArtifact(ctx, env, store.ArtifactAudioOriginalWAV, audioPath)
}

// runVAD detects speech, plans the silence-compressed timeline, and renders
// the stitched audio.
func runVAD(ctx context.Context, o *Orchestrator, env *jobEnv) error {
	intervals, err := o.set.VAD.DetectSpeech(ctx, env.audioPath)
	if err != nil {
		return err
	}

	plan, err := stitch.Build(intervals, env.duration, stitch.Params{
		LongSilenceSec: o.cfg.VAD.LongSilenceSec,
		KeepSilenceSec: o.cfg.VAD.KeepSilenceSec,
		PaddingSec:     o.cfg.VAD.PaddingSec,
	})
	if err != nil {
		return err
	}
	env.plan = plan

	vadPath := env.dirs.PathFor(store.ArtifactAudioVADWAV)
	if err := o.set.Converter.RenderStitch(ctx, env.audioPath, vadPath, plan); err != nil {
		return err
	}
	env.vadPath = vadPath
	return o.saveArtifact(ctx, env, store.ArtifactAudioVADWAV, vadPath)
}

// chunkRecord is the persisted form of one transcribed chunk. Times are on
// the stitched (silence-compressed) timeline.
type chunkRecord struct {
	Index            int     `json:"i"`
	StartSec         float64 `json:"start_sec"`
	EndSec           float64 `json:"end_sec"`
	Text             string  `json:"text"`
	DetectedLanguage string  `json:"detected_language"`
}

// runTranscribe cuts the stitched audio into overlapping chunks and
// transcribes each one, retrying per-chunk failures up to the configured
// attempt budget.
func runTranscribe(ctx context.Context, o *Orchestrator, env *jobEnv) error {
	spans, err := chunk.PlanAudio(env.plan.OutputDuration, o.cfg.ChunkSeconds(), o.cfg.Transcription.ChunkOverlapSec)
	if err != nil {
		return fmt.Errorf("%w: %v", services.ErrTranscriptionFailed, err)
	}

	logger := logging.WithContext(ctx, o.logger)
	records := make([]chunkRecord, 0, len(spans))
	var texts []string

	startProgress := store.ProgressFor(store.StatusTranscribing)
	endProgress := store.ProgressFor(store.StatusSummarizing)

	for _, span := range spans {
		chunkPath := filepath.Join(env.workDir, fmt.Sprintf("chunk_%03d.wav", span.Index))
		if err := o.set.Converter.ExtractChunk(ctx, env.vadPath, chunkPath, span); err != nil {
			return err
		}

		transcription, err := o.transcribeWithRetry(ctx, env, chunkPath, span.Index)
		if err != nil {
			return err
		}
		_ = os.Remove(chunkPath)

		records = append(records, chunkRecord{
			Index:            span.Index,
			StartSec:         span.Start,
			EndSec:           span.End,
			Text:             transcription.Text,
			DetectedLanguage: transcription.DetectedLanguage,
		})
		texts = append(texts, transcription.Text)
		if env.detectedLanguage == "" {
			env.detectedLanguage = transcription.DetectedLanguage
		}

		fraction := float64(span.Index+1) / float64(len(spans))
		progress := startProgress + fraction*(endProgress-startProgress)
		if err := o.store.UpdateJobProgress(ctx, env.job.JobID, progress); err != nil {
			logger.Warn("record chunk progress", logging.Error(err))
		}
	}

	env.transcript = strings.Join(texts, "\n\n")

	rawPath := env.dirs.PathFor(store.ArtifactRawTranscriptTXT)
	if err := os.WriteFile(rawPath, []byte(env.transcript+"\n"), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if err := o.saveArtifact(ctx, env, store.ArtifactRawTranscriptTXT, rawPath); err != nil {
		return err
	}

	chunksPath := env.dirs.PathFor(store.ArtifactTranscriptChunksJSON)
	if err := writeJSON(chunksPath, records); err != nil {
		return err
	}
	return o.saveArtifact(ctx, env, store.ArtifactTranscriptChunksJSON, chunksPath)
}

// transcribeWithRetry attempts one chunk up to 1 + retry_attempts times.
// Only transcription and transient failures are retried; anything else
// fails the stage immediately.
func (o *Orchestrator) transcribeWithRetry(ctx context.Context, env *jobEnv, chunkPath string, index int) (clients.Transcription, error) {
	attempts := 1 + o.cfg.Transcription.RetryAttempts
	logger := logging.WithContext(ctx, o.logger)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, callErr := o.set.Transcriber.Transcribe(ctx, chunkPath, env.lecture.Language)
		if callErr == nil {
			return result, nil
		}
		err = callErr
		retryable := errors.Is(callErr, services.ErrTranscriptionFailed) || errors.Is(callErr, services.ErrTransient)
		if !retryable || attempt == attempts || ctx.Err() != nil {
			break
		}
		logger.Warn("chunk transcription failed, retrying",
			logging.Int("chunk", index),
			logging.Int("attempt", attempt),
			logging.Error(callErr))
	}
	return clients.Transcription{}, fmt.Errorf("chunk %d: %w", index, err)
}

// summaryDocument is the structured form of the pass-2 output.
type summaryDocument struct {
	LectureID      string   `json:"lecture_id"`
	Title          string   `json:"title"`
	Language       string   `json:"language"`
	GeneratedAt    string   `json:"generated_at"`
	ChunkSummaries []string `json:"chunk_summaries"`
	Markdown       string   `json:"markdown"`
}

// runSummarize performs the two summarization passes and validates the
// merged document's structure before the job can complete.
func runSummarize(ctx context.Context, o *Orchestrator, env *jobEnv) error {
	blocks, err := chunk.PlanText(env.transcript, o.cfg.Summary.TextChunkChars)
	if err != nil {
		return fmt.Errorf("%w: %v", services.ErrSummarizationFailed, err)
	}
	if len(blocks) == 0 {
		return fmt.Errorf("%w: empty transcript", services.ErrSummarizationFailed)
	}

	language := env.detectedLanguage
	if language == "" {
		language = env.lecture.Language
	}

	chunkSummaries := make([]string, 0, len(blocks))
	for _, block := range blocks {
		summary, err := o.set.Summarizer.SummarizeChunk(ctx, block, language)
		if err != nil {
			return err
		}
		chunkSummaries = append(chunkSummaries, summary)
	}

	merged, err := o.set.Summarizer.MergeSummaries(ctx, env.lecture.Title, chunkSummaries, language)
	if err != nil {
		return err
	}
	if err := validateSummary(merged, o.cfg.Summary.RequiredHeadings); err != nil {
		return err
	}

	mdPath := env.dirs.PathFor(store.ArtifactSummaryMD)
	if err := os.WriteFile(mdPath, []byte(merged), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := o.saveArtifact(ctx, env, store.ArtifactSummaryMD, mdPath); err != nil {
		return err
	}

	jsonPath := env.dirs.PathFor(store.ArtifactSummaryJSON)
	doc := summaryDocument{
		LectureID:      env.lecture.LectureID,
		Title:          env.lecture.Title,
		Language:       language,
		GeneratedAt:    time.Now().UTC().Format(time.RFC3339),
		ChunkSummaries: chunkSummaries,
		Markdown:       merged,
	}
	if err := writeJSON(jsonPath, doc); err != nil {
		return err
	}
	return o.saveArtifact(ctx, env, store.ArtifactSummaryJSON, jsonPath)
}

// validateSummary checks the merged document against the structural
// post-conditions. A miss is a recoverable stage error, not a crash.
func validateSummary(merged string, requiredHeadings []string) error {
	for _, heading := range requiredHeadings {
		if !strings.Contains(merged, heading) {
			return fmt.Errorf("%w: summary is missing required heading %q", services.ErrValidationFailed, heading)
		}
	}
	return nil
}

func writeJSON(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
