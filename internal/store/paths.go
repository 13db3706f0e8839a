package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LectureDirs is the on-disk layout for one job's run. The lecture root is
// keyed by course code, lecture date, and short uid so distinct lectures
// never share a directory; beneath it every job writes into its own run
// directory, so a later submission never overwrites a completed run's files.
type LectureDirs struct {
	Root       string // lecture root, shared across runs
	Run        string // this job's run directory
	Transcript string
	Summary    string
	Logs       string
}

// DirsFor computes the run layout for one job under dataDir.
func DirsFor(dataDir string, lecture *Lecture, jobID string) LectureDirs {
	root := filepath.Join(dataDir, lecture.CourseCode, lecture.LectureDate, lecture.UIDShort)
	run := filepath.Join(root, "runs", runSegment(jobID))
	return LectureDirs{
		Root:       root,
		Run:        run,
		Transcript: filepath.Join(run, "transcript"),
		Summary:    filepath.Join(run, "summary"),
		Logs:       filepath.Join(run, "logs"),
	}
}

// runSegment derives the run directory name from the job id. Job ids are
// UUIDs; the first eight hex characters distinguish the runs of one lecture.
func runSegment(jobID string) string {
	cleaned := strings.ReplaceAll(jobID, "-", "")
	if len(cleaned) > 8 {
		cleaned = cleaned[:8]
	}
	if cleaned == "" {
		return "run"
	}
	return cleaned
}

// Ensure creates the layout on disk and drops a source_url marker at the
// lecture root so the tree is navigable without the database.
func (d LectureDirs) Ensure(sourceURL string) error {
	for _, dir := range []string{d.Root, d.Run, d.Transcript, d.Summary, d.Logs} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create lecture directory %s: %w", dir, err)
		}
	}
	marker := filepath.Join(d.Root, "source_url.txt")
	if _, err := os.Stat(marker); err == nil {
		return nil
	}
	if err := os.WriteFile(marker, []byte(sourceURL+"\n"), 0o644); err != nil {
		return fmt.Errorf("write source marker: %w", err)
	}
	return nil
}

// PathFor returns the file location for an artifact type within the run.
func (d LectureDirs) PathFor(t ArtifactType) string {
	switch t {
	case ArtifactMetadataJSON:
		return filepath.Join(d.Run, "metadata.json")
	case ArtifactAudioOriginalWAV:
		return filepath.Join(d.Run, "audio_original.wav")
	case ArtifactAudioVADWAV:
		return filepath.Join(d.Run, "audio_vad.wav")
	case ArtifactRawTranscriptTXT:
		return filepath.Join(d.Transcript, "raw_transcript.txt")
	case ArtifactTranscriptChunksJSON:
		return filepath.Join(d.Transcript, "transcript_chunks.json")
	case ArtifactSummaryMD:
		return filepath.Join(d.Summary, "summary.md")
	case ArtifactSummaryJSON:
		return filepath.Join(d.Summary, "summary.json")
	case ArtifactLog:
		return filepath.Join(d.Logs, "pipeline.log")
	default:
		return filepath.Join(d.Run, string(t))
	}
}
