package store

import "time"

// Status tracks a job through the processing pipeline.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusDownloading  Status = "downloading"
	StatusConverting   Status = "converting"
	StatusVAD          Status = "vad"
	StatusTranscribing Status = "transcribing"
	StatusSummarizing  Status = "summarizing"
	StatusDone         Status = "done"
	StatusError        Status = "error"
)

// legalTransitions lists the statuses reachable from each status. Terminal
// statuses have no entries.
var legalTransitions = map[Status][]Status{
	StatusQueued:       {StatusDownloading, StatusError},
	StatusDownloading:  {StatusConverting, StatusError},
	StatusConverting:   {StatusVAD, StatusError},
	StatusVAD:          {StatusTranscribing, StatusError},
	StatusTranscribing: {StatusSummarizing, StatusError},
	StatusSummarizing:  {StatusDone, StatusError},
	StatusDone:         nil,
	StatusError:        nil,
}

// stageProgress is the progress value recorded when a job enters a status.
var stageProgress = map[Status]float64{
	StatusQueued:       0,
	StatusDownloading:  0.1,
	StatusConverting:   0.2,
	StatusVAD:          0.3,
	StatusTranscribing: 0.4,
	StatusSummarizing:  0.7,
	StatusDone:         1.0,
}

// CanTransition reports whether from → to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no legal transition leaves the status.
func (s Status) IsTerminal() bool {
	return len(legalTransitions[s]) == 0
}

// ProgressFor returns the progress recorded on entering a status.
func ProgressFor(s Status) float64 {
	return stageProgress[s]
}

// AllStatuses returns every status in pipeline order.
func AllStatuses() []Status {
	return []Status{
		StatusQueued,
		StatusDownloading,
		StatusConverting,
		StatusVAD,
		StatusTranscribing,
		StatusSummarizing,
		StatusDone,
		StatusError,
	}
}

// ParseStatus validates a status string.
func ParseStatus(raw string) (Status, bool) {
	candidate := Status(raw)
	if _, ok := legalTransitions[candidate]; ok {
		return candidate, true
	}
	return "", false
}

// ArtifactType identifies a produced file.
type ArtifactType string

const (
	ArtifactMetadataJSON         ArtifactType = "metadata_json"
	ArtifactAudioOriginalWAV     ArtifactType = "audio_original_wav"
	ArtifactAudioVADWAV          ArtifactType = "audio_vad_wav"
	ArtifactRawTranscriptTXT     ArtifactType = "raw_transcript_txt"
	ArtifactTranscriptChunksJSON ArtifactType = "transcript_chunks_json"
	ArtifactSummaryMD            ArtifactType = "summary_md"
	ArtifactSummaryJSON          ArtifactType = "summary_json"
	ArtifactLog                  ArtifactType = "log"
)

var artifactTypes = map[ArtifactType]struct{}{
	ArtifactMetadataJSON:         {},
	ArtifactAudioOriginalWAV:     {},
	ArtifactAudioVADWAV:          {},
	ArtifactRawTranscriptTXT:     {},
	ArtifactTranscriptChunksJSON: {},
	ArtifactSummaryMD:            {},
	ArtifactSummaryJSON:          {},
	ArtifactLog:                  {},
}

// ValidArtifactType reports whether t names a known artifact kind.
func ValidArtifactType(t ArtifactType) bool {
	_, ok := artifactTypes[t]
	return ok
}

// Lecture is the immutable identity row for one recorded lecture.
type Lecture struct {
	LectureID   string
	CourseCode  string
	LectureDate string
	Title       string
	SourceURL   string
	SourceUID   string
	UIDShort    string
	Language    string
	CreatedAt   time.Time
}

// Job is a single processing attempt for a lecture.
type Job struct {
	JobID        string
	LectureID    string
	Status       Status
	Progress     float64
	Rerun        bool
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// Artifact records one produced file.
type Artifact struct {
	ArtifactID int64
	LectureID  string
	JobID      string
	Type       ArtifactType
	Path       string
	CreatedAt  time.Time
}

// Stats summarizes queue contents by status.
type Stats struct {
	Total    int
	ByStatus map[Status]int
}
