package clients

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"catchup/internal/chunk"
	"catchup/internal/services"
	"catchup/internal/stitch"
)

// NewFakeSet builds the full deterministic capability set. Fake runs touch
// only the local filesystem; no process is spawned and no network is used.
func NewFakeSet(durationSec float64) Set {
	return Set{
		Downloader:  &FakeDownloader{DurationSec: durationSec},
		Converter:   &FakeConverter{},
		VAD:         &FakeVAD{},
		Transcriber: &FakeTranscriber{},
		Summarizer:  &FakeSummarizer{},
	}
}

// FakeDownloader fabricates a small media file whose content is a pure
// function of the source URL, so repeated runs are byte-identical.
type FakeDownloader struct {
	// DurationSec is the audio duration reported in metadata.
	DurationSec float64
	// Err, when set, fails every call.
	Err error
}

func (d *FakeDownloader) metadata(sourceURL string) Metadata {
	duration := d.DurationSec
	if duration <= 0 {
		duration = 1800
	}
	return Metadata{
		Title:       "Recording " + shortHash(sourceURL),
		DurationSec: duration,
		Uploader:    "fake",
	}
}

func (d *FakeDownloader) Probe(_ context.Context, sourceURL string) (Metadata, error) {
	if d.Err != nil {
		return Metadata{}, d.Err
	}
	if strings.TrimSpace(sourceURL) == "" {
		return Metadata{}, fmt.Errorf("%w: empty source url", services.ErrSourceUnavailable)
	}
	return d.metadata(sourceURL), nil
}

func (d *FakeDownloader) Download(ctx context.Context, sourceURL, destDir string) (DownloadResult, error) {
	meta, err := d.Probe(ctx, sourceURL)
	if err != nil {
		return DownloadResult{}, err
	}
	mediaPath := filepath.Join(destDir, "media_"+shortHash(sourceURL)+".bin")
	payload := fmt.Sprintf("fake media for %s duration=%.3f\n", sourceURL, meta.DurationSec)
	if err := os.WriteFile(mediaPath, []byte(payload), 0o644); err != nil {
		return DownloadResult{}, fmt.Errorf("%w: write fake media: %v", services.ErrSourceUnavailable, err)
	}
	return DownloadResult{MediaPath: mediaPath, Metadata: meta}, nil
}

// fakeAudio is the on-disk representation all fake audio stages share.
type fakeAudio struct {
	Source      string  `json:"source"`
	DurationSec float64 `json:"duration_sec"`
	StartSec    float64 `json:"start_sec"`
}

func readFakeAudio(path string) (fakeAudio, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fakeAudio{}, err
	}
	var audio fakeAudio
	if err := json.Unmarshal(data, &audio); err != nil {
		return fakeAudio{}, err
	}
	return audio, nil
}

func writeFakeAudio(path string, audio fakeAudio) error {
	data, err := json.Marshal(audio)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FakeConverter derives the audio duration from the fake media payload and
// propagates it through stitched and chunked outputs.
type FakeConverter struct {
	Err error
}

func (c *FakeConverter) Convert(_ context.Context, rawMediaPath, outPath string) (float64, error) {
	if c.Err != nil {
		return 0, c.Err
	}
	data, err := os.ReadFile(rawMediaPath)
	if err != nil {
		return 0, fmt.Errorf("%w: read media: %v", services.ErrConversionFailed, err)
	}
	duration := parseFakeDuration(string(data))
	if duration <= 0 {
		return 0, fmt.Errorf("%w: media reports no duration", services.ErrConversionFailed)
	}
	audio := fakeAudio{Source: rawMediaPath, DurationSec: duration}
	if err := writeFakeAudio(outPath, audio); err != nil {
		return 0, fmt.Errorf("%w: write audio: %v", services.ErrConversionFailed, err)
	}
	return duration, nil
}

func (c *FakeConverter) RenderStitch(_ context.Context, audioPath, outPath string, plan *stitch.Plan) error {
	if c.Err != nil {
		return c.Err
	}
	audio, err := readFakeAudio(audioPath)
	if err != nil {
		return fmt.Errorf("%w: read audio: %v", services.ErrConversionFailed, err)
	}
	audio.DurationSec = plan.OutputDuration
	if err := writeFakeAudio(outPath, audio); err != nil {
		return fmt.Errorf("%w: write stitched audio: %v", services.ErrConversionFailed, err)
	}
	return nil
}

func (c *FakeConverter) ExtractChunk(_ context.Context, audioPath, outPath string, span chunk.Span) error {
	if c.Err != nil {
		return c.Err
	}
	audio, err := readFakeAudio(audioPath)
	if err != nil {
		return fmt.Errorf("%w: read audio: %v", services.ErrConversionFailed, err)
	}
	audio.StartSec = span.Start
	audio.DurationSec = span.Duration()
	if err := writeFakeAudio(outPath, audio); err != nil {
		return fmt.Errorf("%w: write chunk: %v", services.ErrConversionFailed, err)
	}
	return nil
}

func parseFakeDuration(payload string) float64 {
	const marker = "duration="
	idx := strings.LastIndex(payload, marker)
	if idx < 0 {
		return 0
	}
	var duration float64
	if _, err := fmt.Sscanf(payload[idx+len(marker):], "%f", &duration); err != nil {
		return 0
	}
	return duration
}

// FakeVAD emits two speech runs separated by a long pause, scaled to the
// audio duration, so stitch plans in fake runs always compress something.
type FakeVAD struct {
	// Intervals overrides the derived speech regions when non-nil.
	Intervals []stitch.Interval
	Err       error
}

func (v *FakeVAD) DetectSpeech(_ context.Context, audioPath string) ([]stitch.Interval, error) {
	if v.Err != nil {
		return nil, v.Err
	}
	if v.Intervals != nil {
		return append([]stitch.Interval(nil), v.Intervals...), nil
	}
	audio, err := readFakeAudio(audioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read audio: %v", services.ErrNoSpeechDetected, err)
	}
	d := audio.DurationSec
	if d < 10 {
		return nil, fmt.Errorf("%w: %.1fs of audio is too short", services.ErrNoSpeechDetected, d)
	}
	return []stitch.Interval{
		{Start: 0.5, End: d/2 - 2},
		{Start: d/2 + 2, End: d - 0.5},
	}, nil
}

// FakeTranscriber produces stable text derived from the chunk's time span.
type FakeTranscriber struct {
	Err error
	// FailTimes fails the first N calls with TranscriptionFailed before
	// succeeding, for retry behavior tests.
	FailTimes int

	calls int
}

func (t *FakeTranscriber) Transcribe(_ context.Context, chunkPath, language string) (Transcription, error) {
	if t.Err != nil {
		return Transcription{}, t.Err
	}
	t.calls++
	if t.calls <= t.FailTimes {
		return Transcription{}, fmt.Errorf("%w: simulated chunk failure %d", services.ErrTranscriptionFailed, t.calls)
	}
	audio, err := readFakeAudio(chunkPath)
	if err != nil {
		return Transcription{}, fmt.Errorf("%w: read chunk: %v", services.ErrTranscriptionFailed, err)
	}
	detected := language
	if detected == "" || detected == "auto" {
		detected = "en"
	}
	text := fmt.Sprintf("Lecture segment from %.0f to %.0f seconds. The speaker develops the running example and answers a question.",
		audio.StartSec, audio.StartSec+audio.DurationSec)
	return Transcription{Text: text, DetectedLanguage: detected}, nil
}

// FakeSummarizer produces pass-1 bullet summaries and a pass-2 merge whose
// structure satisfies the default required headings.
type FakeSummarizer struct {
	Err error
	// OmitHeadings drops the section headings from merge output, for
	// validation failure tests.
	OmitHeadings bool
}

func (s *FakeSummarizer) SummarizeChunk(_ context.Context, chunkText, _ string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	firstLine := chunkText
	if idx := strings.IndexByte(firstLine, '.'); idx > 0 {
		firstLine = firstLine[:idx+1]
	}
	return "- " + strings.TrimSpace(firstLine), nil
}

func (s *FakeSummarizer) MergeSummaries(_ context.Context, title string, chunkSummaries []string, _ string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	if s.OmitHeadings {
		return strings.Join(chunkSummaries, "\n"), nil
	}
	var b strings.Builder
	heading := strings.TrimSpace(title)
	if heading == "" {
		heading = "Lecture Summary"
	}
	fmt.Fprintf(&b, "# %s\n\n", heading)
	b.WriteString("## Main Topics\n\n")
	for _, summary := range chunkSummaries {
		b.WriteString(summary)
		b.WriteByte('\n')
	}
	b.WriteString("\n## Detailed Content\n\n")
	for i, summary := range chunkSummaries {
		fmt.Fprintf(&b, "Part %d: %s\n\n", i+1, strings.TrimPrefix(summary, "- "))
	}
	b.WriteString("## Conclusion\n\nThe lecture closes by consolidating the topics above.\n")
	return b.String(), nil
}

func shortHash(input string) string {
	sum := sha1.Sum([]byte(input))
	return fmt.Sprintf("%x", sum[:4])
}
