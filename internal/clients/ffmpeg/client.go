// Package ffmpeg wraps the ffmpeg and ffprobe command line tools for audio
// standardization, silence-based speech detection, stitch rendering, and
// chunk extraction.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"catchup/internal/chunk"
	"catchup/internal/clients"
	"catchup/internal/services"
	"catchup/internal/stitch"
)

var commandContext = exec.CommandContext

const (
	// silenceNoiseFloor is the level below which audio counts as silence.
	silenceNoiseFloor = "-35dB"
	// silenceMinDuration is the shortest silence silencedetect reports.
	silenceMinDuration = 0.6
)

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default ffmpeg binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithProbeBinary overrides the default ffprobe binary name.
func WithProbeBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.probeBinary = binary
		}
	}
}

// CLI wraps ffmpeg and ffprobe. It implements both the media conversion and
// speech detection capabilities.
type CLI struct {
	binary      string
	probeBinary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg", probeBinary: "ffprobe"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

func (c *CLI) run(ctx context.Context, binary string, args ...string) (string, string, error) {
	cmd := commandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// Convert transcodes raw media to 16 kHz mono 16-bit WAV and returns the
// audio duration in seconds.
func (c *CLI) Convert(ctx context.Context, rawMediaPath, outPath string) (float64, error) {
	if strings.TrimSpace(rawMediaPath) == "" {
		return 0, errors.New("input path required")
	}
	if strings.TrimSpace(outPath) == "" {
		return 0, errors.New("output path required")
	}

	args := []string{
		"-y", "-i", rawMediaPath,
		"-vn", "-ac", "1", "-ar", "16000", "-sample_fmt", "s16",
		outPath,
	}
	if _, stderr, err := c.run(ctx, c.binary, args...); err != nil {
		return 0, fmt.Errorf("%w: ffmpeg convert: %v: %s", services.ErrConversionFailed, err, lastLine(stderr))
	}
	duration, err := c.Duration(ctx, outPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", services.ErrConversionFailed, err)
	}
	return duration, nil
}

// Duration reports the audio duration of path in seconds via ffprobe.
func (c *CLI) Duration(ctx context.Context, path string) (float64, error) {
	stdout, stderr, err := c.run(ctx, c.probeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %v: %s", err, lastLine(stderr))
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: parse %q: %v", strings.TrimSpace(stdout), err)
	}
	return duration, nil
}

// DetectSpeech runs silencedetect over the audio and inverts the reported
// silences into speech intervals. Audio that is silence end to end fails
// with NoSpeechDetected.
func (c *CLI) DetectSpeech(ctx context.Context, audioPath string) ([]stitch.Interval, error) {
	duration, err := c.Duration(ctx, audioPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", services.ErrNoSpeechDetected, err)
	}

	filter := fmt.Sprintf("silencedetect=noise=%s:d=%v", silenceNoiseFloor, silenceMinDuration)
	// silencedetect reports on stderr; discard the media output entirely.
	_, stderr, err := c.run(ctx, c.binary,
		"-i", audioPath, "-af", filter, "-f", "null", "-",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg silencedetect: %v: %s", services.ErrNoSpeechDetected, err, lastLine(stderr))
	}

	silences := parseSilences(stderr, duration)
	speech := invertSilences(silences, duration)
	if len(speech) == 0 {
		return nil, fmt.Errorf("%w: audio is silent end to end", services.ErrNoSpeechDetected)
	}
	return speech, nil
}

// RenderStitch writes the silence-compressed audio described by plan. Each
// speech run is trimmed from the source and concatenated, with generated
// silence filling the planned gaps between runs.
func (c *CLI) RenderStitch(ctx context.Context, audioPath, outPath string, plan *stitch.Plan) error {
	if plan == nil || len(plan.Segments) == 0 {
		return fmt.Errorf("%w: empty stitch plan", services.ErrConversionFailed)
	}

	var (
		filter bytes.Buffer
		labels []string
		cursor float64
	)
	for i, seg := range plan.Segments {
		gap := seg.OutputStart - cursor
		if gap > 0 {
			label := fmt.Sprintf("g%d", i)
			fmt.Fprintf(&filter, "anullsrc=r=16000:cl=mono,atrim=duration=%.3f[%s];", gap, label)
			labels = append(labels, label)
		}
		label := fmt.Sprintf("s%d", i)
		fmt.Fprintf(&filter, "[0:a]atrim=start=%.3f:end=%.3f,asetpts=PTS-STARTPTS[%s];",
			seg.SourceStart, seg.SourceEnd, label)
		labels = append(labels, label)
		cursor = seg.OutputStart + (seg.SourceEnd - seg.SourceStart)
	}
	if tail := plan.OutputDuration - cursor; tail > 0 {
		fmt.Fprintf(&filter, "anullsrc=r=16000:cl=mono,atrim=duration=%.3f[tail];", tail)
		labels = append(labels, "tail")
	}
	for _, label := range labels {
		fmt.Fprintf(&filter, "[%s]", label)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=0:a=1[out]", len(labels))

	args := []string{
		"-y", "-i", audioPath,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-ac", "1", "-ar", "16000", "-sample_fmt", "s16",
		outPath,
	}
	if _, stderr, err := c.run(ctx, c.binary, args...); err != nil {
		return fmt.Errorf("%w: ffmpeg stitch: %v: %s", services.ErrConversionFailed, err, lastLine(stderr))
	}
	return nil
}

// ExtractChunk writes the span of audioPath to outPath.
func (c *CLI) ExtractChunk(ctx context.Context, audioPath, outPath string, span chunk.Span) error {
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", span.Start),
		"-t", fmt.Sprintf("%.3f", span.Duration()),
		"-i", audioPath,
		"-acodec", "pcm_s16le",
		outPath,
	}
	if _, stderr, err := c.run(ctx, c.binary, args...); err != nil {
		return fmt.Errorf("%w: ffmpeg extract chunk %d: %v: %s", services.ErrConversionFailed, span.Index, err, lastLine(stderr))
	}
	return nil
}

type silence struct {
	start float64
	end   float64
}

// parseSilences extracts silence_start/silence_end pairs from silencedetect
// stderr output. An unterminated final silence extends to the end of audio.
func parseSilences(output string, duration float64) []silence {
	var (
		silences []silence
		open     = -1.0
	)
	for _, line := range strings.Split(output, "\n") {
		if idx := strings.Index(line, "silence_start: "); idx >= 0 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(line[idx+len("silence_start: "):]), 64); err == nil {
				open = v
			}
			continue
		}
		if idx := strings.Index(line, "silence_end: "); idx >= 0 {
			rest := strings.TrimSpace(line[idx+len("silence_end: "):])
			if cut := strings.IndexByte(rest, ' '); cut > 0 {
				rest = rest[:cut]
			}
			if v, err := strconv.ParseFloat(rest, 64); err == nil && open >= 0 {
				silences = append(silences, silence{start: open, end: v})
				open = -1
			}
		}
	}
	if open >= 0 {
		silences = append(silences, silence{start: open, end: duration})
	}
	return silences
}

// invertSilences turns the silence list into speech intervals over the full
// [0, duration] span.
func invertSilences(silences []silence, duration float64) []stitch.Interval {
	var (
		speech []stitch.Interval
		cursor float64
	)
	for _, s := range silences {
		if s.start > cursor {
			speech = append(speech, stitch.Interval{Start: cursor, End: s.start})
		}
		if s.end > cursor {
			cursor = s.end
		}
	}
	if cursor < duration {
		speech = append(speech, stitch.Interval{Start: cursor, End: duration})
	}
	return speech
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

var (
	_ clients.MediaConverter = (*CLI)(nil)
	_ clients.VadProcessor   = (*CLI)(nil)
)
