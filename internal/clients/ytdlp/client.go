// Package ytdlp wraps the yt-dlp command line downloader for fetching
// lecture recordings from authenticated portals.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"catchup/internal/clients"
	"catchup/internal/services"
)

var commandContext = exec.CommandContext

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithCookies points the client at a Netscape-format cookies file. Most
// lecture portals require authenticated sessions, so downloads without a
// readable cookies file fail up front.
func WithCookies(path string) Option {
	return func(c *CLI) {
		c.cookiesPath = strings.TrimSpace(path)
	}
}

// CLI wraps the yt-dlp command-line downloader.
type CLI struct {
	binary      string
	cookiesPath string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "yt-dlp"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

type probePayload struct {
	Title      string  `json:"title"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader"`
	UploadDate string  `json:"upload_date"`
}

// Probe fetches provider metadata without downloading media.
func (c *CLI) Probe(ctx context.Context, sourceURL string) (clients.Metadata, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return clients.Metadata{}, errors.New("source url required")
	}

	args := []string{"--dump-json", "--no-download", "--no-playlist"}
	args = c.appendCookies(args)
	args = append(args, sourceURL)

	cmd := commandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return clients.Metadata{}, fmt.Errorf("%w: yt-dlp probe: %v: %s",
			services.ErrSourceUnavailable, err, firstLine(stderr.String()))
	}

	var payload probePayload
	if err := json.Unmarshal(stdout.Bytes(), &payload); err != nil {
		return clients.Metadata{}, fmt.Errorf("%w: parse probe output: %v", services.ErrSourceUnavailable, err)
	}
	return clients.Metadata{
		Title:       payload.Title,
		DurationSec: payload.Duration,
		Uploader:    payload.Uploader,
		UploadDate:  payload.UploadDate,
	}, nil
}

// Download fetches the lowest-bandwidth audio rendition into destDir and
// returns the media path plus provider metadata. Transcription quality does
// not benefit from high bitrates, so the smallest stream wins.
func (c *CLI) Download(ctx context.Context, sourceURL, destDir string) (clients.DownloadResult, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return clients.DownloadResult{}, errors.New("source url required")
	}
	if strings.TrimSpace(destDir) == "" {
		return clients.DownloadResult{}, errors.New("destination directory required")
	}
	if c.cookiesPath != "" {
		if _, err := os.Stat(c.cookiesPath); err != nil {
			return clients.DownloadResult{}, fmt.Errorf("%w: cookies file %s not readable: %v",
				services.ErrSourceUnavailable, c.cookiesPath, err)
		}
	}

	meta, err := c.Probe(ctx, sourceURL)
	if err != nil {
		return clients.DownloadResult{}, err
	}

	outputTemplate := filepath.Join(destDir, "media.%(ext)s")
	args := []string{
		"-f", "worstaudio/worst",
		"--no-playlist",
		"-o", outputTemplate,
		"--no-simulate",
		"--print", "after_move:filepath",
	}
	args = c.appendCookies(args)
	args = append(args, sourceURL)

	cmd := commandContext(ctx, c.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return clients.DownloadResult{}, fmt.Errorf("%w: yt-dlp download: %v: %s",
			services.ErrSourceUnavailable, err, firstLine(stderr.String()))
	}

	mediaPath := lastLine(stdout.String())
	if mediaPath == "" {
		return clients.DownloadResult{}, fmt.Errorf("%w: yt-dlp reported no output file", services.ErrSourceUnavailable)
	}
	if _, err := os.Stat(mediaPath); err != nil {
		return clients.DownloadResult{}, fmt.Errorf("%w: downloaded file missing: %v", services.ErrSourceUnavailable, err)
	}

	return clients.DownloadResult{MediaPath: mediaPath, Metadata: meta}, nil
}

func (c *CLI) appendCookies(args []string) []string {
	if c.cookiesPath == "" {
		return args
	}
	return append(args, "--cookies", c.cookiesPath)
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
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

var _ clients.Downloader = (*CLI)(nil)
