package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config captures all daemon settings. Values are loaded from a TOML file
// layered over Default and validated before use.
type Config struct {
	Paths         Paths         `toml:"paths"`
	VAD           VAD           `toml:"vad"`
	Transcription Transcription `toml:"transcription"`
	Summary       Summary       `toml:"summary"`
	Workflow      Workflow      `toml:"workflow"`
	Clients       Clients       `toml:"clients"`
	Logging       Logging       `toml:"logging"`
}

// Paths groups filesystem locations used by the daemon.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	WorkDir     string `toml:"work_dir"`
	CookiesPath string `toml:"cookies_path"`
}

// VAD groups the silence-handling parameters applied when stitching speech
// regions back into a condensed audio track.
type VAD struct {
	LongSilenceSec float64 `toml:"long_silence_sec"`
	KeepSilenceSec float64 `toml:"keep_silence_sec"`
	PaddingSec     float64 `toml:"padding_sec"`
}

// Transcription groups chunked-transcription parameters.
type Transcription struct {
	ChunkMinutes    int     `toml:"chunk_minutes"`
	ChunkOverlapSec float64 `toml:"chunk_overlap_sec"`
	RetryAttempts   int     `toml:"retry_attempts"`
}

// Summary groups summarization parameters and output requirements.
type Summary struct {
	RequiredHeadings []string `toml:"required_headings"`
	TextChunkChars   int      `toml:"text_chunk_chars"`
}

// Workflow groups orchestration settings.
type Workflow struct {
	Workers         int    `toml:"workers"`
	PollIntervalSec int    `toml:"poll_interval_sec"`
	RestartPolicy   string `toml:"restart_policy"`
}

// Clients selects between deterministic fakes and real external tools.
type Clients struct {
	Mode            string  `toml:"mode"`
	MistralAPIBase  string  `toml:"mistral_api_base"`
	MistralAPIKey   string  `toml:"mistral_api_key"`
	MistralModel    string  `toml:"mistral_model"`
	SummaryModel    string  `toml:"summary_model"`
	FakeDurationSec float64 `toml:"fake_duration_sec"`
}

// Logging groups log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

const (
	// ClientModeFake selects the deterministic in-process capability fakes.
	ClientModeFake = "fake"
	// ClientModeReal selects yt-dlp, ffmpeg, and the Mistral API.
	ClientModeReal = "real"
)

const (
	// RestartRequeue re-queues jobs left mid-flight by a previous daemon run.
	RestartRequeue = "requeue"
	// RestartFail marks jobs left mid-flight as failed at startup.
	RestartFail = "fail"
)

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	base := filepath.Join(home, "catchup")
	return Config{
		Paths: Paths{
			DataDir:     filepath.Join(base, "data"),
			LogDir:      filepath.Join(base, "logs"),
			WorkDir:     filepath.Join(base, "work"),
			CookiesPath: filepath.Join(base, "cookies.txt"),
		},
		VAD: VAD{
			LongSilenceSec: 1.6,
			KeepSilenceSec: 0.35,
			PaddingSec:     0.2,
		},
		Transcription: Transcription{
			ChunkMinutes:    15,
			ChunkOverlapSec: 6,
			RetryAttempts:   2,
		},
		Summary: Summary{
			RequiredHeadings: []string{"## Main Topics", "## Detailed Content"},
			TextChunkChars:   6000,
		},
		Workflow: Workflow{
			Workers:         2,
			PollIntervalSec: 5,
			RestartPolicy:   RestartRequeue,
		},
		Clients: Clients{
			Mode:            ClientModeFake,
			MistralAPIBase:  "https://api.mistral.ai",
			MistralModel:    "voxtral-mini-latest",
			SummaryModel:    "mistral-small-latest",
			FakeDurationSec: 1800,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configuration from path, layering the file over Default. A
// missing file is not an error; the defaults are returned with created=false.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = DefaultConfigPath()
	}
	resolved = expandHome(resolved)

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.normalize()
			if err := cfg.Validate(); err != nil {
				return nil, false, err
			}
			return &cfg, false, nil
		}
		return nil, false, fmt.Errorf("read config %s: %w", resolved, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, false, fmt.Errorf("parse config %s: %w", resolved, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return &cfg, true, nil
}

// DefaultConfigPath returns the canonical config file location.
func DefaultConfigPath() string {
	return expandHome(filepath.Join("~", ".config", "catchup", "config.toml"))
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			if path == "~" {
				return home
			}
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

func (c *Config) normalize() {
	c.Paths.DataDir = expandHome(strings.TrimSpace(c.Paths.DataDir))
	c.Paths.LogDir = expandHome(strings.TrimSpace(c.Paths.LogDir))
	c.Paths.WorkDir = expandHome(strings.TrimSpace(c.Paths.WorkDir))
	c.Paths.CookiesPath = expandHome(strings.TrimSpace(c.Paths.CookiesPath))

	c.Workflow.RestartPolicy = strings.ToLower(strings.TrimSpace(c.Workflow.RestartPolicy))
	if c.Workflow.RestartPolicy == "" {
		c.Workflow.RestartPolicy = RestartRequeue
	}

	c.Clients.Mode = strings.ToLower(strings.TrimSpace(c.Clients.Mode))
	if c.Clients.Mode == "" {
		c.Clients.Mode = ClientModeFake
	}
	if key := os.Getenv("MISTRAL_API_KEY"); key != "" && c.Clients.MistralAPIKey == "" {
		c.Clients.MistralAPIKey = key
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))

	headings := c.Summary.RequiredHeadings[:0]
	for _, h := range c.Summary.RequiredHeadings {
		if trimmed := strings.TrimSpace(h); trimmed != "" {
			headings = append(headings, trimmed)
		}
	}
	c.Summary.RequiredHeadings = headings
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.DataDir == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if c.Paths.LogDir == "" {
		problems = append(problems, "paths.log_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		problems = append(problems, "paths.work_dir must be set")
	}

	if c.VAD.LongSilenceSec <= 0 {
		problems = append(problems, "vad.long_silence_sec must be positive")
	}
	if c.VAD.KeepSilenceSec < 0 {
		problems = append(problems, "vad.keep_silence_sec must not be negative")
	}
	if c.VAD.PaddingSec < 0 {
		problems = append(problems, "vad.padding_sec must not be negative")
	}
	if c.VAD.KeepSilenceSec > c.VAD.LongSilenceSec {
		problems = append(problems, "vad.keep_silence_sec must not exceed vad.long_silence_sec")
	}

	if c.Transcription.ChunkMinutes <= 0 {
		problems = append(problems, "transcription.chunk_minutes must be positive")
	}
	if c.Transcription.ChunkOverlapSec < 0 {
		problems = append(problems, "transcription.chunk_overlap_sec must not be negative")
	}
	if float64(c.Transcription.ChunkMinutes*60) <= c.Transcription.ChunkOverlapSec {
		problems = append(problems, "transcription.chunk_overlap_sec must be smaller than the chunk length")
	}
	if c.Transcription.RetryAttempts < 0 {
		problems = append(problems, "transcription.retry_attempts must not be negative")
	}

	if c.Summary.TextChunkChars <= 0 {
		problems = append(problems, "summary.text_chunk_chars must be positive")
	}

	if c.Workflow.Workers <= 0 {
		problems = append(problems, "workflow.workers must be positive")
	}
	if c.Workflow.PollIntervalSec <= 0 {
		problems = append(problems, "workflow.poll_interval_sec must be positive")
	}
	switch c.Workflow.RestartPolicy {
	case RestartRequeue, RestartFail:
	default:
		problems = append(problems, fmt.Sprintf("workflow.restart_policy must be %q or %q", RestartRequeue, RestartFail))
	}

	switch c.Clients.Mode {
	case ClientModeFake:
	case ClientModeReal:
		if c.Clients.MistralAPIKey == "" {
			problems = append(problems, "clients.mistral_api_key (or MISTRAL_API_KEY) is required in real mode")
		}
	default:
		problems = append(problems, fmt.Sprintf("clients.mode must be %q or %q", ClientModeFake, ClientModeReal))
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, "logging.format must be \"console\" or \"json\"")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// EnsureDirectories creates the directories the daemon writes to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.WorkDir}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "catchup.db")
}

// ChunkSeconds returns the configured chunk length in seconds.
func (c *Config) ChunkSeconds() float64 {
	return float64(c.Transcription.ChunkMinutes) * 60
}
