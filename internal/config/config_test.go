package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default configuration is invalid: %v", err)
	}
	if cfg.VAD.LongSilenceSec != 1.6 || cfg.VAD.KeepSilenceSec != 0.35 || cfg.VAD.PaddingSec != 0.2 {
		t.Fatalf("unexpected silence defaults: %+v", cfg.VAD)
	}
	if cfg.Transcription.ChunkMinutes != 15 || cfg.Transcription.ChunkOverlapSec != 6 {
		t.Fatalf("unexpected transcription defaults: %+v", cfg.Transcription)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, loaded, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded {
		t.Fatal("missing file reported as loaded")
	}
	if cfg.Clients.Mode != ClientModeFake {
		t.Fatalf("unexpected default client mode %q", cfg.Clients.Mode)
	}
}

func TestLoadLayersFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
data_dir = "` + filepath.Join(dir, "data") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"
work_dir = "` + filepath.Join(dir, "work") + `"

[vad]
long_silence_sec = 2.5

[workflow]
workers = 4
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !loaded {
		t.Fatal("existing file not reported as loaded")
	}
	if cfg.VAD.LongSilenceSec != 2.5 {
		t.Fatalf("file value not applied: %v", cfg.VAD.LongSilenceSec)
	}
	if cfg.VAD.KeepSilenceSec != 0.35 {
		t.Fatalf("default not preserved: %v", cfg.VAD.KeepSilenceSec)
	}
	if cfg.Workflow.Workers != 4 {
		t.Fatalf("workers override not applied: %d", cfg.Workflow.Workers)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"keep exceeds long", func(c *Config) { c.VAD.KeepSilenceSec = 3 }, "keep_silence_sec"},
		{"overlap too large", func(c *Config) { c.Transcription.ChunkOverlapSec = 1000 }, "chunk_overlap_sec"},
		{"zero workers", func(c *Config) { c.Workflow.Workers = 0 }, "workers"},
		{"bad restart policy", func(c *Config) { c.Workflow.RestartPolicy = "resume" }, "restart_policy"},
		{"bad client mode", func(c *Config) { c.Clients.Mode = "mock" }, "clients.mode"},
		{"real mode without key", func(c *Config) { c.Clients.Mode = ClientModeReal; c.Clients.MistralAPIKey = "" }, "mistral_api_key"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"zero text budget", func(c *Config) { c.Summary.TextChunkChars = 0 }, "text_chunk_chars"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.normalize()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestSampleConfigParses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatalf("WriteSample returned error: %v", err)
	}
	if err := WriteSample(path); err == nil {
		t.Fatal("expected refusal to overwrite existing file")
	}
	if _, loaded, err := Load(path); err != nil || !loaded {
		t.Fatalf("sample config failed to load: loaded=%v err=%v", loaded, err)
	}
}
