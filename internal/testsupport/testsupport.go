// Package testsupport provides shared helpers for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"catchup/internal/config"
	"catchup/internal/store"
)

// NewConfig returns a validated configuration rooted in a per-test temp
// directory, running the fake capability set.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.CookiesPath = filepath.Join(base, "cookies.txt")
	cfg.Clients.Mode = config.ClientModeFake
	cfg.Clients.FakeDurationSec = 120
	cfg.Workflow.Workers = 1
	cfg.Workflow.PollIntervalSec = 1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate test config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a store against the test configuration and closes it
// when the test finishes.
func MustOpenStore(t *testing.T, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}
