package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"catchup/internal/pipeline"
	"catchup/internal/store"
)

func newDaemonCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the processing daemon",
		Long:  "Applies the configured restart policy to interrupted jobs, then\nprocesses queued jobs with a bounded worker pool until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := cmdCtx.ensureLogger()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}

			// One daemon per data directory; a second instance would race
			// the restart policy and the worker claims.
			lock := flock.New(filepath.Join(cfg.Paths.DataDir, "catchup.lock"))
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire daemon lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another catchup daemon is already running for %s", cfg.Paths.DataDir)
			}
			defer lock.Unlock() //nolint:errcheck

			st, err := store.Open(cfg.DatabasePath())
			if err != nil {
				return err
			}
			defer st.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			orch := pipeline.New(cfg, st, pipeline.BuildClientSet(cfg), logger)
			return orch.Run(ctx)
		},
	}
}
