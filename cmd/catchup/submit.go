package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"catchup/internal/pipeline"
	"catchup/internal/store"
)

func newSubmitCommand(cmdCtx *commandContext) *cobra.Command {
	var (
		titleFlag    string
		languageFlag string
		rerunFlag    bool
	)

	cmd := &cobra.Command{
		Use:   "submit <url>",
		Short: "Queue a lecture recording for processing",
		Long:  "Resolves the URL into a stable lecture identity and enqueues a job.\nSubmitting a known URL reuses the existing lecture and adds a new job.",
		Args:  cobra.ExactArgs(1),
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

			st, err := store.Open(cfg.DatabasePath())
			if err != nil {
				return err
			}
			defer st.Close()

			orch := pipeline.New(cfg, st, pipeline.BuildClientSet(cfg), logger)
			result, err := orch.Submit(cmd.Context(), args[0], titleFlag, languageFlag, rerunFlag)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.NewLecture {
				fmt.Fprintf(out, "Created lecture %s\n", result.Lecture.LectureID)
			} else {
				fmt.Fprintf(out, "Found existing lecture %s\n", result.Lecture.LectureID)
			}
			fmt.Fprintf(out, "Queued job %s\n", result.Job.JobID)
			return nil
		},
	}

	cmd.Flags().StringVar(&titleFlag, "title", "", "Recording title (course code and date are derived from it)")
	cmd.Flags().StringVar(&languageFlag, "language", "", "Transcription language override (e.g. no, en); default follows the course table")
	cmd.Flags().BoolVar(&rerunFlag, "rerun", false, "Replace the lecture's prior artifacts instead of appending")

	return cmd
}
