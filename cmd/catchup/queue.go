package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"catchup/internal/store"
)

func newQueueCommand(cmdCtx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newQueueListCommand(cmdCtx))
	cmd.AddCommand(newQueueStatsCommand(cmdCtx))
	cmd.AddCommand(newQueueRetryCommand(cmdCtx))
	return cmd
}

func openStore(cmdCtx *commandContext) (*store.Store, error) {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return store.Open(cfg.DatabasePath())
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		t.SetStyle(table.StyleLight)
	} else {
		t.SetStyle(table.StyleDefault)
		t.Style().Options.DrawBorder = false
		t.Style().Format.Header = text.FormatDefault
	}
	return t
}

func formatWhen(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func newQueueListCommand(cmdCtx *commandContext) *cobra.Command {
	var statusFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmdCtx)
			if err != nil {
				return err
			}
			defer st.Close()

			var filter []store.Status
			if statusFlag != "" {
				status, ok := store.ParseStatus(statusFlag)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFlag)
				}
				filter = append(filter, status)
			}

			jobs, err := st.ListJobs(cmd.Context(), filter...)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
				return nil
			}

			t := newTable()
			t.AppendHeader(table.Row{"Job", "Lecture", "Status", "Progress", "Created", "Error"})
			for _, job := range jobs {
				errMsg := job.ErrorMessage
				if len(errMsg) > 48 {
					errMsg = errMsg[:45] + "..."
				}
				t.AppendRow(table.Row{
					job.JobID[:8],
					job.LectureID,
					job.Status,
					fmt.Sprintf("%3.0f%%", job.Progress*100),
					formatWhen(job.CreatedAt),
					errMsg,
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Only show jobs with this status")
	return cmd
}

func newQueueStatsCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show job counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmdCtx)
			if err != nil {
				return err
			}
			defer st.Close()

			stats, err := st.JobStats(cmd.Context())
			if err != nil {
				return err
			}

			t := newTable()
			t.AppendHeader(table.Row{"Status", "Jobs"})
			for _, status := range store.AllStatuses() {
				if count, ok := stats.ByStatus[status]; ok {
					t.AppendRow(table.Row{status, count})
				}
			}
			t.AppendFooter(table.Row{"total", stats.Total})
			t.Render()
			return nil
		},
	}
}

func newQueueRetryCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Queue fresh jobs for lectures whose latest attempt failed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmdCtx)
			if err != nil {
				return err
			}
			defer st.Close()

			jobs, err := st.RequeueFailedLectures(cmd.Context())
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No failed lectures to retry.")
				return nil
			}
			for _, job := range jobs {
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s for lecture %s\n", job.JobID, job.LectureID)
			}
			return nil
		},
	}
}
