package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newShowCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <lecture-id>",
		Short: "Show one lecture with its jobs and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmdCtx)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			lecture, err := st.LectureByID(ctx, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Lecture:  %s\n", lecture.LectureID)
			fmt.Fprintf(out, "Course:   %s\n", lecture.CourseCode)
			fmt.Fprintf(out, "Date:     %s\n", lecture.LectureDate)
			fmt.Fprintf(out, "Title:    %s\n", lecture.Title)
			fmt.Fprintf(out, "Language: %s\n", lecture.Language)
			fmt.Fprintf(out, "Source:   %s\n", lecture.SourceURL)
			fmt.Fprintln(out)

			jobs, err := st.JobsForLecture(ctx, lecture.LectureID)
			if err != nil {
				return err
			}
			jobTable := newTable()
			jobTable.AppendHeader(table.Row{"Job", "Status", "Progress", "Started", "Finished", "Error"})
			for _, job := range jobs {
				jobTable.AppendRow(table.Row{
					job.JobID[:8],
					job.Status,
					fmt.Sprintf("%3.0f%%", job.Progress*100),
					formatWhen(job.StartedAt),
					formatWhen(job.FinishedAt),
					job.ErrorMessage,
				})
			}
			jobTable.Render()
			fmt.Fprintln(out)

			latest, err := st.LatestArtifacts(ctx, lecture.LectureID)
			if err != nil {
				return err
			}
			if len(latest) == 0 {
				fmt.Fprintln(out, "No artifacts yet.")
				return nil
			}
			artifactTable := newTable()
			artifactTable.AppendHeader(table.Row{"Artifact", "Path"})
			for _, artifact := range latest {
				artifactTable.AppendRow(table.Row{artifact.Type, artifact.Path})
			}
			artifactTable.Render()
			return nil
		},
	}
}
