package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newBrowseCommand(cmdCtx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "browse [course [date]]",
		Short: "Browse stored lectures by course and date",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmdCtx)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			switch len(args) {
			case 0:
				courses, err := st.Courses(ctx)
				if err != nil {
					return err
				}
				if len(courses) == 0 {
					fmt.Fprintln(out, "No lectures stored yet.")
					return nil
				}
				for _, course := range courses {
					fmt.Fprintln(out, course)
				}
			case 1:
				dates, err := st.DatesForCourse(ctx, args[0])
				if err != nil {
					return err
				}
				if len(dates) == 0 {
					fmt.Fprintf(out, "No lectures stored for %s.\n", args[0])
					return nil
				}
				for _, date := range dates {
					fmt.Fprintln(out, date)
				}
			case 2:
				lectures, err := st.LecturesForCourseDate(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if len(lectures) == 0 {
					fmt.Fprintf(out, "No lectures stored for %s on %s.\n", args[0], args[1])
					return nil
				}
				t := newTable()
				t.AppendHeader(table.Row{"Lecture", "Title", "Language"})
				for _, lecture := range lectures {
					t.AppendRow(table.Row{lecture.LectureID, lecture.Title, lecture.Language})
				}
				t.Render()
			}
			return nil
		},
	}
}
