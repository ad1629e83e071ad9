package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"recordsync/internal/pipeline"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var jobFilter string
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent job runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir := cfg.RunReportDir()
			names, err := doublestar.Glob(os.DirFS(dir), "*.json", doublestar.WithFilesOnly())
			if err != nil {
				return fmt.Errorf("list run reports: %w", err)
			}
			// Names start with the UTC start time, so reverse order is newest first.
			slices.Sort(names)
			slices.Reverse(names)

			var reports []pipeline.JobReport
			for _, name := range names {
				report, err := pipeline.ReadReport(filepath.Join(dir, name))
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s: %v\n", name, err)
					continue
				}
				if jobFilter != "" && report.Job != jobFilter {
					continue
				}
				reports = append(reports, report)
				if limit > 0 && len(reports) >= limit {
					break
				}
			}

			if jsonOutput {
				if reports == nil {
					reports = []pipeline.JobReport{}
				}
				return writeJSON(cmd, reports)
			}
			out := cmd.OutOrStdout()
			if len(reports) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(reports))
			for _, r := range reports {
				outcome := string(r.Outcome)
				if r.Skipped {
					outcome = "skipped"
				}
				rows = append(rows, []string{
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.Job,
					outcome,
					strconv.Itoa(r.Summary.Added),
					strconv.Itoa(r.Summary.Updated),
					strconv.Itoa(r.Summary.Deleted),
					strconv.Itoa(r.Summary.Errored),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Job", "Outcome", "Added", "Updated", "Deleted", "Errored", "Took"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&jobFilter, "job", "", "Only runs of this job")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to list (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print reports as JSON")
	return cmd
}
