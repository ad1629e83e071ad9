package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"recordsync/internal/config"
	"recordsync/internal/pipeline"
	"recordsync/internal/preflight"
	"recordsync/internal/reconcile"
	"recordsync/internal/source"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var trialRun bool
	var sourceFlag string
	var formatFlag string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "run [job...]",
		Short: "Run jobs once",
		Long: "Run the named jobs once, in order, or every configured job when none are named.\n" +
			"--source runs an ad-hoc job named \"manual\" against a file, directory or glob.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			jobs, err := selectJobs(cfg, args, sourceFlag, formatFlag)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				return errors.New("no jobs configured; add a [[jobs]] section or pass --source")
			}

			if failed := preflight.Blocking(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
				for _, r := range failed {
					fmt.Fprintln(cmd.ErrOrStderr(), renderStatusLine(r.Name, statusError, r.Detail, false))
				}
				return fmt.Errorf("preflight failed; run `recordsync doctor` for details")
			}

			runner := pipeline.NewRunner(cfg, logger)
			defer runner.Close()

			var reports []pipeline.JobReport
			for _, cj := range jobs {
				job := pipeline.Job{
					Name:     cj.Name,
					Source:   source.FromJob(cj, logger),
					TrialRun: cj.TrialRun || trialRun,
				}
				reports = append(reports, runner.Run(cmd.Context(), job))
				if cmd.Context().Err() != nil {
					break
				}
			}

			if jsonOutput {
				if err := writeJSON(cmd, reports); err != nil {
					return err
				}
			} else {
				printRunReports(cmd.OutOrStdout(), reports)
			}
			return runError(reports)
		},
	}

	cmd.Flags().BoolVar(&trialRun, "trial-run", false, "Classify and report without writing")
	cmd.Flags().StringVar(&sourceFlag, "source", "", "Run an ad-hoc job against this path or glob")
	cmd.Flags().StringVar(&formatFlag, "format", "auto", "Snapshot format for --source (auto, json, yaml)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print run reports as JSON")
	return cmd
}

func selectJobs(cfg *config.Config, names []string, sourcePath, format string) ([]config.Job, error) {
	if sourcePath != "" {
		if len(names) > 0 {
			return nil, errors.New("--source cannot be combined with job names")
		}
		expanded, err := config.ExpandPath(sourcePath)
		if err != nil {
			return nil, err
		}
		return []config.Job{{Name: "manual", Source: expanded, Format: format}}, nil
	}
	if len(names) == 0 {
		return cfg.Jobs, nil
	}
	jobs := make([]config.Job, 0, len(names))
	for _, name := range names {
		job, ok := cfg.JobByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown job %q", name)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func printRunReports(out io.Writer, reports []pipeline.JobReport) {
	headers := []string{"Job", "Outcome", "Examined", "Added", "Updated", "Unchanged", "Deleted", "Errored", "Deletion"}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		outcome := string(r.Outcome)
		if r.Skipped {
			outcome = "skipped (gate closed)"
		}
		if r.Summary.TrialRun {
			outcome += " (trial)"
		}
		deletion := "-"
		if r.Deletion != nil {
			deletion = r.Deletion.Reason
		}
		s := r.Summary
		rows = append(rows, []string{
			r.Job, outcome,
			strconv.Itoa(s.Examined), strconv.Itoa(s.Added), strconv.Itoa(s.Updated),
			strconv.Itoa(s.Unchanged), strconv.Itoa(s.Deleted), strconv.Itoa(s.Errored),
			deletion,
		})
	}
	fmt.Fprintln(out, renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}))
	for _, r := range reports {
		if r.Error != "" {
			fmt.Fprintf(out, "%s: %s\n", r.Job, r.Error)
		}
		if r.Deletion != nil && r.Deletion.Blocked() {
			fmt.Fprintf(out, "%s: deletion blocked: %s\n", r.Job, r.Deletion)
		}
	}
}

func runError(reports []pipeline.JobReport) error {
	var failed []string
	for _, r := range reports {
		if r.Outcome == reconcile.OutcomeFailed {
			failed = append(failed, r.Job)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d job(s) failed: %v", len(failed), failed)
	}
	return nil
}
