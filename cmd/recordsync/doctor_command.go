package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"recordsync/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check paths, gates, store, sources and targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			probe := preflight.ProbeSupervisor(cfg)

			if jsonOutput {
				if err := writeJSON(cmd, map[string]any{
					"config":     ctx.configPath,
					"checks":     results,
					"supervisor": probe,
				}); err != nil {
					return err
				}
			} else {
				renderDoctor(cmd.OutOrStdout(), ctx.configPath, results, probe)
			}
			if failed := preflight.Blocking(results); len(failed) > 0 {
				return fmt.Errorf("%d blocking check(s) failed", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	return cmd
}

func renderDoctor(out io.Writer, configPath string, results []preflight.Result, probe preflight.SupervisorProbe) {
	colorize := shouldColorize(out)
	for _, line := range renderSectionHeader("recordsync", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Config", statusInfo, configPath, colorize))
	if probe.Running {
		msg := "running"
		if probe.PID > 0 {
			msg = fmt.Sprintf("running (pid %d)", probe.PID)
		}
		fmt.Fprintln(out, renderStatusLine("Supervisor", statusOK, msg, colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Supervisor", statusInfo, "not running", colorize))
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("Checks", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, r := range results {
		fmt.Fprintln(out, resultLine(r, colorize))
	}
}
