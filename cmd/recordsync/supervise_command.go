package main

import (
	"github.com/spf13/cobra"

	"recordsync/internal/supervisor"
)

func newSuperviseCommand(ctx *commandContext) *cobra.Command {
	var development bool

	cmd := &cobra.Command{
		Use:   "supervise",
		Short: "Run configured jobs on their schedules until stopped",
		Long: "Start the long-running supervisor. Both gates are opened at startup.\n" +
			"Stop it with SIGTERM or `recordsync gate stop`.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return supervisor.Run(cmd.Context(), cfg, supervisor.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
			})
		},
	}

	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in logs")
	return cmd
}
