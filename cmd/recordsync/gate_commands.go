package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recordsync/internal/gate"
	"recordsync/internal/logging"
)

type gateView struct {
	Scope       gate.Scope `json:"scope"`
	Path        string     `json:"path"`
	MayContinue bool       `json:"may_continue"`
	Error       string     `json:"error,omitempty"`
}

func newGateCommand(ctx *commandContext) *cobra.Command {
	gateCmd := &cobra.Command{
		Use:   "gate",
		Short: "Inspect and flip the execution gates",
		Long: "The job gate stops the running job at its next entity; the next scheduled run\n" +
			"reopens it. The supervisor gate stops the supervisor after its current job.",
	}
	gateCmd.AddCommand(newGateStatusCommand(ctx))
	gateCmd.AddCommand(newGateSetCommand(ctx, "enable", "Allow work to continue", true))
	gateCmd.AddCommand(newGateSetCommand(ctx, "disable", "Ask work to stop", false))
	gateCmd.AddCommand(newGateStopCommand(ctx))
	return gateCmd
}

func (c *commandContext) gates() (gate.Pair, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return gate.Pair{}, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return gate.Pair{}, err
	}
	return gate.FromConfig(cfg, logger), nil
}

func newGateStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show both gates",
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := ctx.gates()
			if err != nil {
				return err
			}
			cfg, _ := ctx.ensureConfig()
			views := []gateView{
				readGate(cmd, pair.Job, cfg.Gates.JobPath),
				readGate(cmd, pair.Supervisor, cfg.Gates.SupervisorPath),
			}
			if jsonOutput {
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, v := range views {
				kind, msg := statusOK, "open"
				switch {
				case v.Error != "":
					kind, msg = statusWarn, "unreadable ("+v.Error+"); treated as open"
				case !v.MayContinue:
					kind, msg = statusWarn, "closed"
				}
				fmt.Fprintln(out, renderStatusLine(string(v.Scope)+" gate", kind, msg, colorize))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print gate state as JSON")
	return cmd
}

func readGate(cmd *cobra.Command, g *gate.Gate, path string) gateView {
	v := gateView{Scope: g.Scope(), Path: path}
	open, err := g.Get(cmd.Context())
	if err != nil {
		v.Error = err.Error()
		v.MayContinue = true
		return v
	}
	v.MayContinue = open
	return v
}

func newGateSetCommand(ctx *commandContext, use, short string, value bool) *cobra.Command {
	var scopeFlag string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := gate.ParseScope(scopeFlag)
			if err != nil {
				return err
			}
			pair, err := ctx.gates()
			if err != nil {
				return err
			}
			if err := pair.Scoped(scope).Set(cmd.Context(), value); err != nil {
				return err
			}
			state := "closed"
			if value {
				state = "open"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s gate %s\n", scope, state)
			return nil
		},
	}
	cmd.Flags().StringVar(&scopeFlag, "scope", string(gate.ScopeJob), "Gate scope (job or supervisor)")
	return cmd
}

func newGateStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Close both gates so the running job and the supervisor stop",
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := ctx.gates()
			if err != nil {
				return err
			}
			if err := pair.StopAll(cmd.Context()); err != nil {
				return err
			}
			if logger, err := ctx.ensureLogger(); err == nil {
				logger.Info("stop requested from cli", logging.String(logging.FieldEventType, "gate_stop_requested"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Both gates closed; the supervisor exits after its current job")
			return nil
		},
	}
}
