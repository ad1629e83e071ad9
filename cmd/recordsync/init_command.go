package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"recordsync/internal/recordstore"
)

func newInitCommand(ctx *commandContext) *cobra.Command {
	var wipe bool
	var yes bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty record store",
		Long: "Create the catalog and payload directories under paths.data_dir.\n" +
			"With --wipe an existing catalog and every current payload are removed first;\n" +
			"change logs and archived versions are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			if wipe && !yes {
				return errors.New("--wipe discards every current record; repeat with --yes to confirm")
			}

			opts := []recordstore.Option{recordstore.WithLogger(logger)}
			if wipe {
				opts = append(opts, recordstore.WithWipe())
			}
			store, err := recordstore.Initialize(cfg.Paths.DataDir, opts...)
			if err != nil {
				if errors.Is(err, recordstore.ErrAlreadyInitialized) {
					return fmt.Errorf("record store already exists at %s (use --wipe --yes to start over)", cfg.Paths.DataDir)
				}
				if errors.Is(err, recordstore.ErrLocked) {
					return fmt.Errorf("record store is in use by a running job")
				}
				return err
			}
			defer store.Unlock()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Initialized record store at %s\n", cfg.Paths.DataDir)
			if wipe {
				fmt.Fprintln(out, "Existing records were wiped; the next run treats every entity as new.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wipe, "wipe", false, "Remove an existing catalog and current payloads")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm destructive operations")
	return cmd
}
