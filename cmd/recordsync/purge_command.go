package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"recordsync/internal/reconcile"
	"recordsync/internal/recordstore"
)

func newPurgeCommand(ctx *commandContext) *cobra.Command {
	var tag string
	var trialRun bool
	var noArchive bool
	var force bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every record carrying a tag",
		Long: "Delete records carrying --tag (default " + reconcile.TagMarkedForRemoval + ").\n" +
			"Records that still wait on a downstream delete:<target> tag are refused unless --force is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			archive := cfg.Store.ArchiveOnDelete && !noArchive
			out := cmd.OutOrStdout()

			return ctx.withLockedStore(cmd, func(store *recordstore.Store) error {
				normalized := recordstore.NormalizeTag(tag)
				if !force {
					var waiting []string
					for _, id := range store.Tagged(normalized) {
						rec, _ := store.Record(id)
						if len(reconcile.PendingDeletions(rec.Tags)) > 0 {
							waiting = append(waiting, id)
						}
					}
					if len(waiting) > 0 {
						return fmt.Errorf("%d record(s) still pending downstream deletion %v; run the job again or use --force", len(waiting), waiting)
					}
				}

				ids, err := store.DeleteTagged(normalized, archive, trialRun)
				if trialRun {
					fmt.Fprintf(out, "Would delete %d record(s): %v\n", len(ids), ids)
					return err
				}
				fmt.Fprintf(out, "Deleted %d record(s)", len(ids))
				if archive {
					fmt.Fprint(out, " (payloads archived)")
				}
				fmt.Fprintln(out)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&tag, "tag", "t", reconcile.TagMarkedForRemoval, "Tag selecting records to delete")
	cmd.Flags().BoolVar(&trialRun, "trial-run", false, "List records without deleting")
	cmd.Flags().BoolVar(&noArchive, "no-archive", false, "Do not archive payloads before deleting")
	cmd.Flags().BoolVar(&force, "force", false, "Delete even when downstream deletions are pending")
	return cmd
}
