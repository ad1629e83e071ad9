package main

import (
	"errors"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"recordsync/internal/recordstore"
)

type tagSelector struct {
	match string
	all   bool
}

func (s *tagSelector) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.match, "match", "", "Select records whose id matches this glob")
	cmd.Flags().BoolVar(&s.all, "all", false, "Select every record")
}

// predicate returns the record filter for ids, --match or --all. Exactly one
// selection mode must be used.
func (s *tagSelector) predicate(ids []string) (func(recordstore.Record) bool, error) {
	modes := 0
	if len(ids) > 0 {
		modes++
	}
	if s.match != "" {
		modes++
	}
	if s.all {
		modes++
	}
	if modes != 1 {
		return nil, errors.New("select records with ids, --match <glob> or --all (exactly one)")
	}
	switch {
	case s.all:
		return func(recordstore.Record) bool { return true }, nil
	case s.match != "":
		if !doublestar.ValidatePattern(s.match) {
			return nil, fmt.Errorf("invalid glob %q", s.match)
		}
		pattern := s.match
		return func(r recordstore.Record) bool {
			ok, _ := doublestar.Match(pattern, r.ID)
			return ok
		}, nil
	default:
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		return func(r recordstore.Record) bool {
			_, ok := set[r.ID]
			return ok
		}, nil
	}
}

func newTagCommand(ctx *commandContext) *cobra.Command {
	tagCmd := &cobra.Command{
		Use:   "tag",
		Short: "Inspect and edit record tags",
	}
	tagCmd.AddCommand(newTagAddCommand(ctx))
	tagCmd.AddCommand(newTagRemoveCommand(ctx))
	tagCmd.AddCommand(newTagReplaceCommand(ctx))
	tagCmd.AddCommand(newTagListCommand(ctx))
	return tagCmd
}

func newTagAddCommand(ctx *commandContext) *cobra.Command {
	var sel tagSelector
	cmd := &cobra.Command{
		Use:   "add <tag> [id...]",
		Short: "Add a tag to records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := sel.predicate(args[1:])
			if err != nil {
				return err
			}
			return ctx.withLockedStore(cmd, func(store *recordstore.Store) error {
				if err := requireKnownIDs(store, args[1:]); err != nil {
					return err
				}
				n, err := store.TagAddWhere(args[0], match)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Tagged %d record(s) with %s\n", n, recordstore.NormalizeTag(args[0]))
				return nil
			})
		},
	}
	sel.bind(cmd)
	return cmd
}

func newTagRemoveCommand(ctx *commandContext) *cobra.Command {
	var sel tagSelector
	cmd := &cobra.Command{
		Use:   "remove <tag> [id...]",
		Short: "Remove a tag from records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			match, err := sel.predicate(args[1:])
			if err != nil {
				return err
			}
			return ctx.withLockedStore(cmd, func(store *recordstore.Store) error {
				if err := requireKnownIDs(store, args[1:]); err != nil {
					return err
				}
				n, err := store.TagRemoveWhere(args[0], match)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from %d record(s)\n", recordstore.NormalizeTag(args[0]), n)
				return nil
			})
		},
	}
	sel.bind(cmd)
	return cmd
}

func newTagReplaceCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replace <old> <new> [id...]",
		Short: "Rename a tag on the given records, or on every record when none are given",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldTag, newTag, ids := args[0], args[1], args[2:]
			return ctx.withLockedStore(cmd, func(store *recordstore.Store) error {
				if len(ids) == 0 {
					n, err := store.TagReplaceAll(oldTag, newTag)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Replaced %s with %s on %d record(s)\n", oldTag, newTag, n)
					return nil
				}
				if err := requireKnownIDs(store, ids); err != nil {
					return err
				}
				n := 0
				for _, id := range ids {
					changed, err := store.TagReplace(id, oldTag, newTag)
					if err != nil {
						return err
					}
					if changed {
						n++
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Replaced %s with %s on %d record(s)\n", oldTag, newTag, n)
				return nil
			})
		},
	}
	return cmd
}

func newTagListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Count records per tag",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			counts := store.TagCounts()
			if jsonOutput {
				return writeJSON(cmd, counts)
			}
			if len(counts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tags")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTagCounts(counts))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print counts as JSON")
	return cmd
}

func requireKnownIDs(store *recordstore.Store, ids []string) error {
	var missing []string
	for _, id := range ids {
		if !store.Contains(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unknown record id(s): %v", missing)
	}
	return nil
}
