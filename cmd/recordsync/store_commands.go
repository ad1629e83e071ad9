package main

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recordsync/internal/recordstore"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare the catalog with the payload files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			// Load without strict mode so an inconsistent store can be reported.
			store, err := recordstore.Open(cfg.Paths.DataDir)
			if err != nil {
				return wrapStoreError(err, cfg.Paths.DataDir)
			}
			report, err := store.SelfCheck()
			if err != nil {
				return err
			}

			if jsonOutput {
				if err := writeJSON(cmd, map[string]any{
					"ok":               report.OK(),
					"records":          report.Records,
					"payloads":         report.Payloads,
					"missing_payloads": report.MissingPayloads,
					"orphan_payloads":  report.OrphanPayloads,
					"tags":             store.TagCounts(),
				}); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Record store", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Records", statusInfo, strconv.Itoa(report.Records), colorize))
				fmt.Fprintln(out, renderStatusLine("Payload files", statusInfo, strconv.Itoa(report.Payloads), colorize))
				if report.OK() {
					fmt.Fprintln(out, renderStatusLine("Consistency", statusOK, "catalog and payloads agree", colorize))
				} else {
					if len(report.MissingPayloads) > 0 {
						fmt.Fprintln(out, renderStatusLine("Missing payloads", statusError, strings.Join(report.MissingPayloads, ", "), colorize))
					}
					if len(report.OrphanPayloads) > 0 {
						fmt.Fprintln(out, renderStatusLine("Orphan payloads", statusWarn, strings.Join(report.OrphanPayloads, ", "), colorize))
					}
				}
				counts := store.TagCounts()
				if len(counts) > 0 {
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTagCounts(counts))
				}
			}
			if !report.OK() {
				return errors.New("record store is inconsistent")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	return cmd
}

func renderTagCounts(counts map[string]int) string {
	tags := make([]string, 0, len(counts))
	for tag := range counts {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	rows := make([][]string, 0, len(tags))
	for _, tag := range tags {
		rows = append(rows, []string{tag, strconv.Itoa(counts[tag])})
	}
	return renderTable([]string{"Tag", "Records"}, rows, []columnAlignment{alignLeft, alignRight})
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var tagFilter string
	var sortColumn string
	var ascending bool
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List records",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			if sortColumn != "" {
				if err := store.Sort(sortColumn, ascending); err != nil {
					return err
				}
			}
			tag := recordstore.NormalizeTag(tagFilter)

			var views []recordView
			for _, rec := range store.Records() {
				if tag != "" && !rec.HasTag(tag) {
					continue
				}
				views = append(views, newRecordView(rec))
				if limit > 0 && len(views) >= limit {
					break
				}
			}

			if jsonOutput {
				if views == nil {
					views = []recordView{}
				}
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "No records")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{v.ID, formatUnix(v.CreatedAt), formatUnix(v.UpdatedAt), shortHash(v.ContentHash), formatTags(v.Tags)})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Created", "Updated", "Hash", "Tags"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().StringVarP(&tagFilter, "tag", "t", "", "Only records carrying this tag")
	cmd.Flags().StringVar(&sortColumn, "sort", "", "Sort column (defaults to store.default_sort)")
	cmd.Flags().BoolVar(&ascending, "asc", false, "Sort ascending")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum records to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print records as JSON")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	var changes bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one record with its payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			id := strings.TrimSpace(args[0])
			rec, ok := store.Record(id)
			if !ok {
				return fmt.Errorf("record %q not found", id)
			}
			payload, err := store.Fetch(id)
			if err != nil {
				return err
			}
			view := newRecordView(rec)
			if view.Payload, err = payload.MarshalJSON(); err != nil {
				return err
			}
			if changes {
				entries, err := store.Changelog(id)
				if err != nil {
					return err
				}
				for _, e := range entries {
					diff, err := e.Diff.MarshalJSON()
					if err != nil {
						return err
					}
					view.Changes = append(view.Changes, changeView{At: time.UnixMilli(e.Timestamp).UTC(), Diff: diff})
				}
			}

			if jsonOutput {
				return writeJSON(cmd, view)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:        %s\n", view.ID)
			fmt.Fprintf(out, "Created:   %s\n", formatUnix(view.CreatedAt))
			fmt.Fprintf(out, "Updated:   %s\n", formatUnix(view.UpdatedAt))
			fmt.Fprintf(out, "Hash:      %s\n", view.ContentHash)
			fmt.Fprintf(out, "Tags:      %s\n", formatTags(view.Tags))
			fmt.Fprintf(out, "Changelog: %s\n", yesNo(rec.HasChangelog()))
			indented, err := payload.Indent()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s\n", indented)
			if changes {
				fmt.Fprintln(out)
				if len(view.Changes) == 0 {
					fmt.Fprintln(out, "No recorded changes")
				}
				for _, c := range view.Changes {
					fmt.Fprintf(out, "%s  %s\n", c.At.Format(time.RFC3339), c.Diff)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&changes, "changes", false, "Include the change log")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the record as JSON")
	return cmd
}
