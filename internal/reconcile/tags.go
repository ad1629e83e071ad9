package reconcile

import "strings"

// Workflow tags shared between pipeline stages.
const (
	// TagDataQuality marks a record a downstream stage could not accept. It
	// is cleared once a later attempt succeeds.
	TagDataQuality = "data_quality_issue"
	// TagSourceChanged marks a record whose content changed at the source,
	// for stages that keep no hash of their own.
	TagSourceChanged = "source_changed"
	// TagMarkedForRemoval marks a record that vanished from the source and
	// passed the deletion guard.
	TagMarkedForRemoval = "remove_row"

	resyncPrefix = "resync:"
	deletePrefix = "delete:"
)

// ResyncTag is set when target needs the record pushed again.
func ResyncTag(target string) string { return resyncPrefix + target }

// DeleteTag is set while target still holds a copy of a removed record.
func DeleteTag(target string) string { return deletePrefix + target }

// IsDeleteTag reports whether tag is a pending target deletion.
func IsDeleteTag(tag string) bool { return strings.HasPrefix(tag, deletePrefix) }

// PendingDeletions returns the targets still holding a copy of a record with
// the given tags.
func PendingDeletions(tags []string) []string {
	var targets []string
	for _, tag := range tags {
		if IsDeleteTag(tag) {
			targets = append(targets, strings.TrimPrefix(tag, deletePrefix))
		}
	}
	return targets
}
