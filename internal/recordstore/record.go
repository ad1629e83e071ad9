package recordstore

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NoChangelog is stored in the changelog_ref column until the first change is
// logged for a record.
const NoChangelog = "nolog"

// Catalog columns, in file order.
const (
	ColumnID           = "id"
	ColumnUpdatedAt    = "updated_at"
	ColumnCreatedAt    = "created_at"
	ColumnPayloadRef   = "payload_ref"
	ColumnChangelogRef = "changelog_ref"
	ColumnContentHash  = "content_hash"
	ColumnTags         = "tags"
)

// Columns lists the catalog columns in file order.
var Columns = []string{
	ColumnID,
	ColumnUpdatedAt,
	ColumnCreatedAt,
	ColumnPayloadRef,
	ColumnChangelogRef,
	ColumnContentHash,
	ColumnTags,
}

// Record is one catalog row.
type Record struct {
	ID string
	// UpdatedAt is the unix time of the last detected content change.
	UpdatedAt int64
	// CreatedAt is the unix time the entity was created at the source.
	CreatedAt int64
	// PayloadRef is the payload file name inside current_data/.
	PayloadRef string
	// ChangelogRef is the change-log file name inside previous_versions/, or
	// NoChangelog.
	ChangelogRef string
	ContentHash  string
	Tags         []string
}

// HasTag reports whether the record carries tag.
func (r Record) HasTag(tag string) bool {
	return slices.Contains(r.Tags, NormalizeTag(tag))
}

// HasChangelog reports whether a change log file exists for the record.
func (r Record) HasChangelog() bool {
	return r.ChangelogRef != "" && r.ChangelogRef != NoChangelog
}

func (r Record) clone() Record {
	r.Tags = slices.Clone(r.Tags)
	return r
}

// NormalizeTag trims and NFC-normalizes a tag so visually identical tags
// compare equal.
func NormalizeTag(tag string) string {
	return norm.NFC.String(strings.TrimSpace(tag))
}

func validTag(tag string) bool {
	return tag != "" && !strings.ContainsAny(tag, "\t\n\r")
}

// ValidID reports whether id can be stored. Ids become file names and
// catalog cells, so path separators, control characters and a leading dot
// are rejected.
func ValidID(id string) bool {
	if id == "" || id != strings.TrimSpace(id) || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsFunc(id, func(r rune) bool {
		return r == '/' || r == '\\' || r < 0x20 || r == 0x7f
	})
}
