package main

import (
	"encoding/json"
	"strings"
	"time"

	"recordsync/internal/recordstore"
)

type recordView struct {
	ID          string          `json:"id"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
	ContentHash string          `json:"content_hash"`
	PayloadRef  string          `json:"payload_ref"`
	Changelog   string          `json:"changelog_ref,omitempty"`
	Tags        []string        `json:"tags"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Changes     []changeView    `json:"changes,omitempty"`
}

type changeView struct {
	At   time.Time       `json:"at"`
	Diff json.RawMessage `json:"diff"`
}

func newRecordView(rec recordstore.Record) recordView {
	view := recordView{
		ID:          rec.ID,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
		ContentHash: rec.ContentHash,
		PayloadRef:  rec.PayloadRef,
		Tags:        rec.Tags,
	}
	if rec.HasChangelog() {
		view.Changelog = rec.ChangelogRef
	}
	if view.Tags == nil {
		view.Tags = []string{}
	}
	return view
}

func formatUnix(sec int64) string {
	if sec <= 0 {
		return "-"
	}
	return time.Unix(sec, 0).UTC().Format("2006-01-02 15:04")
}

func formatTags(tags []string) string {
	if len(tags) == 0 {
		return "-"
	}
	return strings.Join(tags, ", ")
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
