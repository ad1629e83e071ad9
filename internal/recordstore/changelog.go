package recordstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"

	"recordsync/internal/fileutil"
	"recordsync/internal/value"
)

// ChangeEntry is one logged diff.
type ChangeEntry struct {
	// Timestamp is unix milliseconds.
	Timestamp int64
	Diff      value.Value
}

// appendChange adds diff to the change-log file ref under the current time in
// milliseconds. A colliding timestamp is bumped until it is unique.
func (s *Store) appendChange(ref string, diff value.Value) error {
	path := s.versionsPath(ref)
	log, err := readChangelog(path)
	if err != nil {
		return err
	}
	ts := s.opts.now().UnixMilli()
	for {
		if _, taken := log.Get(strconv.FormatInt(ts, 10)); !taken {
			break
		}
		ts++
	}
	fields := append(log.Fields(), value.Field{Key: strconv.FormatInt(ts, 10), Value: diff})
	data, err := value.NewMapping(fields...).Indent()
	if err != nil {
		return fmt.Errorf("encode change log: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write change log: %w", err)
	}
	return nil
}

func readChangelog(path string) (value.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return value.NewMapping(), nil
		}
		return value.Value{}, fmt.Errorf("read change log: %w", err)
	}
	log, err := value.Parse(data)
	if err != nil {
		return value.Value{}, fmt.Errorf("decode change log %s: %w", path, err)
	}
	if log.Kind() != value.Mapping {
		return value.Value{}, fmt.Errorf("decode change log %s: expected an object, found %s", path, log.Kind())
	}
	return log, nil
}

// Changelog returns the logged diffs of id, oldest first. A record that has
// never changed has an empty log.
func (s *Store) Changelog(id string) ([]ChangeEntry, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if !rec.HasChangelog() {
		return nil, nil
	}
	log, err := readChangelog(s.versionsPath(rec.ChangelogRef))
	if err != nil {
		return nil, err
	}
	entries := make([]ChangeEntry, 0, log.Len())
	for _, f := range log.Fields() {
		ts, err := strconv.ParseInt(f.Key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("change log %s: bad timestamp %q", rec.ChangelogRef, f.Key)
		}
		entries = append(entries, ChangeEntry{Timestamp: ts, Diff: f.Value})
	}
	slices.SortStableFunc(entries, func(a, b ChangeEntry) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		}
		return 0
	})
	return entries, nil
}
