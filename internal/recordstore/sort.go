package recordstore

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Sort orders iteration by column. Ties are broken by id so the order is
// deterministic. The order is kept until the next Sort and is the order rows
// are written by Persist.
func (s *Store) Sort(column string, ascending bool) error {
	compare, ok := columnCompare[strings.ToLower(strings.TrimSpace(column))]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownColumn, column)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.sortColumn, s.opts.sortAscending = column, ascending
	slices.SortStableFunc(s.order, func(a, b string) int {
		ra, rb := s.records[a], s.records[b]
		c := compare(ra, rb)
		if !ascending {
			c = -c
		}
		if c == 0 {
			return cmp.Compare(a, b)
		}
		return c
	})
	return nil
}

var columnCompare = map[string]func(a, b *Record) int{
	ColumnID:           func(a, b *Record) int { return cmp.Compare(a.ID, b.ID) },
	ColumnUpdatedAt:    func(a, b *Record) int { return cmp.Compare(a.UpdatedAt, b.UpdatedAt) },
	ColumnCreatedAt:    func(a, b *Record) int { return cmp.Compare(a.CreatedAt, b.CreatedAt) },
	ColumnPayloadRef:   func(a, b *Record) int { return cmp.Compare(a.PayloadRef, b.PayloadRef) },
	ColumnChangelogRef: func(a, b *Record) int { return cmp.Compare(a.ChangelogRef, b.ChangelogRef) },
	ColumnContentHash:  func(a, b *Record) int { return cmp.Compare(a.ContentHash, b.ContentHash) },
	ColumnTags:         func(a, b *Record) int { return cmp.Compare(encodeTags(a.Tags), encodeTags(b.Tags)) },
}
