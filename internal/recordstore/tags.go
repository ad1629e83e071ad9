package recordstore

import (
	"fmt"
	"slices"
)

// Tag mutations change the in-memory catalog only; Persist writes them.
// Adding a present tag or removing an absent one is a no-op.

// TagAdd adds tag to id.
func (s *Store) TagAdd(id, tag string) error {
	tag, err := checkTag(tag)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("tag %s: %w", id, ErrNotFound)
	}
	addTag(rec, tag)
	return nil
}

// TagRemove removes tag from id.
func (s *Store) TagRemove(id, tag string) error {
	tag, err := checkTag(tag)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("untag %s: %w", id, ErrNotFound)
	}
	removeTag(rec, tag)
	return nil
}

// TagCheck reports whether id carries tag. Unknown ids report false.
func (s *Store) TagCheck(id, tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return ok && slices.Contains(rec.Tags, NormalizeTag(tag))
}

// TagReplace swaps old for new on id when old is present.
func (s *Store) TagReplace(id, old, new string) (bool, error) {
	old, err := checkTag(old)
	if err != nil {
		return false, err
	}
	if new, err = checkTag(new); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return false, fmt.Errorf("retag %s: %w", id, ErrNotFound)
	}
	return replaceTag(rec, old, new), nil
}

// TagAddAll adds tag to every record and returns how many changed.
func (s *Store) TagAddAll(tag string) (int, error) {
	return s.TagAddWhere(tag, nil)
}

// TagRemoveAll removes tag from every record and returns how many changed.
func (s *Store) TagRemoveAll(tag string) (int, error) {
	return s.TagRemoveWhere(tag, nil)
}

// TagAddWhere adds tag to every record matching match (all records when
// match is nil) and returns how many changed.
func (s *Store) TagAddWhere(tag string, match func(Record) bool) (int, error) {
	tag, err := checkTag(tag)
	if err != nil {
		return 0, err
	}
	return s.eachMatching(match, func(rec *Record) bool { return addTag(rec, tag) }), nil
}

// TagRemoveWhere removes tag from every record matching match (all records
// when match is nil) and returns how many changed.
func (s *Store) TagRemoveWhere(tag string, match func(Record) bool) (int, error) {
	tag, err := checkTag(tag)
	if err != nil {
		return 0, err
	}
	return s.eachMatching(match, func(rec *Record) bool { return removeTag(rec, tag) }), nil
}

// TagReplaceAll swaps old for new on every record carrying old.
func (s *Store) TagReplaceAll(old, new string) (int, error) {
	old, err := checkTag(old)
	if err != nil {
		return 0, err
	}
	if new, err = checkTag(new); err != nil {
		return 0, err
	}
	return s.eachMatching(nil, func(rec *Record) bool { return replaceTag(rec, old, new) }), nil
}

// Tagged returns the ids carrying tag in iteration order.
func (s *Store) Tagged(tag string) []string {
	tag = NormalizeTag(tag)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for _, id := range s.order {
		if slices.Contains(s.records[id].Tags, tag) {
			ids = append(ids, id)
		}
	}
	return ids
}

// TagCounts returns how many records carry each tag.
func (s *Store) TagCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, rec := range s.records {
		for _, tag := range rec.Tags {
			counts[tag]++
		}
	}
	return counts
}

func (s *Store) eachMatching(match func(Record) bool, apply func(*Record) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for _, id := range s.order {
		rec := s.records[id]
		if match != nil && !match(rec.clone()) {
			continue
		}
		if apply(rec) {
			changed++
		}
	}
	return changed
}

func checkTag(tag string) (string, error) {
	tag = NormalizeTag(tag)
	if !validTag(tag) {
		return "", fmt.Errorf("%w %q", ErrInvalidTag, tag)
	}
	return tag, nil
}

func addTag(rec *Record, tag string) bool {
	if slices.Contains(rec.Tags, tag) {
		return false
	}
	rec.Tags = append(rec.Tags, tag)
	return true
}

func removeTag(rec *Record, tag string) bool {
	i := slices.Index(rec.Tags, tag)
	if i < 0 {
		return false
	}
	rec.Tags = slices.Delete(rec.Tags, i, i+1)
	return true
}

func replaceTag(rec *Record, old, new string) bool {
	if !removeTag(rec, old) {
		return false
	}
	addTag(rec, new)
	return true
}
