package recordstore

import (
	"errors"

	"recordsync/internal/logging"
)

// DeleteTagged deletes every record carrying tag and persists the catalog,
// returning the ids removed. A trial run only reports the ids. A failure on
// one record stops the loop, but the catalog is still persisted so the
// deletions already made are kept.
func (s *Store) DeleteTagged(tag string, archive, trialRun bool) ([]string, error) {
	tag, err := checkTag(tag)
	if err != nil {
		return nil, err
	}
	ids := s.Tagged(tag)
	if trialRun {
		return ids, nil
	}
	if !s.Locked() {
		return nil, ErrNotLocked
	}

	var deleted []string
	var loopErr error
	for _, id := range ids {
		if err := s.Delete(id, archive); err != nil {
			logging.ErrorWithContext(s.logger, "tagged delete failed", "store_delete_failed",
				logging.EntityID(id),
				logging.String("tag", tag),
				logging.Error(err))
			loopErr = err
			break
		}
		deleted = append(deleted, id)
	}
	if err := s.Persist(); err != nil {
		return deleted, errors.Join(loopErr, err)
	}
	return deleted, loopErr
}
