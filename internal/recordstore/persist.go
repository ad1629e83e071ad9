package recordstore

import (
	"fmt"

	"recordsync/internal/fileutil"
	"recordsync/internal/logging"
)

// Persist runs SelfCheck, logs any divergence, and atomically rewrites the
// catalog in the current iteration order. Divergence does not block the
// write: the in-memory catalog is the best record of completed work.
func (s *Store) Persist() error {
	report, err := s.SelfCheck()
	if err != nil {
		return err
	}
	if !report.OK() {
		s.logReport(report)
	}

	s.mu.RLock()
	if err := s.requireLock(); err != nil {
		s.mu.RUnlock()
		return err
	}
	records := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		records = append(records, *s.records[id])
	}
	s.mu.RUnlock()

	data, err := encodeCatalog(records)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.catalogPath(), data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	s.logger.Debug("record store persisted",
		logging.Int("records", len(records)),
		logging.String(logging.FieldEventType, "store_persisted"))
	return nil
}
