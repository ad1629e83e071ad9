package recordstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"recordsync/internal/fileutil"
	"recordsync/internal/logging"
)

// Report is the result of SelfCheck.
type Report struct {
	Records  int
	Payloads int
	// MissingPayloads lists catalog ids with no payload file.
	MissingPayloads []string
	// OrphanPayloads lists payload files (without extension) that have no
	// catalog row.
	OrphanPayloads []string
}

// OK reports whether catalog and payload files agree.
func (r Report) OK() bool {
	return r.Records == r.Payloads && len(r.MissingPayloads) == 0 && len(r.OrphanPayloads) == 0
}

func (r Report) String() string {
	if r.OK() {
		return fmt.Sprintf("%d records, %d payload files", r.Records, r.Payloads)
	}
	return fmt.Sprintf("%d records, %d payload files, missing payloads %v, orphan payloads %v",
		r.Records, r.Payloads, r.MissingPayloads, r.OrphanPayloads)
}

// SelfCheck compares the catalog with the payload directory. Dotfiles and
// in-flight temp files are ignored. It reports divergence and never repairs
// it; the error return is for failures to read the directory.
func (s *Store) SelfCheck() (Report, error) {
	entries, err := os.ReadDir(s.payloadDir())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Report{}, fmt.Errorf("read payload directory: %w", err)
	}
	onDisk := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || fileutil.IsTempFile(name) {
			continue
		}
		onDisk[strings.TrimSuffix(name, payloadExt)] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	report := Report{Records: len(s.records), Payloads: len(onDisk)}
	referenced := make(map[string]struct{}, len(s.records))
	for id, rec := range s.records {
		name := strings.TrimSuffix(rec.PayloadRef, payloadExt)
		referenced[name] = struct{}{}
		if _, ok := onDisk[name]; !ok {
			report.MissingPayloads = append(report.MissingPayloads, id)
		}
	}
	for name := range onDisk {
		if _, ok := referenced[name]; !ok {
			report.OrphanPayloads = append(report.OrphanPayloads, name)
		}
	}
	slices.Sort(report.MissingPayloads)
	slices.Sort(report.OrphanPayloads)
	return report, nil
}

func (s *Store) logReport(report Report) {
	logging.ErrorWithContext(s.logger, "record store catalog and payload files disagree", "store_inconsistent",
		logging.String("dir", s.dir),
		logging.Int("records", report.Records),
		logging.Int("payload_files", report.Payloads),
		logging.Strings("missing_payloads", report.MissingPayloads),
		logging.Strings("orphan_payloads", report.OrphanPayloads),
		logging.String(logging.FieldErrorHint, "a previous save may have been interrupted; inspect the listed ids before the next run"),
		logging.String(logging.FieldImpact, "records listed here may be reprocessed or skipped"),
		logging.Alert("store_consistency"))
}
