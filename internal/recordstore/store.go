package recordstore

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gofrs/flock"

	"recordsync/internal/fileutil"
	"recordsync/internal/logging"
	"recordsync/internal/value"
)

const (
	catalogFile   = "catalog.tsv"
	payloadDir    = "current_data"
	versionsDir   = "previous_versions"
	lockFile      = ".lock"
	payloadExt    = ".json"
	changesSuffix = "_changes"
	deletedSuffix = "_deleted_"
)

// Store is an open record store. Methods are safe for concurrent use within
// one process; across processes the lock file serializes writers.
type Store struct {
	dir    string
	logger *slog.Logger
	opts   options

	mu      sync.RWMutex
	records map[string]*Record
	order   []string

	flock  *flock.Flock
	locked bool
}

// Open loads the store in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	s := newStore(dir, opts)
	data, err := os.ReadFile(s.catalogPath())
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		if !s.opts.createIfMissing {
			return nil, fmt.Errorf("%w: %s", ErrNotInitialized, dir)
		}
		if err := s.create(); err != nil {
			return nil, err
		}
		s.logger.Info("record store created",
			logging.String("dir", dir),
			logging.String(logging.FieldEventType, "store_created"))
		return s, nil
	}
	if err := s.ensureLayout(); err != nil {
		return nil, err
	}

	records, order, err := decodeRecords(data)
	if err != nil {
		return nil, err
	}
	s.records, s.order = records, order
	if err := s.Sort(s.opts.sortColumn, s.opts.sortAscending); err != nil {
		return nil, err
	}

	report, err := s.SelfCheck()
	if err != nil {
		return nil, err
	}
	if !report.OK() {
		s.logReport(report)
		if s.opts.strict {
			return nil, fmt.Errorf("%w: %s", ErrInconsistent, report)
		}
	}
	s.logger.Debug("record store loaded",
		logging.String("dir", dir),
		logging.Int("records", len(s.order)))
	return s, nil
}

// Initialize creates an empty store in dir. It refuses to run over an
// existing catalog unless WithWipe is given, in which case the catalog and
// every payload file are removed first. The returned store holds the writer
// lock; callers Unlock when done.
func Initialize(dir string, opts ...Option) (*Store, error) {
	s := newStore(dir, opts)
	if err := s.TryLock(); err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = s.Unlock()
		}
	}()
	if _, err := os.Stat(s.catalogPath()); err == nil {
		if !s.opts.wipe {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, dir)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}
	if s.opts.wipe {
		removed, err := s.wipe()
		if err != nil {
			return nil, err
		}
		logging.WarnWithContext(s.logger, "record store wiped", "store_wiped",
			logging.String("dir", dir),
			logging.Int("payloads_removed", removed),
			logging.String(logging.FieldImpact, "every record will be treated as new on the next run"),
			logging.String(logging.FieldErrorHint, "change logs and archives in previous_versions were kept"))
	}
	if err := s.create(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.records, s.order = make(map[string]*Record), nil
	s.mu.Unlock()
	ok = true
	return s, nil
}

// reload replaces the in-memory catalog with the one on disk. It runs when
// the writer lock is newly acquired, so a handle opened before another
// writer committed never persists a stale catalog over that commit.
func (s *Store) reload() error {
	data, err := os.ReadFile(s.catalogPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.mu.Lock()
			s.records, s.order = make(map[string]*Record), nil
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read catalog: %w", err)
	}
	records, order, err := decodeRecords(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records, s.order = records, order
	column, ascending := s.opts.sortColumn, s.opts.sortAscending
	s.mu.Unlock()
	return s.Sort(column, ascending)
}

func decodeRecords(data []byte) (map[string]*Record, []string, error) {
	decoded, err := decodeCatalog(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	records := make(map[string]*Record, len(decoded))
	order := make([]string, 0, len(decoded))
	for _, rec := range decoded {
		if _, dup := records[rec.ID]; dup {
			return nil, nil, fmt.Errorf("catalog: duplicate id %q: %w", rec.ID, ErrInconsistent)
		}
		r := rec
		records[rec.ID] = &r
		order = append(order, rec.ID)
	}
	return records, order, nil
}

func newStore(dir string, opts []Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Store{
		dir:     dir,
		logger:  logging.NewComponentLogger(o.logger, "recordstore"),
		opts:    o,
		records: make(map[string]*Record),
		flock:   flock.New(filepath.Join(dir, lockFile)),
	}
}

func (s *Store) ensureLayout() error {
	for _, d := range []string{s.dir, s.payloadDir(), s.versionsDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create store directory %q: %w", d, err)
		}
	}
	return nil
}

func (s *Store) create() error {
	if err := s.ensureLayout(); err != nil {
		return err
	}
	data, err := encodeCatalog(nil)
	if err != nil {
		return err
	}
	if err := fileutil.WriteFileAtomic(s.catalogPath(), data, 0o644); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

func (s *Store) wipe() (int, error) {
	if err := os.Remove(s.catalogPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("remove catalog: %w", err)
	}
	entries, err := os.ReadDir(s.payloadDir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read payload directory: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.payloadDir(), entry.Name())); err != nil {
			return removed, fmt.Errorf("remove payload %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Dir returns the store root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) catalogPath() string { return filepath.Join(s.dir, catalogFile) }

func (s *Store) payloadDir() string { return filepath.Join(s.dir, payloadDir) }

func (s *Store) versionsDir() string { return filepath.Join(s.dir, versionsDir) }

func (s *Store) payloadPath(ref string) string { return filepath.Join(s.payloadDir(), ref) }

func (s *Store) versionsPath(ref string) string { return filepath.Join(s.versionsDir(), ref) }

// Add inserts a new record and writes its payload file. It fails with
// ErrExists when id is already present; callers check Contains first.
func (s *Store) Add(id string, updatedAt, createdAt int64, payload value.Value, hash string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLock(); err != nil {
		return err
	}
	if _, ok := s.records[id]; ok {
		return fmt.Errorf("add %s: %w", id, ErrExists)
	}
	rec := &Record{
		ID:           id,
		UpdatedAt:    updatedAt,
		CreatedAt:    createdAt,
		PayloadRef:   id + payloadExt,
		ChangelogRef: NoChangelog,
		ContentHash:  hash,
	}
	if err := s.writePayload(rec.PayloadRef, payload); err != nil {
		return fmt.Errorf("add %s: %w", id, err)
	}
	s.records[id] = rec
	s.order = append(s.order, id)
	return nil
}

// Update describes a content update applied by Store.Update.
type Update struct {
	Payload   value.Value
	UpdatedAt int64
	// CreatedAt replaces the stored source creation time when non-zero.
	CreatedAt int64
	// Hash replaces the stored content hash when non-empty.
	Hash string
	// Diff is appended to the record's change log when LogChanges is set.
	Diff       value.Value
	LogChanges bool
}

// Update overwrites the payload of an existing record. It does not detect
// changes; the caller supplies the diff to log.
func (s *Store) Update(id string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLock(); err != nil {
		return err
	}
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("update %s: %w", id, ErrNotFound)
	}
	if u.LogChanges {
		ref := rec.ChangelogRef
		if !rec.HasChangelog() {
			ref = id + changesSuffix + payloadExt
		}
		if err := s.appendChange(ref, u.Diff); err != nil {
			return fmt.Errorf("update %s: %w", id, err)
		}
		rec.ChangelogRef = ref
	}
	if err := s.writePayload(rec.PayloadRef, u.Payload); err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	rec.UpdatedAt = u.UpdatedAt
	if u.CreatedAt != 0 {
		rec.CreatedAt = u.CreatedAt
	}
	if u.Hash != "" {
		rec.ContentHash = u.Hash
	}
	return nil
}

// Delete removes a record. With archive set the payload file is moved to
// previous_versions/<id>_deleted_<n>.json, where n is the first free index;
// otherwise it is removed. A payload file that is already gone is logged and
// the catalog row is still dropped.
func (s *Store) Delete(id string, archive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLock(); err != nil {
		return err
	}
	return s.deleteLocked(id, archive)
}

func (s *Store) deleteLocked(id string, archive bool) error {
	rec, ok := s.records[id]
	if !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	src := s.payloadPath(rec.PayloadRef)
	var err error
	if archive {
		var dst string
		if dst, err = s.nextArchivePath(id); err == nil {
			err = fileutil.MoveFile(src, dst)
		}
	} else {
		err = os.Remove(src)
	}
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		logging.WarnWithContext(s.logger, "payload file already missing during delete", "payload_missing",
			logging.EntityID(id),
			logging.String(logging.FieldImpact, "no archive copy was kept"),
			logging.String(logging.FieldErrorHint, "run recordsync check to look for other divergences"))
	}
	delete(s.records, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return nil
}

func (s *Store) nextArchivePath(id string) (string, error) {
	for n := 0; ; n++ {
		path := s.versionsPath(fmt.Sprintf("%s%s%d%s", id, deletedSuffix, n, payloadExt))
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("stat archive: %w", err)
		}
	}
}

func (s *Store) writePayload(ref string, payload value.Value) error {
	data, err := payload.Indent()
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.payloadPath(ref), data, 0o644); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// Fetch reads the stored payload of id.
func (s *Store) Fetch(id string) (value.Value, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	var ref string
	if ok {
		ref = rec.PayloadRef
	}
	s.mu.RUnlock()
	if !ok {
		return value.Value{}, fmt.Errorf("fetch %s: %w", id, ErrNotFound)
	}
	data, err := os.ReadFile(s.payloadPath(ref))
	if err != nil {
		return value.Value{}, fmt.Errorf("fetch %s: %w", id, err)
	}
	v, err := value.Parse(data)
	if err != nil {
		return value.Value{}, fmt.Errorf("fetch %s: decode payload: %w", id, err)
	}
	return v, nil
}

// FetchHash returns the stored content hash of id.
func (s *Store) FetchHash(id string) (string, error) {
	rec, err := s.lookup(id)
	return rec.ContentHash, err
}

// FetchCreated returns the stored source creation time of id.
func (s *Store) FetchCreated(id string) (int64, error) {
	rec, err := s.lookup(id)
	return rec.CreatedAt, err
}

// FetchUpdated returns the time of the last detected change of id.
func (s *Store) FetchUpdated(id string) (int64, error) {
	rec, err := s.lookup(id)
	return rec.UpdatedAt, err
}

func (s *Store) lookup(id string) (Record, error) {
	rec, ok := s.Record(id)
	if !ok {
		return Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return rec, nil
}

// Record returns a copy of the catalog row for id.
func (s *Store) Record(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Contains reports whether id is in the catalog.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// AllIDs returns every id in iteration order.
func (s *Store) AllIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// IDs yields ids in the order of the last Sort. Each range over the sequence
// starts from a fresh snapshot, so it can be iterated again and tolerates
// mutation of the store while iterating.
func (s *Store) IDs() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, id := range s.AllIDs() {
			if !yield(id) {
				return
			}
		}
	}
}

// Records yields id and catalog row pairs in iteration order. Records
// deleted after the snapshot was taken are skipped.
func (s *Store) Records() iter.Seq2[string, Record] {
	return func(yield func(string, Record) bool) {
		for _, id := range s.AllIDs() {
			rec, ok := s.Record(id)
			if !ok {
				continue
			}
			if !yield(id, rec) {
				return
			}
		}
	}
}
