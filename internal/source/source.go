package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"recordsync/internal/config"
	"recordsync/internal/logging"
	"recordsync/internal/reconcile"
	"recordsync/internal/services"
	"recordsync/internal/value"
)

// Formats accepted by FileSource.
const (
	FormatAuto = "auto"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

const dirPattern = "**/*.{json,yaml,yml}"

// Source produces snapshots.
type Source interface {
	Fetch(ctx context.Context) (reconcile.Snapshot, error)
}

// FileSource reads snapshot documents from disk.
type FileSource struct {
	// Path is a file, a directory (searched recursively), or a glob.
	Path   string
	Format string
	// MaxEntities truncates the snapshot when positive. A truncated snapshot
	// is never complete.
	MaxEntities int

	logger *slog.Logger
	now    func() time.Time
}

// NewFileSource returns a source for path.
func NewFileSource(path, format string, maxEntities int, logger *slog.Logger) *FileSource {
	if format == "" {
		format = FormatAuto
	}
	return &FileSource{
		Path:        path,
		Format:      format,
		MaxEntities: maxEntities,
		logger:      logging.NewComponentLogger(logger, "source"),
		now:         time.Now,
	}
}

// FromJob builds the source configured for job.
func FromJob(job config.Job, logger *slog.Logger) *FileSource {
	return NewFileSource(job.Source, job.Format, job.MaxEntities, logger)
}

// Fetch reads every matching document and merges them into one snapshot.
// Duplicate ids keep their first occurrence and make the snapshot
// incomplete.
func (s *FileSource) Fetch(ctx context.Context) (reconcile.Snapshot, error) {
	files, err := s.Files()
	if err != nil {
		return reconcile.Snapshot{}, services.Wrap(services.ErrTransient, "fetch", "list snapshot files", s.Path, err)
	}
	if len(files) == 0 {
		return reconcile.Snapshot{}, services.Wrap(services.ErrTransient, "fetch", "list snapshot files",
			fmt.Sprintf("no snapshot documents under %s", s.Path), nil)
	}

	snap := reconcile.Snapshot{Complete: true, FetchedAt: s.now()}
	seen := make(map[string]string)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return reconcile.Snapshot{}, err
		}
		doc, err := s.readDocument(file)
		if err != nil {
			return reconcile.Snapshot{}, err
		}
		if !doc.Complete {
			snap.Complete = false
		}
		for _, ent := range doc.Entities {
			if first, dup := seen[ent.ID]; dup {
				logging.WarnWithContext(s.logger, "duplicate entity id in snapshot", "snapshot_duplicate_id",
					logging.EntityID(ent.ID),
					logging.String("first_file", first),
					logging.String("duplicate_file", file),
					logging.String(logging.FieldImpact, "snapshot treated as incomplete; no deletions this run"),
					logging.String(logging.FieldErrorHint, "remove the duplicate from the source export"))
				snap.Complete = false
				continue
			}
			seen[ent.ID] = file
			snap.Entities = append(snap.Entities, ent)
		}
	}

	if s.MaxEntities > 0 && len(snap.Entities) > s.MaxEntities {
		s.logger.Info("snapshot truncated",
			logging.String(logging.FieldEventType, "snapshot_truncated"),
			logging.Int("entities", len(snap.Entities)),
			logging.Int("max_entities", s.MaxEntities))
		snap.Entities = snap.Entities[:s.MaxEntities]
		snap.Complete = false
	}
	s.logger.Debug("snapshot fetched",
		logging.Int("files", len(files)),
		logging.Int("entities", len(snap.Entities)),
		logging.Bool("complete", snap.Complete))
	return snap, nil
}

// Files lists the snapshot files the source would read, in read order.
func (s *FileSource) Files() ([]string, error) {
	if hasMeta(s.Path) {
		if !doublestar.ValidatePattern(filepath.ToSlash(s.Path)) {
			return nil, fmt.Errorf("invalid glob %q", s.Path)
		}
		matches, err := doublestar.FilepathGlob(s.Path, doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}
		slices.Sort(matches)
		return matches, nil
	}
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{s.Path}, nil
	}
	rel, err := doublestar.Glob(os.DirFS(s.Path), dirPattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(rel))
	for _, r := range rel {
		if strings.HasPrefix(filepath.Base(r), ".") {
			continue
		}
		files = append(files, filepath.Join(s.Path, filepath.FromSlash(r)))
	}
	slices.Sort(files)
	return files, nil
}

func hasMeta(path string) bool {
	return strings.ContainsAny(path, "*?[{")
}

type document struct {
	Complete bool
	Entities []reconcile.Entity
}

func (s *FileSource) readDocument(path string) (document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return document{}, services.Wrap(services.ErrTransient, "fetch", "read snapshot", path, err)
	}
	format, err := resolveFormat(s.Format, path)
	if err != nil {
		return document{}, services.Wrap(services.ErrConfiguration, "fetch", "read snapshot", path, err)
	}
	var root value.Value
	if format == FormatYAML {
		root, err = value.ParseYAML(data)
	} else {
		root, err = value.Parse(data)
	}
	if err != nil {
		return document{}, services.Wrap(services.ErrTransient, "fetch", "decode snapshot", path, err)
	}
	doc, err := decodeDocument(root)
	if err != nil {
		return document{}, services.Wrap(services.ErrTransient, "fetch", "decode snapshot", path, err)
	}
	return doc, nil
}

func resolveFormat(format, path string) (string, error) {
	switch format {
	case FormatJSON, FormatYAML:
		return format, nil
	case FormatAuto, "":
	default:
		return "", fmt.Errorf("unknown format %q", format)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("cannot infer format from %q; set format", filepath.Base(path))
}

func decodeDocument(root value.Value) (document, error) {
	var doc document
	var list value.Value
	switch root.Kind() {
	case value.Sequence:
		list = root
	case value.Mapping:
		if c, ok := root.Get("complete"); ok && !c.IsNull() {
			b, isBool := c.Bool()
			if !isBool {
				return document{}, fmt.Errorf("complete: expected a boolean, found %s", c)
			}
			doc.Complete = b
		}
		var ok bool
		if list, ok = root.Get("entities"); !ok {
			return document{}, errors.New("missing entities list")
		}
		if list.IsNull() {
			return doc, nil
		}
		if list.Kind() != value.Sequence {
			return document{}, fmt.Errorf("entities: expected a list, found %s", list.Kind())
		}
	default:
		return document{}, fmt.Errorf("expected a mapping or a list, found %s", root.Kind())
	}
	for i, item := range list.Items() {
		ent, err := decodeEntity(item)
		if err != nil {
			return document{}, fmt.Errorf("entities[%d]: %w", i, err)
		}
		doc.Entities = append(doc.Entities, ent)
	}
	return doc, nil
}

func decodeEntity(item value.Value) (reconcile.Entity, error) {
	if item.Kind() != value.Mapping {
		return reconcile.Entity{}, fmt.Errorf("expected a mapping, found %s", item.Kind())
	}
	var ent reconcile.Entity
	id, ok := item.Get("id")
	if !ok {
		return reconcile.Entity{}, errors.New("missing id")
	}
	if s, isStr := id.Str(); isStr {
		ent.ID = s
	} else if n, isInt := id.Int(); isInt {
		ent.ID = fmt.Sprint(n)
	} else {
		return reconcile.Entity{}, fmt.Errorf("id: expected a string or integer, found %s", id)
	}
	if c, ok := item.Get("created_at"); ok && !c.IsNull() {
		n, isInt := c.Int()
		if !isInt {
			return reconcile.Entity{}, fmt.Errorf("%s: created_at: expected an integer, found %s", ent.ID, c)
		}
		ent.CreatedAt = n
	}
	ent.Payload, _ = item.Get("payload")
	return ent, nil
}
