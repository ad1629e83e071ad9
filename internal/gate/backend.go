package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"recordsync/internal/fileutil"
)

// Backend persists gate values by key.
type Backend interface {
	Load(key string) (value bool, found bool, err error)
	Store(key string, value bool) error
}

// MemoryBackend keeps gate values in process memory.
type MemoryBackend struct {
	mu     sync.Mutex
	values map[string]bool
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{values: make(map[string]bool)}
}

// Load returns the stored value for key.
func (m *MemoryBackend) Load(key string) (bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Store sets key to value.
func (m *MemoryBackend) Store(key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// FileBackend stores gate values in a JSON object file. Keys holding
// non-boolean values are preserved on rewrite but cannot be loaded.
type FileBackend struct {
	path string
	mu   sync.Mutex
}

// NewFileBackend returns a backend for the JSON file at path. The file is
// created lazily on first access.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the gate file location.
func (f *FileBackend) Path() string { return f.path }

// Load reads the file and returns the value for key.
func (f *FileBackend) Load(key string) (bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return false, false, err
	}
	raw, ok := doc[key]
	if !ok {
		return false, false, nil
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, true, fmt.Errorf("gate file %s: key %q is not a boolean: %w", f.path, key, err)
	}
	return v, true, nil
}

// Store rewrites the file with key set to value.
func (f *FileBackend) Store(key string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, err := f.read()
	if err != nil {
		return err
	}
	raw, _ := json.Marshal(value)
	doc[key] = raw
	return f.write(doc)
}

func (f *FileBackend) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		doc := map[string]json.RawMessage{}
		if err := f.write(doc); err != nil {
			return nil, err
		}
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read gate file: %w", err)
	}
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode gate file %s: %w", f.path, err)
	}
	// A literal null decodes to a nil map; treat it as an empty object.
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc, nil
}

func (f *FileBackend) write(doc map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create gate directory: %w", err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode gate file: %w", err)
	}
	if err := fileutil.WriteFileAtomic(f.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write gate file: %w", err)
	}
	return nil
}
