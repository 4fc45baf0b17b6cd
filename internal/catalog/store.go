package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// ErrNotExist is returned by FileStore.Load when the keyword file is absent.
var ErrNotExist = errors.New("catalog: keyword file does not exist")

// FileStore persists the catalog as a single JSON object. The file is
// rewritten in full on every save through a temp file and rename, so a
// crash mid-write never leaves a truncated catalog behind.
type FileStore struct {
	path string
}

// NewFileStore returns a store for the JSON file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the keyword file. It returns ErrNotExist when the file is
// missing.
func (s *FileStore) Load() (Categories, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", s.path, err)
	}

	var cs Categories
	if err := json.Unmarshal(data, &cs); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", s.path, err)
	}
	return cs, nil
}

// Save writes categories with two-space indentation.
func (s *FileStore) Save(categories Categories) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".keywords-*.json")
	if err != nil {
		return fmt.Errorf("catalog: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	enc := json.NewEncoder(tmp)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(categories); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog: encode: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("catalog: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("catalog: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("catalog: replace %s: %w", s.path, err)
	}
	return nil
}

// LoadOrDefault loads the catalog from store, falling back to Default when
// the file is missing or unreadable. The fallback is not written back.
func LoadOrDefault(store *FileStore, logger *logrus.Logger) Categories {
	log := logger.WithField("component", "catalog")

	cs, err := store.Load()
	switch {
	case errors.Is(err, ErrNotExist):
		log.WithField("path", store.Path()).Info("keyword file not found, using built-in defaults")
		return Default()
	case err != nil:
		log.WithError(err).Error("failed to load keyword file, using built-in defaults")
		return Default()
	}
	return cs
}
