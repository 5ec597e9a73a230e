// Package storage keeps the conversation catalog and the imported-archive
// records, and persists them as a JSON document or in SQLite.
package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"chatvault/internal/models"
)

// Store loads a catalog at the start of a batch and persists it at
// checkpoints.
type Store interface {
	Load(ctx context.Context) (*Catalog, error)
	Persist(ctx context.Context, c *Catalog) error
	Close() error
}

// Drivers accepted by Open.
const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Open returns the store for driver at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", DriverJSON:
		return NewFileStore(path), nil
	case DriverSQLite:
		return NewSQLiteStore(path)
	default:
		return nil, errors.Errorf("unsupported state driver %q", driver)
	}
}

// document is the persisted form of a catalog.
type document struct {
	Settings            Settings                          `json:"settings"`
	ImportedArchives    map[string]models.ImportedArchive `json:"importedArchives"`
	ConversationCatalog map[string]models.CatalogEntry    `json:"conversationCatalog"`
}

// FileStore persists the catalog as one JSON document.
type FileStore struct {
	path string
}

// NewFileStore creates a store located at path. The file is created on the
// first Persist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load reads the document; a missing file yields an empty catalog.
func (s *FileStore) Load(_ context.Context) (*Catalog, error) {
	c := NewCatalog()

	file, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "open state")
	}
	defer file.Close()

	var doc document
	if err := json.NewDecoder(file).Decode(&doc); err != nil {
		return nil, errors.Wrapf(err, "decode state %s", s.path)
	}

	c.settings = doc.Settings
	for id, entry := range doc.ConversationCatalog {
		c.Put(id, entry)
	}
	for digest, rec := range doc.ImportedArchives {
		c.RecordArchive(digest, rec)
	}
	return c, nil
}

// Persist writes the whole document through a temporary file and a rename.
func (s *FileStore) Persist(_ context.Context, c *Catalog) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create state folder")
	}

	doc := document{
		Settings:            c.settings,
		ImportedArchives:    c.archives,
		ConversationCatalog: c.entries,
	}

	tmpPath := s.path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "create state")
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(&doc); err != nil {
		file.Close()
		return errors.Wrap(err, "encode state")
	}

	if err := file.Close(); err != nil {
		return errors.Wrap(err, "close state")
	}

	return errors.Wrap(os.Rename(tmpPath, s.path), "replace state")
}

func (s *FileStore) Close() error { return nil }
