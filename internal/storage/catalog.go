package storage

import (
	"sort"

	"github.com/pkg/errors"

	"chatvault/internal/models"
)

var ErrNotFound = errors.New("conversation not found")

// Settings are the naming settings the catalog was last written with. Notes
// keep the path they were created at even when these change.
type Settings struct {
	ConversationFolder string `json:"conversationFolder,omitempty"`
	DatePrefix         string `json:"datePrefix,omitempty"`
	TimeZone           string `json:"timeZone,omitempty"`
}

// Catalog maps conversation ids to their notes and archive digests to their
// import records. It has a single owner and takes no locks.
type Catalog struct {
	settings Settings
	entries  map[string]models.CatalogEntry
	archives map[string]models.ImportedArchive
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entries:  make(map[string]models.CatalogEntry),
		archives: make(map[string]models.ImportedArchive),
	}
}

// Get fetches the entry for a conversation id.
func (c *Catalog) Get(id string) (models.CatalogEntry, bool) {
	entry, ok := c.entries[id]
	return entry, ok
}

// Put inserts or replaces the entry for id.
func (c *Catalog) Put(id string, entry models.CatalogEntry) {
	entry.ConversationID = id
	c.entries[id] = entry
}

// Remove deletes the entry for id; a missing id is not an error.
func (c *Catalog) Remove(id string) {
	delete(c.entries, id)
}

// Forget is Remove for callers that need to know whether id was present.
func (c *Catalog) Forget(id string) error {
	if _, ok := c.entries[id]; !ok {
		return ErrNotFound
	}
	delete(c.entries, id)
	return nil
}

// Len returns the number of catalogued conversations.
func (c *Catalog) Len() int {
	return len(c.entries)
}

// Entries returns all entries sorted by path.
func (c *Catalog) Entries() []models.CatalogEntry {
	items := make([]models.CatalogEntry, 0, len(c.entries))
	for _, entry := range c.entries {
		items = append(items, entry)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Path == items[j].Path {
			return items[i].ConversationID < items[j].ConversationID
		}
		return items[i].Path < items[j].Path
	})
	return items
}

// Archive looks up an imported archive by content digest.
func (c *Catalog) Archive(digest string) (models.ImportedArchive, bool) {
	rec, ok := c.archives[digest]
	return rec, ok
}

// RecordArchive remembers that the archive with digest was processed.
func (c *Catalog) RecordArchive(digest string, rec models.ImportedArchive) {
	c.archives[digest] = rec
}

// Archives returns a copy of the imported-archive records.
func (c *Catalog) Archives() map[string]models.ImportedArchive {
	out := make(map[string]models.ImportedArchive, len(c.archives))
	for k, v := range c.archives {
		out[k] = v
	}
	return out
}

func (c *Catalog) Settings() Settings {
	return c.settings
}

func (c *Catalog) SetSettings(s Settings) {
	c.settings = s
}
