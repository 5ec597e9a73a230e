package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatvault/internal/models"
)

func sampleCatalog() *Catalog {
	c := NewCatalog()
	c.SetSettings(Settings{ConversationFolder: "AI Conversations", DatePrefix: "none", TimeZone: "UTC"})
	c.Put("c2", models.CatalogEntry{Path: "AI Conversations/2023/11/Zeta.md", UpdateTime: 20, Provider: models.ProviderClaude})
	c.Put("c1", models.CatalogEntry{Path: "AI Conversations/2023/11/Trip.md", UpdateTime: 10, Provider: models.ProviderChatGPT})
	c.RecordArchive("abc", models.ImportedArchive{FileName: "export.zip", ImportedAt: 1700000000})
	return c
}

func TestCatalog_Operations(t *testing.T) {
	c := NewCatalog()
	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("c1", models.CatalogEntry{ConversationID: "ignored", Path: "a.md", UpdateTime: 1})
	got, ok := c.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "c1", got.ConversationID, "Put keys entries by id")

	c.Put("c1", models.CatalogEntry{Path: "a.md", UpdateTime: 2})
	assert.Equal(t, 1, c.Len(), "at most one entry per id")

	c.Remove("nope")
	assert.Equal(t, 1, c.Len())
	assert.ErrorIs(t, c.Forget("nope"), ErrNotFound)
	assert.NoError(t, c.Forget("c1"))
	assert.Zero(t, c.Len())
}

func TestCatalog_EntriesSortedByPath(t *testing.T) {
	entries := sampleCatalog().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "c1", entries[0].ConversationID)
	assert.Equal(t, "c2", entries[1].ConversationID)
}

func TestCatalog_Archives(t *testing.T) {
	c := sampleCatalog()
	rec, ok := c.Archive("abc")
	require.True(t, ok)
	assert.Equal(t, "export.zip", rec.FileName)

	copied := c.Archives()
	delete(copied, "abc")
	_, ok = c.Archive("abc")
	assert.True(t, ok, "Archives returns a copy")
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Len())

	want := sampleCatalog()
	require.NoError(t, s.Persist(ctx, want))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Entries(), got.Entries())
	assert.Equal(t, want.Archives(), got.Archives())
	assert.Equal(t, want.Settings(), got.Settings())

	got.Remove("c2")
	require.NoError(t, s.Persist(ctx, got))
	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Len())
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "state.json")
	s := NewFileStore(path)
	exerciseStore(t, s)

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"conversationCatalog"`)
	assert.Contains(t, string(raw), `"importedArchives"`)
	assert.Contains(t, string(raw), `"settings"`)
}

func TestFileStore_CorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(DriverJSON, filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)

	s, err = Open(DriverSQLite, filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("redis", "x")
	assert.Error(t, err)
}
