package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"chatvault/internal/models"
)

// OpenSQLite opens (or creates) a SQLite database at path with WAL journaling.
func OpenSQLite(path string) (*sql.DB, error) {
	// parent directory must exist or sqlite reports SQLITE_CANTOPEN
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the state tables if they do not exist.
func EnsureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS Settings (
            Key TEXT PRIMARY KEY,
            Value TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS ImportedArchives (
            Digest TEXT PRIMARY KEY,
            FileName TEXT NOT NULL,
            ImportedAt INTEGER NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS ConversationCatalog (
            ConversationId TEXT PRIMARY KEY,
            Path TEXT NOT NULL,
            UpdateTime INTEGER NOT NULL,
            Provider TEXT NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS ConversationCatalog_Path_Idx ON ConversationCatalog(Path);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SQLiteStore keeps the same logical content as FileStore in three tables.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite state")
	}
	return NewSQLiteStoreWithDB(db)
}

// NewSQLiteStoreWithDB wires an existing connection.
func NewSQLiteStoreWithDB(db *sql.DB) (*SQLiteStore, error) {
	if err := EnsureSchema(db); err != nil {
		return nil, errors.Wrap(err, "ensure schema")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Load(ctx context.Context) (*Catalog, error) {
	c := NewCatalog()

	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, err
	}
	c.settings = settings

	rows, err := s.db.QueryContext(ctx, `SELECT ConversationId, Path, UpdateTime, Provider FROM ConversationCatalog`)
	if err != nil {
		return nil, errors.Wrap(err, "query catalog")
	}
	defer rows.Close()
	for rows.Next() {
		var e models.CatalogEntry
		var provider string
		if err := rows.Scan(&e.ConversationID, &e.Path, &e.UpdateTime, &provider); err != nil {
			return nil, errors.Wrap(err, "scan catalog")
		}
		e.Provider = models.Provider(provider)
		c.Put(e.ConversationID, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate catalog")
	}

	archiveRows, err := s.db.QueryContext(ctx, `SELECT Digest, FileName, ImportedAt FROM ImportedArchives`)
	if err != nil {
		return nil, errors.Wrap(err, "query archives")
	}
	defer archiveRows.Close()
	for archiveRows.Next() {
		var digest string
		var rec models.ImportedArchive
		if err := archiveRows.Scan(&digest, &rec.FileName, &rec.ImportedAt); err != nil {
			return nil, errors.Wrap(err, "scan archives")
		}
		c.RecordArchive(digest, rec)
	}
	return c, errors.Wrap(archiveRows.Err(), "iterate archives")
}

func (s *SQLiteStore) loadSettings(ctx context.Context) (Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT Key, Value FROM Settings`)
	if err != nil {
		return Settings{}, errors.Wrap(err, "query settings")
	}
	defer rows.Close()

	var out Settings
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Settings{}, errors.Wrap(err, "scan settings")
		}
		switch key {
		case "conversationFolder":
			out.ConversationFolder = value
		case "datePrefix":
			out.DatePrefix = value
		case "timeZone":
			out.TimeZone = value
		}
	}
	return out, errors.Wrap(rows.Err(), "iterate settings")
}

// Persist replaces the stored state with c in one transaction.
func (s *SQLiteStore) Persist(ctx context.Context, c *Catalog) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{`DELETE FROM Settings`, `DELETE FROM ImportedArchives`, `DELETE FROM ConversationCatalog`} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "clear state")
		}
	}

	settings := map[string]string{
		"conversationFolder": c.settings.ConversationFolder,
		"datePrefix":         c.settings.DatePrefix,
		"timeZone":           c.settings.TimeZone,
	}
	for k, v := range settings {
		if _, err = tx.ExecContext(ctx, `INSERT INTO Settings (Key, Value) VALUES (?,?)`, k, v); err != nil {
			return errors.Wrap(err, "insert setting")
		}
	}
	for digest, rec := range c.archives {
		if _, err = tx.ExecContext(ctx, `INSERT INTO ImportedArchives (Digest, FileName, ImportedAt) VALUES (?,?,?)`,
			digest, rec.FileName, rec.ImportedAt); err != nil {
			return errors.Wrap(err, "insert archive")
		}
	}
	for id, e := range c.entries {
		if _, err = tx.ExecContext(ctx, `INSERT INTO ConversationCatalog (ConversationId, Path, UpdateTime, Provider) VALUES (?,?,?,?)`,
			id, e.Path, e.UpdateTime, string(e.Provider)); err != nil {
			return errors.Wrap(err, "insert catalog entry")
		}
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
