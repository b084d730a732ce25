// Package store persists the verse corpus in SQLite. It mirrors the
// in-memory corpus: the corpus snapshot is rebuilt from this store at
// startup, and every write goes through the store first so the corpus
// survives process restart.
//
// Exact full-text search is delegated to an FTS5 contentless-sync table
// kept in step with the verses table by triggers; the fuzzy pipeline in
// core/search never touches SQL.
package store

import (
	"context"
	"database/sql"

	"github.com/FocuswithJustin/PaathGuide/core/errors"
	"github.com/FocuswithJustin/PaathGuide/core/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS verses (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	gurmukhi_text   TEXT NOT NULL,
	page_number     INTEGER NOT NULL,
	line_number     INTEGER NOT NULL,
	transliteration TEXT NOT NULL DEFAULT '',
	translation     TEXT NOT NULL DEFAULT '',
	raag            TEXT NOT NULL DEFAULT '',
	author          TEXT NOT NULL DEFAULT '',
	content_hash    TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	UNIQUE(page_number, line_number)
);

CREATE INDEX IF NOT EXISTS idx_verses_page ON verses(page_number);
CREATE INDEX IF NOT EXISTS idx_verses_raag ON verses(raag);
CREATE INDEX IF NOT EXISTS idx_verses_author ON verses(author);
CREATE INDEX IF NOT EXISTS idx_verses_hash ON verses(content_hash);

CREATE VIRTUAL TABLE IF NOT EXISTS verses_fts USING fts5(
	gurmukhi_text,
	transliteration,
	translation,
	content='verses',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS verses_fts_insert AFTER INSERT ON verses
BEGIN
	INSERT INTO verses_fts(rowid, gurmukhi_text, transliteration, translation)
	VALUES (new.id, new.gurmukhi_text, new.transliteration, new.translation);
END;

CREATE TRIGGER IF NOT EXISTS verses_fts_delete AFTER DELETE ON verses
BEGIN
	INSERT INTO verses_fts(verses_fts, rowid, gurmukhi_text, transliteration, translation)
	VALUES ('delete', old.id, old.gurmukhi_text, old.transliteration, old.translation);
END;

CREATE TRIGGER IF NOT EXISTS verses_fts_update AFTER UPDATE ON verses
BEGIN
	INSERT INTO verses_fts(verses_fts, rowid, gurmukhi_text, transliteration, translation)
	VALUES ('delete', old.id, old.gurmukhi_text, old.transliteration, old.translation);
	INSERT INTO verses_fts(rowid, gurmukhi_text, transliteration, translation)
	VALUES (new.id, new.gurmukhi_text, new.transliteration, new.translation);
END;
`

// Store wraps the SQLite database holding the corpus.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the verse database at path and
// ensures the schema exists. Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	// SQLite allows one writer; serialize access through a single
	// connection so bulk loads cannot race schema statements.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Repository returns the CRUD and search surface over this store.
func (s *Store) Repository() *Repository {
	return &Repository{db: s.db}
}
