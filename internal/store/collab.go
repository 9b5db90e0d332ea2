package store

import "context"

// SeedCollaboratorSchema creates the four collaborator-owned tables. The RAG
// collaborator normally creates these lazily on its first write; this helper
// mirrors its DDL for local development and tests.
func (s *SQLiteStore) SeedCollaboratorSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS entities (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		entity_type TEXT,
		observations TEXT,
		created_at TEXT
	);
	CREATE TABLE IF NOT EXISTS relations (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		from_id    TEXT NOT NULL,
		to_id      TEXT NOT NULL,
		relation   TEXT NOT NULL,
		created_at TEXT
	);
	CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		title      TEXT,
		content    TEXT,
		created_at TEXT
	);
	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		document_id TEXT REFERENCES documents(id),
		seq         INTEGER,
		text        TEXT,
		embedding   BLOB
	);`)
	return err
}
