// Package sqlite provides SQLite-backed implementations of the URL registry
// and the chunk vector index.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/fwojciec/ragkb"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SchemaVersion is stored in PRAGMA user_version once the schema exists.
// A database written by a newer build is refused rather than guessed at.
const SchemaVersion = 1

// DB is the knowledge base file: the URL registry and the chunk index share
// one SQLite database and one connection.
type DB struct {
	db   *sql.DB
	path string
}

// NewDB returns a DB for path. ":memory:" keeps everything in process.
func NewDB(path string) *DB {
	return &DB{path: path}
}

// pragmas are applied on open; journal_mode is skipped in memory.
var pragmas = []struct{ name, value string }{
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
	{"synchronous", "NORMAL"},
	{"journal_mode", "WAL"},
}

// Open connects and brings the schema up to SchemaVersion.
func (db *DB) Open() error {
	conn, err := sql.Open("sqlite3", db.path)
	if err != nil {
		return fmt.Errorf("open %s: %w", db.path, err)
	}

	// One connection serializes writers and keeps :memory: alive.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("open %s: %w", db.path, err)
	}
	for _, p := range pragmas {
		if p.name == "journal_mode" && db.path == ":memory:" {
			continue
		}
		if _, err := conn.Exec("PRAGMA " + p.name + " = " + p.value); err != nil {
			conn.Close()
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}

	db.db = conn
	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// Version returns the schema version recorded in the file.
func (db *DB) Version(ctx context.Context) (int, error) {
	var v int
	err := db.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
	return v, err
}

// QueryRowContext executes a query that returns a single row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

// ExecContext executes a statement that doesn't return rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction. With a single connection, callers must not
// use the DB directly until the transaction ends.
func (db *DB) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return db.db.BeginTx(ctx, nil)
}

const registrySchema = `
	CREATE TABLE IF NOT EXISTS discovered_urls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		url_hash TEXT NOT NULL UNIQUE,
		source_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		discovered_from TEXT NOT NULL DEFAULT '',
		refresh_frequency TEXT NOT NULL DEFAULT 'weekly',
		retry_count INTEGER NOT NULL DEFAULT 0,
		error_message TEXT,
		priority INTEGER NOT NULL DEFAULT 0,
		discovered_at TEXT NOT NULL,
		last_crawled_at TEXT,
		next_refresh_at TEXT,
		http_etag TEXT NOT NULL DEFAULT '',
		http_last_modified TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_discovered_urls_status ON discovered_urls(status);
	CREATE INDEX IF NOT EXISTS idx_discovered_urls_priority ON discovered_urls(priority DESC, discovered_at ASC);
	CREATE INDEX IF NOT EXISTS idx_discovered_urls_next_refresh ON discovered_urls(next_refresh_at);
`

const indexSchema = `
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		total_chunks INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		token_count INTEGER NOT NULL DEFAULT 0,
		source_url TEXT NOT NULL,
		source_type TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		commit_hash TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'en',
		has_code_example INTEGER NOT NULL DEFAULT 0,
		difficulty TEXT NOT NULL DEFAULT '',
		processed_at TEXT NOT NULL,
		published_at TEXT,
		source_fields TEXT NOT NULL DEFAULT '{}',
		enrichment TEXT NOT NULL DEFAULT '{}',
		extra TEXT NOT NULL DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id, chunk_index);
	CREATE INDEX IF NOT EXISTS idx_chunks_source_url ON chunks(source_url);
	CREATE INDEX IF NOT EXISTS idx_chunks_source_type ON chunks(source_type);

	CREATE TABLE IF NOT EXISTS index_meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO index_meta (key, value) VALUES ('version', 0);
`

func (db *DB) migrate(ctx context.Context) error {
	v, err := db.Version(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v > SchemaVersion {
		return ragkb.Errorf(ragkb.ECONFLICT, "database %s has schema version %d, newer than supported %d", db.path, v, SchemaVersion)
	}
	if _, err := db.db.ExecContext(ctx, registrySchema); err != nil {
		return fmt.Errorf("create registry schema: %w", err)
	}
	if err := db.createIndexSchema(ctx); err != nil {
		return fmt.Errorf("create index schema: %w", err)
	}
	if v < SchemaVersion {
		if _, err := db.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return nil
}

// createIndexSchema creates the chunk tables. It is also used to recover
// when the chunk collection has been dropped underneath a running process.
func (db *DB) createIndexSchema(ctx context.Context) error {
	_, err := db.db.ExecContext(ctx, indexSchema)
	return err
}

// isMissingTable reports whether err comes from querying a dropped table.
func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
