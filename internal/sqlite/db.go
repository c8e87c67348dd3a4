package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rpggio/farmsync/internal/repository"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
}

// New creates a new SQLite database connection
func New(dataSourceName string) (*DB, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; this also keeps a ":memory:" database on a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return &DB{db}, nil
}

// RunMigrations creates one table per partition in the schema.
// Every statement is idempotent, so it runs on each open.
func (db *DB) RunMigrations(schema repository.Schema) error {
	var b strings.Builder
	b.WriteString(`
CREATE TABLE IF NOT EXISTS sequences (
    partition TEXT PRIMARY KEY,
    value INTEGER NOT NULL
);
`)
	for _, p := range schema {
		table := tableName(p.Name)
		if p.AutoIncrement {
			fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    id INTEGER PRIMARY KEY,
    body TEXT NOT NULL
);
`, table)
			continue
		}
		fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    owner_id TEXT,
    body TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS %s ON %s(owner_id);
`, table, quoteIdentifier("idx_"+p.Name+"_owner"), table)
	}

	if _, err := db.Exec(b.String()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func tableName(partition string) string {
	return quoteIdentifier("p_" + partition)
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
