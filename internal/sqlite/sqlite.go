// Package sqlite implements the entity store and the report sink on a single
// SQLite file through the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cms_entity (
    id        INTEGER PRIMARY KEY,
    kind      TEXT NOT NULL,
    type      TEXT NOT NULL,
    title     TEXT NOT NULL DEFAULT '',
    published INTEGER NOT NULL DEFAULT 1,
    parent    INTEGER NOT NULL DEFAULT 0,
    weight    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cms_entity_kind_type ON cms_entity (kind, type);

CREATE TABLE IF NOT EXISTS cms_entity_field (
    entity_id INTEGER NOT NULL REFERENCES cms_entity (id) ON DELETE CASCADE,
    name      TEXT NOT NULL,
    PRIMARY KEY (entity_id, name)
);

CREATE TABLE IF NOT EXISTS cms_field (
    entity_id INTEGER NOT NULL,
    name      TEXT NOT NULL,
    delta     INTEGER NOT NULL,
    value     TEXT,
    target_id INTEGER,
    PRIMARY KEY (entity_id, name, delta),
    FOREIGN KEY (entity_id, name) REFERENCES cms_entity_field (entity_id, name) ON DELETE CASCADE
);
`

// Open opens (creating if needed) the database at path and applies the
// content graph schema. Foreign keys are enforced and writers wait on a
// busy database instead of failing immediately.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		path = "simplestruct.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; SQLite serialises them anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply entity schema: %w", err)
	}
	return db, nil
}
