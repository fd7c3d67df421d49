// Package postgres implements the entity store and the report sink on
// PostgreSQL using pgx connection pools.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL holds the content graph. A row in cms_entity_field declares that
// an entity carries a field, so empty fields survive a round trip.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS cms_entity (
    id        BIGINT PRIMARY KEY,
    kind      TEXT NOT NULL,
    type      TEXT NOT NULL,
    title     TEXT NOT NULL DEFAULT '',
    published BOOLEAN NOT NULL DEFAULT TRUE,
    parent    BIGINT NOT NULL DEFAULT 0,
    weight    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_cms_entity_kind_type ON cms_entity (kind, type);

CREATE TABLE IF NOT EXISTS cms_entity_field (
    entity_id BIGINT NOT NULL REFERENCES cms_entity (id) ON DELETE CASCADE,
    name      TEXT NOT NULL,
    PRIMARY KEY (entity_id, name)
);

CREATE TABLE IF NOT EXISTS cms_field (
    entity_id BIGINT NOT NULL,
    name      TEXT NOT NULL,
    delta     INTEGER NOT NULL,
    value     TEXT,
    target_id BIGINT,
    PRIMARY KEY (entity_id, name, delta),
    FOREIGN KEY (entity_id, name) REFERENCES cms_entity_field (entity_id, name) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_cms_field_target ON cms_field (target_id);
`

// Migrate creates the content graph tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply entity schema: %w", err)
	}
	return nil
}
