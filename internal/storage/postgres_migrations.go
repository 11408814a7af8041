// Package storage contains the PostgreSQL schema migrations for the DID
// registry. Every statement uses IF NOT EXISTS so the set is idempotent and
// safe to run on every service start without an external migration step.
package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// MigratePostgres applies schema migrations to the PostgreSQL database.
//
// Timestamps are stored as RFC3339 TEXT in UTC, which sorts
// lexicographically in chronological order, so the creation-order listing
// can rely on a plain ORDER BY.
func MigratePostgres(ctx context.Context, db *sql.DB) error {
	migrations := []string{
		// One row per registered DID. Rows are never deleted; deactivation
		// is a permanent soft state.
		`CREATE TABLE IF NOT EXISTS dids (
            did         TEXT PRIMARY KEY,        -- Decentralized Identifier
            document    JSONB NOT NULL,          -- DID Document as JSON
            created_at  TEXT NOT NULL,           -- Creation timestamp (RFC3339, UTC)
            updated_at  TEXT NOT NULL,           -- Last update timestamp (RFC3339, UTC)
            deactivated BOOLEAN NOT NULL DEFAULT FALSE
        )`,
		// Listing returns active DIDs in creation order.
		`CREATE INDEX IF NOT EXISTS idx_dids_created_at ON dids (created_at)`,
		// Partial index keeps the active-only listing cheap as deactivated
		// rows accumulate.
		`CREATE INDEX IF NOT EXISTS idx_dids_active ON dids (created_at) WHERE NOT deactivated`,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
