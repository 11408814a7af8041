// Package storage contains the PostgreSQL implementation of the Registry
// interface. Documents are stored as JSONB keyed by DID; registration
// uniqueness rests on the primary-key constraint rather than application
// logic, so it holds under true concurrency.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/RegistryAccord/registryaccord-did-go/internal/model"
)

// uniqueViolation is the PostgreSQL error code raised when an insert hits
// the dids primary key. Register translates it to ErrAlreadyRegistered.
const uniqueViolation = "23505"

const opTimeout = 10 * time.Second

// Postgres implements Registry backed by PostgreSQL.
type Postgres struct {
	db       *sql.DB
	initOnce sync.Once
	initErr  error
	now      func() string
}

// NewPostgres creates a Registry backed by PostgreSQL with connection
// pooling. Schema setup is deferred to the first operation (see
// ensureSchema); the constructor only verifies connectivity.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return &Postgres{db: db, now: model.Now}, nil
}

// DB returns the underlying *sql.DB connection pool, used by readiness
// checks that ping the database directly.
func (p *Postgres) DB() *sql.DB {
	return p.db
}

// ensureSchema runs the idempotent migrations exactly once per backend
// instance. Every operation awaits it before issuing its query, so
// concurrent first-callers neither duplicate DDL nor race the tables. The
// DDL runs under its own timeout rather than the first caller's context so
// one cancelled request cannot poison schema setup for everyone else.
func (p *Postgres) ensureSchema() error {
	p.initOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		p.initErr = MigratePostgres(ctx, p.db)
	})
	return p.initErr
}

// Register inserts a new record. The primary-key constraint provides the
// atomic existence check; a unique violation maps to ErrAlreadyRegistered.
func (p *Postgres) Register(ctx context.Context, did string, doc model.DIDDocument) error {
	if err := p.ensureSchema(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := p.now()
	stored := doc.Clone()
	stored.ID = did
	stored.Created = now
	stored.Updated = now
	docBytes, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	const q = `INSERT INTO dids (did, document, created_at, updated_at, deactivated) VALUES ($1, $2, $3, $4, FALSE)`
	if _, err := p.db.ExecContext(ctx, q, did, docBytes, now, now); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("register %s: %w", did, ErrAlreadyRegistered)
		}
		return fmt.Errorf("insert did: %w", err)
	}
	return nil
}

// Resolve returns the resolution result for did. sql.ErrNoRows becomes the
// notFound result; only genuine backend failures surface as errors.
func (p *Postgres) Resolve(ctx context.Context, did string) (*model.DIDResolutionResult, error) {
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	const q = `SELECT did, document, created_at, updated_at, deactivated FROM dids WHERE did = $1`
	rec, err := scanRecord(p.db.QueryRowContext(ctx, q, did))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundResult(did), nil
		}
		return nil, fmt.Errorf("query did: %w", err)
	}
	return resolutionFromRecord(rec), nil
}

// Update merges partial over the stored document inside a transaction with
// a row lock, so racing updates serialize instead of losing writes.
func (p *Postgres) Update(ctx context.Context, did string, partial model.DIDDocument) error {
	if err := p.ensureSchema(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	const sel = `SELECT did, document, created_at, updated_at, deactivated FROM dids WHERE did = $1 FOR UPDATE`
	rec, err := scanRecord(tx.QueryRowContext(ctx, sel, did))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("update %s: %w", did, ErrNotFound)
		}
		return fmt.Errorf("query did: %w", err)
	}
	if rec.Deactivated {
		return fmt.Errorf("update %s: %w", did, ErrDeactivated)
	}

	now := p.now()
	merged := rec.Document.Merge(partial)
	merged.ID = did // an update may not change the document id
	merged.Updated = now
	docBytes, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	const upd = `UPDATE dids SET document = $1, updated_at = $2 WHERE did = $3`
	if _, err := tx.ExecContext(ctx, upd, docBytes, now, did); err != nil {
		return fmt.Errorf("update did: %w", err)
	}
	return tx.Commit()
}

// Deactivate flips the deactivated flag and bumps updated_at. The record is
// kept; a second call still matches the row and re-stamps updated_at.
func (p *Postgres) Deactivate(ctx context.Context, did string) error {
	if err := p.ensureSchema(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	const q = `UPDATE dids SET deactivated = TRUE, updated_at = $1 WHERE did = $2`
	res, err := p.db.ExecContext(ctx, q, p.now(), did)
	if err != nil {
		return fmt.Errorf("deactivate did: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("deactivate %s: %w", did, ErrNotFound)
	}
	return nil
}

// List returns active DIDs in ascending creation order.
func (p *Postgres) List(ctx context.Context) ([]string, error) {
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	const q = `SELECT did FROM dids WHERE NOT deactivated ORDER BY created_at ASC, did ASC`
	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list dids: %w", err)
	}
	defer rows.Close()

	var dids []string
	for rows.Next() {
		var did string
		if err := rows.Scan(&did); err != nil {
			return nil, fmt.Errorf("scan did: %w", err)
		}
		dids = append(dids, did)
	}
	return dids, rows.Err()
}

// rowScanner covers *sql.Row from both the pool and a transaction.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var docBytes []byte
	if err := row.Scan(&rec.DID, &docBytes, &rec.CreatedAt, &rec.UpdatedAt, &rec.Deactivated); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(docBytes, &rec.Document); err != nil {
		return Record{}, fmt.Errorf("unmarshal document: %w", err)
	}
	return rec, nil
}
