// Package postgres adapts the processor's checkpoint Database interface
// onto a Postgres table, using a pgx/v5 pool the way the flow-indexing
// checkpoint table in the corpus is driven.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archivehq/evm-processor/internal/processor"
)

// checkpointTable is the shared checkpoint table; each deployed processor
// instance owns one row in it, keyed by its serviceName.
const checkpointTable = "processor_status"

// Database is a Postgres-backed processor.Database: Transact runs the
// handler inside its own transaction, rolled back on any handler error,
// and Advance upserts the checkpoint row in a separate statement, so a
// failed handler leaves the committed progress unchanged.
type Database struct {
	pool        *pgxpool.Pool
	serviceName string
}

// Open connects to dsn and ensures the checkpoint table exists.
func Open(ctx context.Context, dsn, serviceName string) (*Database, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+checkpointTable+` (
			id TEXT PRIMARY KEY,
			height BIGINT NOT NULL
		)`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ensure checkpoint table: %w", err)
	}

	return &Database{pool: pool, serviceName: serviceName}, nil
}

// Close releases the underlying connection pool.
func (d *Database) Close() {
	d.pool.Close()
}

// Connect returns the last persisted height, or -1 if this service has
// never committed progress.
func (d *Database) Connect(ctx context.Context) (int64, error) {
	var height int64
	err := d.pool.QueryRow(ctx, "SELECT height FROM "+checkpointTable+" WHERE id = $1", d.serviceName).Scan(&height)
	if err == pgx.ErrNoRows {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: read checkpoint: %w", err)
	}
	return height, nil
}

// pgStore is the Store handed to the handler: a live transaction the
// handler can issue its own writes against.
type pgStore struct {
	tx pgx.Tx
}

// Tx exposes the underlying pgx.Tx for handlers that need to write their
// own domain tables inside the same transaction.
func (s pgStore) Tx() pgx.Tx { return s.tx }

// Transact runs fn inside a single Postgres transaction spanning the
// given block range; any error returned by fn rolls the transaction back.
func (d *Database) Transact(ctx context.Context, from, to uint64, fn func(store processor.Store) error) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin transaction for range %d-%d: %w", from, to, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pgStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit transaction for range %d-%d: %w", from, to, err)
	}
	return nil
}

// Advance commits progress only, independent of any handler transaction.
func (d *Database) Advance(ctx context.Context, height uint64) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO `+checkpointTable+` (id, height) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET height = EXCLUDED.height`,
		d.serviceName, height,
	)
	if err != nil {
		return fmt.Errorf("postgres: advance to %d: %w", height, err)
	}
	return nil
}
