// Package pebblekv adapts the processor's checkpoint Database interface
// onto an embedded cockroachdb/pebble store, for single-process
// deployments that don't want a full RDBMS. A process-wide mutex stands
// in for pebble's lack of multi-key transactions, serializing Transact
// calls the same way the indexer's pebble storage guards batched writes.
package pebblekv

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/archivehq/evm-processor/internal/processor"
)

var heightKey = []byte("processor/height")

// Database is a pebble-backed processor.Database.
type Database struct {
	db *pebble.DB
	mu sync.Mutex
}

// Open opens (or creates) a pebble store rooted at dir.
func Open(dir string) (*Database, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebblekv: open %s: %w", dir, err)
	}
	return &Database{db: db}, nil
}

// Close releases the underlying pebble handle.
func (d *Database) Close() error {
	return d.db.Close()
}

// Connect returns the last persisted height, or -1 if none has been set.
func (d *Database) Connect(ctx context.Context) (int64, error) {
	value, closer, err := d.db.Get(heightKey)
	if err == pebble.ErrNotFound {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pebblekv: read height: %w", err)
	}
	defer closer.Close()

	if len(value) != 8 {
		return 0, fmt.Errorf("pebblekv: corrupt height value (%d bytes)", len(value))
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}

// memStore is the Store handed to the handler; pebble has no transaction
// object of its own, so the handler only ever sees an opaque marker.
type memStore struct{}

// Transact serializes handler invocations behind a process-wide mutex,
// since a single pebble handle has no multi-key transaction primitive to
// span an arbitrary handler write alongside the checkpoint.
func (d *Database) Transact(ctx context.Context, from, to uint64, fn func(store processor.Store) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := fn(memStore{}); err != nil {
		return err
	}
	return nil
}

// Advance persists the committed height.
func (d *Database) Advance(ctx context.Context, height uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	if err := d.db.Set(heightKey, buf, pebble.Sync); err != nil {
		return fmt.Errorf("pebblekv: advance to %d: %w", height, err)
	}
	return nil
}
