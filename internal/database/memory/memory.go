// Package memory provides an in-memory processor.Database for driver
// tests, with no external dependency.
package memory

import (
	"context"
	"sync"

	"github.com/archivehq/evm-processor/internal/processor"
)

// Database is a goroutine-safe, in-memory processor.Database.
type Database struct {
	mu            sync.Mutex
	height        int64
	TransactCalls []TransactCall
}

// TransactCall records one Transact invocation for assertions in tests.
type TransactCall struct {
	From, To uint64
}

// New creates a Database whose initial height is -1, matching a fresh
// checkpoint store.
func New() *Database {
	return &Database{height: -1}
}

// Connect returns the current in-memory height.
func (d *Database) Connect(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.height, nil
}

// Transact records the call and invokes fn with a nil Store.
func (d *Database) Transact(ctx context.Context, from, to uint64, fn func(store processor.Store) error) error {
	d.mu.Lock()
	d.TransactCalls = append(d.TransactCalls, TransactCall{From: from, To: to})
	d.mu.Unlock()

	return fn(nil)
}

// Advance sets the in-memory height.
func (d *Database) Advance(ctx context.Context, height uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.height = int64(height)
	return nil
}
