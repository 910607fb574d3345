// Package processor wires the range planner, ingest pipeline and decoder
// to a caller-supplied database and handler, and drives the outer
// fetch-decode-handle-advance loop described in §4.G.
package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/archivehq/evm-processor/internal/ingest"
	"github.com/archivehq/evm-processor/internal/model"
	"github.com/archivehq/evm-processor/internal/planner"
	"github.com/archivehq/evm-processor/internal/rangeset"
)

// Database is the checkpoint store the driver consumes: handler
// invocations run inside Transact, and progress is committed separately
// through Advance after each batch.
type Database interface {
	// Connect returns the last persisted height, or -1 if nothing has
	// been committed yet.
	Connect(ctx context.Context) (int64, error)
	// Transact runs fn inside a transaction spanning the block range
	// [from, to]; any error returned by fn aborts the transaction.
	Transact(ctx context.Context, from, to uint64, fn func(store Store) error) error
	// Advance commits progress only, independent of Transact.
	Advance(ctx context.Context, height uint64) error
}

// Store is the opaque, handler-scoped transactional context; concrete
// database adapters decide what it carries.
type Store interface{}

// ChainInfo is static context about the chain being processed, made
// available to the handler alongside each batch.
type ChainInfo struct {
	ChainID int64
	Name    string
}

// HandlerArgs is passed to the user handler once per non-empty batch.
type HandlerArgs struct {
	Blocks []model.BlockData
	Store  Store
	Log    *logrus.Entry
	Chain  ChainInfo
}

// Handler processes one non-empty batch inside an open transaction; any
// error aborts the transaction and terminates the driver.
type Handler func(ctx context.Context, args HandlerArgs) error

// Metrics receives driver-level observations.
type Metrics interface {
	ingest.Metrics
	ObserveBatch(r model.Range, blockCount int)
	ObserveHandlerLatency(d time.Duration)
}

// NoopMetrics implements Metrics with no-ops, embedding ingest.NoopMetrics.
type NoopMetrics struct{ ingest.NoopMetrics }

func (NoopMetrics) ObserveBatch(model.Range, int)        {}
func (NoopMetrics) ObserveHandlerLatency(time.Duration) {}

// Config bundles the inputs a Driver needs beyond its collaborators.
type Config struct {
	// Range is the operator-configured bound; To == nil means "until the
	// archive's current height, forever".
	Range model.Range
	// Registrations are the caller's filter registrations, merged into a
	// disjoint plan via the planner before bounding to Range.
	Registrations []model.Batch
	// PollInterval controls how often the pipeline polls /status while
	// waiting for the archive to reach the next needed height.
	PollInterval time.Duration
	Chain        ChainInfo
}

// Driver runs the outer ingest loop: plan, fetch, decode, handle, advance.
type Driver struct {
	archive ingest.ArchiveClient
	db      Database
	handler Handler
	metrics Metrics
	log     *logrus.Logger
	cfg     Config
}

// New builds a Driver from its collaborators.
func New(archive ingest.ArchiveClient, db Database, handler Handler, metrics Metrics, log *logrus.Logger, cfg Config) *Driver {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Driver{archive: archive, db: db, handler: handler, metrics: metrics, log: log, cfg: cfg}
}

// Run executes the driver to completion: it terminates cleanly when the
// ingest pipeline is exhausted, or returns the first fatal error from the
// handler, database, or pipeline.
func (d *Driver) Run(ctx context.Context) error {
	heightAtStart, err := d.db.Connect(ctx)
	if err != nil {
		return fmt.Errorf("processor: connect database: %w", err)
	}

	from := max64(uint64(heightAtStart+1), d.cfg.Range.From)
	if d.cfg.Range.To != nil && *d.cfg.Range.To < from {
		d.log.WithFields(logrus.Fields{
			"heightAtStart": heightAtStart,
			"configuredTo":  *d.cfg.Range.To,
		}).Info("processor: configured upper bound already reached, nothing to do")
		return nil
	}
	effectiveRange := model.Range{From: from, To: d.cfg.Range.To}

	plan := planner.Build(d.cfg.Registrations)
	plan = rangeset.ApplyBound(plan, effectiveRange)
	if len(plan) == 0 {
		d.log.Info("processor: empty plan after bounding, nothing to do")
		return nil
	}

	pipeline := ingest.New(d.archive, plan, d.cfg.PollInterval, d.metrics)
	pipeline.Start(ctx)

	for {
		res, err := pipeline.Next(ctx)
		if errors.Is(err, io.EOF) {
			d.log.Info("processor: ingest pipeline exhausted, exiting cleanly")
			return nil
		}
		if err != nil {
			return fmt.Errorf("processor: pipeline: %w", err)
		}

		if len(res.Blocks) > 0 {
			handlerStart := time.Now()
			txErr := d.db.Transact(ctx, res.Blocks[0].Header.Number, res.Blocks[len(res.Blocks)-1].Header.Number, func(store Store) error {
				return d.handler(ctx, HandlerArgs{
					Blocks: res.Blocks,
					Store:  store,
					Log:    d.log.WithField("range", res.Range),
					Chain:  d.cfg.Chain,
				})
			})
			d.metrics.ObserveHandlerLatency(time.Since(handlerStart))
			if txErr != nil {
				return fmt.Errorf("processor: handler/transaction failed for range %d-%d: %w", res.Range.From, res.Range.End(), txErr)
			}
		}

		lastBlock := res.Range.End()
		if err := d.db.Advance(ctx, lastBlock); err != nil {
			return fmt.Errorf("processor: advance progress to %d: %w", lastBlock, err)
		}

		d.metrics.ObserveBatch(res.Range, len(res.Blocks))
		d.log.WithFields(logrus.Fields{
			"from":   res.Range.From,
			"to":     lastBlock,
			"blocks": len(res.Blocks),
		}).Debug("processor: batch committed")
	}
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
