// Package ingest implements the concurrent ingest pipeline: a single
// prefetch producer goroutine fetching ahead of a single consumer through
// a bounded channel, honoring archive height advancement and rebuilding
// remaining ranges from partial responses. The channel-of-depth-3 models
// the "async generator" design note in the spec: the producer blocks on
// send once 3 decoded batches are queued, which is exactly the bounded
// prefetch buffer the driver pseudocode describes.
package ingest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync/atomic"
	"time"

	"github.com/archivehq/evm-processor/internal/archive"
	"github.com/archivehq/evm-processor/internal/decode"
	"github.com/archivehq/evm-processor/internal/model"
	"github.com/archivehq/evm-processor/internal/query"
)

// queueDepth is the bounded prefetch buffer capacity from §4.F.
const queueDepth = 3

// defaultPollInterval is archivePollIntervalMs's default.
const defaultPollInterval = 5 * time.Second

// Result is one decoded batch delivered to the consumer. A failed fetch
// is reported through Next's error, with a zero Result.
type Result struct {
	Blocks        []model.BlockData
	Range         model.Range
	Request       model.Request
	FetchStart    time.Time
	FetchEnd      time.Time
	ArchiveHeight int64
}

// ArchiveClient is the subset of archive.Client the pipeline depends on,
// so tests can substitute a fake.
type ArchiveClient interface {
	Query(ctx context.Context, body query.Document) (*archive.QueryResponse, error)
	GetHeight(ctx context.Context) (int64, error)
}

// Metrics receives pipeline observations; every method is optional (nil
// Metrics is valid — see NoopMetrics).
type Metrics interface {
	ObserveFetch(r model.Range, blockCount int, duration time.Duration)
	ObserveArchiveHeight(height int64)
	ObserveHeightWait(r model.Range)
}

// NoopMetrics implements Metrics with no-ops.
type NoopMetrics struct{}

func (NoopMetrics) ObserveFetch(model.Range, int, time.Duration) {}
func (NoopMetrics) ObserveArchiveHeight(int64)                   {}
func (NoopMetrics) ObserveHeightWait(model.Range)                {}

// Pipeline drives the prefetch producer over a fixed plan and exposes the
// decoded batches to a single consumer via Next.
type Pipeline struct {
	client       ArchiveClient
	plan         []model.Batch
	pollInterval time.Duration
	metrics      Metrics

	out           chan result
	archiveHeight int64 // atomic; -1 until first observation

	started int32 // atomic guard so Start only launches the producer once
}

type result struct {
	value Result
	err   error
}

// New builds a Pipeline over a copy of plan; the producer consumes the
// copy head-first and rewrites its head as partial responses are
// re-queued. The caller's slice is not modified.
func New(client ArchiveClient, plan []model.Batch, pollInterval time.Duration, metrics Metrics) *Pipeline {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Pipeline{
		client:        client,
		plan:          append([]model.Batch(nil), plan...),
		pollInterval:  pollInterval,
		metrics:       metrics,
		out:           make(chan result, queueDepth),
		archiveHeight: -1,
	}
}

// Start launches the single prefetch producer goroutine. It is safe to
// call more than once; only the first call has an effect.
func (p *Pipeline) Start(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&p.started, 0, 1) {
		return
	}
	go p.run(ctx)
}

// Next returns the next decoded batch in strictly increasing range order,
// blocking until one is available. It returns io.EOF once the plan is
// exhausted and every queued batch has been consumed.
func (p *Pipeline) Next(ctx context.Context) (Result, error) {
	select {
	case res, ok := <-p.out:
		if !ok {
			return Result{}, io.EOF
		}
		return res.value, res.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *Pipeline) run(ctx context.Context) {
	defer close(p.out)

	for {
		if len(p.plan) == 0 {
			return
		}
		head := p.plan[0]

		if err := p.waitForHeight(ctx, head.Range); err != nil {
			p.emit(ctx, result{err: err})
			return
		}

		observedHeight := atomic.LoadInt64(&p.archiveHeight)
		doc, err := query.Encode(head, observedHeight)
		if err != nil {
			p.emit(ctx, result{err: fmt.Errorf("ingest: encode query: %w", err)})
			return
		}

		start := time.Now()
		resp, err := p.client.Query(ctx, doc)
		end := time.Now()
		if err != nil {
			p.emit(ctx, result{err: fmt.Errorf("ingest: fetch batch %d-%d: %w", head.Range.From, head.Range.End(), err)})
			return
		}

		if resp.ArchiveHeight > observedHeight {
			atomic.StoreInt64(&p.archiveHeight, resp.ArchiveHeight)
			p.metrics.ObserveArchiveHeight(resp.ArchiveHeight)
		}

		blocks := make([]model.BlockData, 0, len(resp.Data))
		for _, row := range resp.Data {
			for _, raw := range row {
				b, err := decode.Block(raw)
				if err != nil {
					p.emit(ctx, result{err: fmt.Errorf("ingest: decode batch %d-%d: %w", head.Range.From, head.Range.End(), err)})
					return
				}
				blocks = append(blocks, b)
			}
		}
		sort.Slice(blocks, func(i, j int) bool { return blocks[i].Header.Number < blocks[j].Header.Number })

		if resp.NextBlock <= head.Range.From {
			// Archive reported no progress on this window. nextBlock == 0
			// is a legitimate response for a window starting at block 0;
			// computing "nextBlock - 1" as a uint64 in that case would
			// underflow to math.MaxUint64 instead of going negative, which
			// would then be mistaken for full coverage below. Leave
			// plan[0] untouched and retry the same segment after the poll
			// interval.
			p.metrics.ObserveFetch(head.Range, len(blocks), end.Sub(start))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.pollInterval):
			}
			continue
		}

		coveredTo := resp.NextBlock - 1
		if coveredTo < head.Range.End() {
			newFrom := coveredTo + 1
			p.plan[0] = model.Batch{Range: model.Range{From: newFrom, To: head.Range.To}, Request: head.Request}
		} else {
			p.plan = p.plan[1:]
		}

		p.metrics.ObserveFetch(head.Range, len(blocks), end.Sub(start))

		emitted := result{value: Result{
			Blocks:        blocks,
			Range:         model.Range{From: head.Range.From, To: &coveredTo},
			Request:       head.Request,
			FetchStart:    start,
			FetchEnd:      end,
			ArchiveHeight: atomic.LoadInt64(&p.archiveHeight),
		}}
		if !p.emit(ctx, emitted) {
			return
		}
	}
}

// waitForHeight blocks until the observed archive height reaches r.From,
// polling /status on pollInterval between attempts.
func (p *Pipeline) waitForHeight(ctx context.Context, r model.Range) error {
	for atomic.LoadInt64(&p.archiveHeight) < int64(r.From) {
		p.metrics.ObserveHeightWait(r)

		h, err := p.client.GetHeight(ctx)
		if err != nil {
			return fmt.Errorf("ingest: get archive height: %w", err)
		}
		if h > atomic.LoadInt64(&p.archiveHeight) {
			atomic.StoreInt64(&p.archiveHeight, h)
			p.metrics.ObserveArchiveHeight(h)
		}
		if atomic.LoadInt64(&p.archiveHeight) >= int64(r.From) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
	return nil
}

// emit sends res to the consumer, respecting cancellation. It returns
// false when the context was cancelled before delivery.
func (p *Pipeline) emit(ctx context.Context, res result) bool {
	select {
	case p.out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}
