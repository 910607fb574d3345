// Package planner builds the ordered, disjoint batch plan from a list of
// user filter registrations, each covering its own (possibly overlapping,
// possibly open-ended) range. It implements the merge-by-range reduction
// described in the batch-plan component: a boundary sweep that, at every
// point, merges the requests of every registration whose range covers it.
package planner

import (
	"sort"

	"github.com/archivehq/evm-processor/internal/model"
)

// Registration is one user filter registration: a range plus the request
// that should be evaluated over it. Registrations are supplied in the
// order they were registered; that order is preserved when requests
// sharing a point merge (request order within the merged clause list
// follows registration order).
type Registration = model.Batch

// Build reduces registrations into the ordered, disjoint, strictly
// increasing batch plan covering the union of their ranges exactly once
// each. The outer bound is applied separately via rangeset.ApplyBound —
// Build concerns itself only with merging overlapping registrations.
func Build(registrations []Registration) []model.Batch {
	if len(registrations) == 0 {
		return nil
	}

	points := boundaryPoints(registrations)
	if len(points) == 0 {
		return nil
	}

	out := make([]model.Batch, 0, len(points))
	for i, start := range points {
		var segEnd *uint64
		if i+1 < len(points) {
			e := points[i+1] - 1
			segEnd = &e
		}

		var merged model.Request
		active := false
		for _, reg := range registrations {
			if !coversStart(reg.Range, start) {
				continue
			}
			if !active {
				merged = reg.Request
				active = true
				continue
			}
			merged = merged.Merge(reg.Request)
		}

		if !active {
			continue
		}

		out = append(out, model.Batch{
			Range:   model.Range{From: start, To: segEnd},
			Request: merged,
		})
	}

	return out
}

// coversStart reports whether r includes the height start. Because start
// is always itself a boundary point derived from some registration's From
// or End()+1, a registration active at start remains active through the
// whole segment up to (but not including) the next boundary point — no
// registration can end strictly inside a segment.
func coversStart(r model.Range, start uint64) bool {
	if r.From > start {
		return false
	}
	if r.To != nil && *r.To < start {
		return false
	}
	return true
}

// boundaryPoints returns the sorted, de-duplicated set of every
// registration's From and (when bounded) End()+1, which are exactly the
// points where the set of active registrations can change.
func boundaryPoints(registrations []Registration) []uint64 {
	seen := make(map[uint64]struct{}, len(registrations)*2)
	for _, reg := range registrations {
		seen[reg.Range.From] = struct{}{}
		if reg.Range.To != nil {
			seen[*reg.Range.To+1] = struct{}{}
		}
	}

	points := make([]uint64, 0, len(seen))
	for p := range seen {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })
	return points
}
