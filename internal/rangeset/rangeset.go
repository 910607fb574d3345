// Package rangeset implements the range algebra described by the batch
// planner: intersecting a range with a bound and applying that bound
// across an ordered plan while preserving order and dropping empties.
package rangeset

import "github.com/archivehq/evm-processor/internal/model"

// Intersect returns the intersection of r and bound, and false if the
// result is empty.
func Intersect(r, bound model.Range) (model.Range, bool) {
	from := r.From
	if bound.From > from {
		from = bound.From
	}

	end := r.End()
	boundEnd := bound.End()
	if boundEnd < end {
		end = boundEnd
	}

	if from > end {
		return model.Range{}, false
	}

	out := model.Range{From: from}
	if end != boundEndInfinite {
		to := end
		out.To = &to
	}
	return out, true
}

// boundEndInfinite mirrors model.Range.End()'s sentinel for an open upper
// bound. A range explicitly bounded at math.MaxUint64 has the same End(),
// so Intersect returns it as open-ended.
const boundEndInfinite = ^uint64(0)

// ApplyBound maps every batch's range through Intersect(range, bound),
// drops batches whose intersection is empty, and preserves the relative
// order of the survivors.
func ApplyBound(plan []model.Batch, bound model.Range) []model.Batch {
	out := make([]model.Batch, 0, len(plan))
	for _, b := range plan {
		r, ok := Intersect(b.Range, bound)
		if !ok {
			continue
		}
		out = append(out, model.Batch{Range: r, Request: b.Request})
	}
	return out
}
