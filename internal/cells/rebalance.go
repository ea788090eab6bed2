// Package cells provides the order-producing write operations on notebook
// cells: inserting and moving cells between neighbors, and the rebalancing
// planner that restores insertion headroom when fractional indices become
// adjacent.
package cells

import (
	"errors"
	"fmt"
	"sort"

	"cellar/api/internal/events"
	"cellar/api/internal/fracindex"
	"cellar/api/internal/state"
)

// defaultBufferCells reserves one unassigned slot at each end of a
// rebalanced range so head and tail inserts keep working.
const defaultBufferCells = 1

// sortRefs returns a copy ordered by fractional index ascending, ties by
// id; cells without an index sort last.
func sortRefs(refs []state.CellReference) []state.CellReference {
	sorted := make([]state.CellReference, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.FractionalIndex == nil && b.FractionalIndex == nil:
			return a.ID < b.ID
		case a.FractionalIndex == nil:
			return false
		case b.FractionalIndex == nil:
			return true
		case *a.FractionalIndex != *b.FractionalIndex:
			return *a.FractionalIndex < *b.FractionalIndex
		default:
			return a.ID < b.ID
		}
	})
	return sorted
}

func isFull(err error) bool {
	return errors.Is(err, fracindex.ErrEmptyInterval) || errors.Is(err, fracindex.ErrInvalidRange)
}

func betweenRefs(a, b *state.CellReference) (string, error) {
	var lo, hi *string
	if a != nil {
		lo = a.FractionalIndex
	}
	if b != nil {
		hi = b.FractionalIndex
	}
	return fracindex.Between(lo, hi, nil)
}

// NeedsRebalancing reports whether any adjacent index pair (or, when
// insertPos is given, the bounding pair at that slot) can no longer admit
// an insertion.
func NeedsRebalancing(refs []state.CellReference, insertPos *int) bool {
	sorted := sortRefs(refs)
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].FractionalIndex == nil || sorted[i].FractionalIndex == nil {
			continue
		}
		if _, err := betweenRefs(&sorted[i-1], &sorted[i]); isFull(err) {
			return true
		}
	}
	if insertPos != nil {
		pos := *insertPos
		var prev, next *state.CellReference
		if pos > 0 && pos <= len(sorted) {
			prev = &sorted[pos-1]
		}
		if pos >= 0 && pos < len(sorted) {
			next = &sorted[pos]
		}
		if _, err := betweenRefs(prev, next); isFull(err) {
			return true
		}
	}
	return false
}

// RebalanceOptions tune a reassignment pass.
type RebalanceOptions struct {
	Jitter      fracindex.Source
	ActorID     string
	BufferCells int
}

// RebalanceResult carries the planned reassignment: one CellMoved event
// per cell whose index actually changes, plus the full new order for slot
// lookups by callers that were mid-insert.
type RebalanceResult struct {
	Events      []events.Event
	Assignments map[string]string
	Order       []state.CellReference
}

// Rebalance reassigns indices across all cells, spreading them over
// len(cells) + 2*bufferCells generated positions. Relative order is
// preserved by construction; cells already sitting on their target index
// produce no event. Buffer slots reserve headroom at both ends and are
// never emitted as events.
func Rebalance(refs []state.CellReference, opts RebalanceOptions) (*RebalanceResult, error) {
	sorted := sortRefs(refs)
	buffer := opts.BufferCells
	if buffer <= 0 {
		buffer = defaultBufferCells
	}

	total := len(sorted) + 2*buffer
	indices, err := fracindex.Generate(nil, nil, total, opts.Jitter)
	if err != nil {
		return nil, fmt.Errorf("generate %d rebalance indices: %w", total, err)
	}

	result := &RebalanceResult{
		Assignments: make(map[string]string, len(sorted)),
		Order:       make([]state.CellReference, len(sorted)),
	}
	assigned := make([]string, 0, len(sorted))
	for i, ref := range sorted {
		next := indices[buffer+i]
		result.Assignments[ref.ID] = next
		assigned = append(assigned, next)

		updated := ref
		idx := next
		updated.FractionalIndex = &idx
		result.Order[i] = updated

		if ref.FractionalIndex != nil && *ref.FractionalIndex == next {
			continue
		}
		result.Events = append(result.Events, &events.CellMoved{
			ID:              ref.ID,
			FractionalIndex: next,
			ActorID:         opts.ActorID,
		})
	}

	// A planner bug here would silently scramble the document; refuse the
	// plan instead.
	if err := fracindex.ValidateOrder(assigned); err != nil {
		return nil, fmt.Errorf("rebalance broke ordering: %w", err)
	}
	return result, nil
}

// FallbackContext gives BetweenWithFallback enough information to recover
// from a full interval by rebalancing and retrying at the same slot.
type FallbackContext struct {
	AllCells    []state.CellReference
	InsertPos   int
	Jitter      fracindex.Source
	ActorID     string
	BufferCells int
}

// BetweenResult is the outcome of an index computation that may have
// triggered a rebalance.
type BetweenResult struct {
	Index            string
	NeedsRebalancing bool
	Rebalance        *RebalanceResult
}

// BetweenWithFallback computes an index between a and b. When the interval
// is full and a context is supplied, it rebalances every cell and derives
// the insertion index from the new bounds at the same slot. Without
// context the algebra error propagates untouched.
func BetweenWithFallback(a, b *string, ctx *FallbackContext) (BetweenResult, error) {
	var jitter fracindex.Source
	if ctx != nil {
		jitter = ctx.Jitter
	}
	idx, err := fracindex.Between(a, b, jitter)
	if err == nil {
		return BetweenResult{Index: idx}, nil
	}
	if ctx == nil || !isFull(err) {
		return BetweenResult{}, err
	}
	if !NeedsRebalancing(ctx.AllCells, &ctx.InsertPos) {
		return BetweenResult{}, err
	}

	plan, err := Rebalance(ctx.AllCells, RebalanceOptions{
		Jitter:      ctx.Jitter,
		ActorID:     ctx.ActorID,
		BufferCells: ctx.BufferCells,
	})
	if err != nil {
		return BetweenResult{}, err
	}

	var prev, next *string
	if ctx.InsertPos > 0 && ctx.InsertPos <= len(plan.Order) {
		prev = plan.Order[ctx.InsertPos-1].FractionalIndex
	}
	if ctx.InsertPos >= 0 && ctx.InsertPos < len(plan.Order) {
		next = plan.Order[ctx.InsertPos].FractionalIndex
	}
	idx, err = fracindex.Between(prev, next, ctx.Jitter)
	if err != nil {
		return BetweenResult{}, fmt.Errorf("insert after rebalance: %w", err)
	}
	return BetweenResult{Index: idx, NeedsRebalancing: true, Rebalance: plan}, nil
}
