package cells

import (
	"fmt"

	"github.com/google/uuid"

	"cellar/api/internal/events"
	"cellar/api/internal/fracindex"
	"cellar/api/internal/state"
)

// rebalanceActorSuffix marks move events that were emitted on behalf of a
// user action rather than an explicit move.
const rebalanceActorSuffix = "-rebalance"

// NewCell is the caller-supplied part of a cell insert. A zero ID gets a
// fresh uuid.
type NewCell struct {
	ID        string
	CellType  string
	CreatedBy string
}

// CreateResult is the event batch realizing an insert: any rebalance moves
// first, then the CellCreated event.
type CreateResult struct {
	Events           []events.Event
	NewCellID        string
	NeedsRebalancing bool
	RebalanceCount   int
}

func refIndex(ref *state.CellReference) *string {
	if ref == nil {
		return nil
	}
	return ref.FractionalIndex
}

// insertSlot resolves the target slot in allCells: the position of the
// cell we insert before, or the tail.
func insertSlot(after *state.CellReference, allCells []state.CellReference) int {
	if after != nil {
		for i, ref := range allCells {
			if ref.ID == after.ID {
				return i
			}
		}
	}
	return len(allCells)
}

// CreateCellBetween computes a fractional index between the given
// neighbors (rebalancing if the gap is full) and returns the event batch
// for the insert. With no neighbors given and a non-empty notebook, the
// cell lands after the greatest index.
func CreateCellBetween(cell NewCell, before, after *state.CellReference, allCells []state.CellReference, jitter fracindex.Source) (CreateResult, error) {
	id := cell.ID
	if id == "" {
		id = uuid.NewString()
	}
	cellType := cell.CellType
	if cellType == "" {
		cellType = state.CellTypeCode
	}

	prev := refIndex(before)
	next := refIndex(after)
	if before == nil && after == nil && len(allCells) > 0 {
		sorted := sortRefs(allCells)
		prev = sorted[len(sorted)-1].FractionalIndex
	}

	result, err := BetweenWithFallback(prev, next, &FallbackContext{
		AllCells:  allCells,
		InsertPos: insertSlot(after, allCells),
		Jitter:    jitter,
		ActorID:   cell.CreatedBy + rebalanceActorSuffix,
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("place cell %s: %w", id, err)
	}

	out := CreateResult{NewCellID: id, NeedsRebalancing: result.NeedsRebalancing}
	if result.Rebalance != nil {
		out.Events = append(out.Events, result.Rebalance.Events...)
		out.RebalanceCount = len(result.Rebalance.Events)
	}
	out.Events = append(out.Events, &events.CellCreated{
		ID:              id,
		FractionalIndex: result.Index,
		CellType:        cellType,
		CreatedBy:       cell.CreatedBy,
	})
	return out, nil
}

// MoveCellBetween returns the move event placing cell between the given
// neighbors, or nil when the move is a no-op: the cell has no index, or
// its current index already sits inside the supplied bounds.
func MoveCellBetween(cell state.CellReference, before, after *state.CellReference, actorID string, jitter fracindex.Source) (*events.CellMoved, error) {
	if cell.FractionalIndex == nil {
		return nil, nil
	}
	cur := *cell.FractionalIndex

	prev := refIndex(before)
	next := refIndex(after)
	if (prev == nil || *prev < cur) && (next == nil || cur < *next) {
		return nil, nil
	}

	idx, err := fracindex.Between(prev, next, jitter)
	if err != nil {
		return nil, fmt.Errorf("move cell %s: %w", cell.ID, err)
	}
	return &events.CellMoved{ID: cell.ID, FractionalIndex: idx, ActorID: actorID}, nil
}

// MoveResult is the event batch realizing a move, rebalance moves first.
type MoveResult struct {
	Events           []events.Event
	NeedsRebalancing bool
	RebalanceCount   int
}

// MoveCellBetweenWithRebalancing wraps MoveCellBetween with the same
// fallback strategy creation uses.
func MoveCellBetweenWithRebalancing(cell state.CellReference, before, after *state.CellReference, allCells []state.CellReference, actorID string, jitter fracindex.Source) (MoveResult, error) {
	moved, err := MoveCellBetween(cell, before, after, actorID, jitter)
	if err == nil {
		if moved == nil {
			return MoveResult{}, nil
		}
		return MoveResult{Events: []events.Event{moved}}, nil
	}
	if !isFull(err) {
		return MoveResult{}, err
	}

	result, err := BetweenWithFallback(refIndex(before), refIndex(after), &FallbackContext{
		AllCells:  allCells,
		InsertPos: insertSlot(after, allCells),
		Jitter:    jitter,
		ActorID:   actorID + rebalanceActorSuffix,
	})
	if err != nil {
		return MoveResult{}, fmt.Errorf("move cell %s: %w", cell.ID, err)
	}

	out := MoveResult{NeedsRebalancing: result.NeedsRebalancing}
	if result.Rebalance != nil {
		out.Events = append(out.Events, result.Rebalance.Events...)
		out.RebalanceCount = len(result.Rebalance.Events)
	}
	out.Events = append(out.Events, &events.CellMoved{
		ID:              cell.ID,
		FractionalIndex: result.Index,
		ActorID:         actorID,
	})
	return out, nil
}
