package state

import (
	"fmt"
	"sort"
	"strings"
)

// The query surface. Every query is parameterized and memoizable: results
// are cached per (query, params) pair and invalidated whenever the store
// version moves. Callers must not mutate returned slices.

type memoKey struct {
	name   string
	params string
}

type memoEntry struct {
	version uint64
	value   any
}

func (s *Store) memoized(name, params string, compute func() any) any {
	s.mu.RLock()
	entry, ok := s.memo[memoKey{name, params}]
	version := s.version
	s.mu.RUnlock()
	if ok && entry.version == version {
		return entry.value
	}

	value := compute()

	s.mu.Lock()
	// Recheck under the write lock; a concurrent Apply may have moved on.
	if s.version == version {
		s.memo[memoKey{name, params}] = memoEntry{version: version, value: value}
	}
	s.mu.Unlock()
	return value
}

func cellLess(a, b Cell) bool {
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
}

func (s *Store) orderedCells() []Cell {
	s.mu.RLock()
	cells := make([]Cell, 0, len(s.cells))
	for _, c := range s.cells {
		cells = append(cells, c)
	}
	s.mu.RUnlock()
	sort.Slice(cells, func(i, j int) bool { return cellLess(cells[i], cells[j]) })
	return cells
}

func toReference(c Cell) CellReference {
	return CellReference{ID: c.ID, FractionalIndex: c.FractionalIndex, CellType: c.CellType}
}

// CellReferences yields (id, fractionalIndex, cellType) ordered by index
// ascending, ties broken by id.
func (s *Store) CellReferences() []CellReference {
	return s.memoized("cellReferences", "", func() any {
		cells := s.orderedCells()
		refs := make([]CellReference, len(cells))
		for i, c := range cells {
			refs[i] = toReference(c)
		}
		return refs
	}).([]CellReference)
}

// CellOrdering is the minimal (id, fractionalIndex) projection.
type CellOrder struct {
	ID              string  `json:"id"`
	FractionalIndex *string `json:"fractionalIndex"`
}

func (s *Store) CellOrdering() []CellOrder {
	return s.memoized("cellOrdering", "", func() any {
		cells := s.orderedCells()
		out := make([]CellOrder, len(cells))
		for i, c := range cells {
			out[i] = CellOrder{ID: c.ID, FractionalIndex: c.FractionalIndex}
		}
		return out
	}).([]CellOrder)
}

// Cells returns full cell rows in document order.
func (s *Store) Cells() []Cell {
	return s.memoized("cells", "", func() any {
		return s.orderedCells()
	}).([]Cell)
}

func (s *Store) FirstCell() (CellReference, bool) {
	refs := s.CellReferences()
	if len(refs) == 0 {
		return CellReference{}, false
	}
	return refs[0], true
}

func (s *Store) LastCell() (CellReference, bool) {
	refs := s.CellReferences()
	if len(refs) == 0 {
		return CellReference{}, false
	}
	return refs[len(refs)-1], true
}

// CellsBefore returns up to limit cells with index strictly below idx, the
// nearest ones, in ascending order. limit <= 0 means no limit.
func (s *Store) CellsBefore(idx string, limit int) []CellReference {
	params := fmt.Sprintf("%s|%d", idx, limit)
	return s.memoized("cellsBefore", params, func() any {
		var out []CellReference
		for _, ref := range s.CellReferences() {
			if ref.FractionalIndex != nil && *ref.FractionalIndex < idx {
				out = append(out, ref)
			}
		}
		if limit > 0 && len(out) > limit {
			out = out[len(out)-limit:]
		}
		return out
	}).([]CellReference)
}

// CellsAfter returns up to limit cells with index strictly above idx, in
// ascending order.
func (s *Store) CellsAfter(idx string, limit int) []CellReference {
	params := fmt.Sprintf("%s|%d", idx, limit)
	return s.memoized("cellsAfter", params, func() any {
		var out []CellReference
		for _, ref := range s.CellReferences() {
			if ref.FractionalIndex != nil && *ref.FractionalIndex > idx {
				out = append(out, ref)
			}
		}
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		return out
	}).([]CellReference)
}

// CellsInRange returns cells with start <= index <= end; a nil bound is
// open.
func (s *Store) CellsInRange(start, end *string) []CellReference {
	params := derefOr(start, "\x00") + "|" + derefOr(end, "\x00")
	return s.memoized("cellsInRange", params, func() any {
		var out []CellReference
		for _, ref := range s.CellReferences() {
			if ref.FractionalIndex == nil {
				continue
			}
			if start != nil && *ref.FractionalIndex < *start {
				continue
			}
			if end != nil && *ref.FractionalIndex > *end {
				continue
			}
			out = append(out, ref)
		}
		return out
	}).([]CellReference)
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

// AdjacentCells composes CellsBefore(limit=1) and CellsAfter(limit=1).
func (s *Store) AdjacentCells(cellID, idx string) (before, after *CellReference) {
	prev := s.CellsBefore(idx, 1)
	next := s.CellsAfter(idx, 1)
	if len(prev) > 0 && prev[len(prev)-1].ID != cellID {
		ref := prev[len(prev)-1]
		before = &ref
	}
	if len(next) > 0 && next[0].ID != cellID {
		ref := next[0]
		after = &ref
	}
	return before, after
}

func sortOutputs(outputs []Output) {
	sort.Slice(outputs, func(i, j int) bool {
		if outputs[i].Position != outputs[j].Position {
			return outputs[i].Position < outputs[j].Position
		}
		return outputs[i].ID < outputs[j].ID
	})
}

// OutputsForCell returns a cell's outputs ordered by position.
func (s *Store) OutputsForCell(cellID string) []Output {
	return s.memoized("outputsForCell", cellID, func() any {
		s.mu.RLock()
		var out []Output
		for _, o := range s.outputs {
			if o.CellID == cellID {
				out = append(out, o)
			}
		}
		s.mu.RUnlock()
		sortOutputs(out)
		return out
	}).([]Output)
}

// OutputDeltasForOutput returns deltas ordered by sequence number.
func (s *Store) OutputDeltasForOutput(outputID string) []OutputDelta {
	return s.memoized("outputDeltasForOutput", outputID, func() any {
		s.mu.RLock()
		bySeq := s.outputDeltas[outputID]
		deltas := make([]OutputDelta, 0, len(bySeq))
		for _, d := range bySeq {
			deltas = append(deltas, d)
		}
		s.mu.RUnlock()
		sort.Slice(deltas, func(i, j int) bool {
			return deltas[i].SequenceNumber < deltas[j].SequenceNumber
		})
		return deltas
	}).([]OutputDelta)
}

// ApplyDeltas folds ordered deltas onto the original data: the streaming
// output's final content.
func ApplyDeltas(original string, deltas []OutputDelta) string {
	var b strings.Builder
	b.WriteString(original)
	for _, d := range deltas {
		b.WriteString(d.Delta)
	}
	return b.String()
}

// ExecutionQueueForCell returns a cell's queue entries, id descending.
func (s *Store) ExecutionQueueForCell(cellID string) []ExecutionQueueEntry {
	return s.memoized("executionQueueForCell", cellID, func() any {
		s.mu.RLock()
		var out []ExecutionQueueEntry
		for _, e := range s.queue {
			if e.CellID == cellID {
				out = append(out, e)
			}
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
		return out
	}).([]ExecutionQueueEntry)
}

// RuntimeSessions returns all sessions, session id descending.
func (s *Store) RuntimeSessions() []RuntimeSession {
	return s.memoized("runtimeSessions", "", func() any {
		s.mu.RLock()
		out := make([]RuntimeSession, 0, len(s.sessions))
		for _, sess := range s.sessions {
			out = append(out, sess)
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].SessionID > out[j].SessionID })
		return out
	}).([]RuntimeSession)
}

// NotebookMetadata returns the raw key/value pairs, key ascending.
func (s *Store) NotebookMetadata() []MetadataEntry {
	return s.memoized("notebookMetadata", "", func() any {
		s.mu.RLock()
		out := make([]MetadataEntry, 0, len(s.metadata))
		for k, v := range s.metadata {
			out = append(out, MetadataEntry{Key: k, Value: v})
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
		return out
	}).([]MetadataEntry)
}

// NotebookInfo returns the canonical metadata fields, defaulted.
func (s *Store) NotebookInfo() NotebookInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := NotebookInfo{
		Title:       "Untitled",
		OwnerID:     "anonymous",
		RuntimeType: "python3",
		IsPublic:    false,
	}
	if v, ok := s.metadata["title"]; ok {
		info.Title = v
	}
	if v, ok := s.metadata["ownerId"]; ok {
		info.OwnerID = v
	}
	if v, ok := s.metadata["runtimeType"]; ok {
		info.RuntimeType = v
	}
	if v, ok := s.metadata["isPublic"]; ok {
		info.IsPublic = v == "true"
	}
	return info
}

// Presence returns all presence rows, user id ascending.
func (s *Store) Presence() []PresenceEntry {
	return s.memoized("presence", "", func() any {
		s.mu.RLock()
		out := make([]PresenceEntry, 0, len(s.presence))
		for _, p := range s.presence {
			out = append(out, p)
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
		return out
	}).([]PresenceEntry)
}

// Actors returns all actor rows, id ascending.
func (s *Store) Actors() []Actor {
	return s.memoized("actors", "", func() any {
		s.mu.RLock()
		out := make([]Actor, 0, len(s.actors))
		for _, a := range s.actors {
			out = append(out, a)
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return out
	}).([]Actor)
}

// ToolApprovals returns all tool approvals, call id ascending.
func (s *Store) ToolApprovals() []ToolApproval {
	return s.memoized("toolApprovals", "", func() any {
		s.mu.RLock()
		out := make([]ToolApproval, 0, len(s.approvals))
		for _, a := range s.approvals {
			out = append(out, a)
		}
		s.mu.RUnlock()
		sort.Slice(out, func(i, j int) bool { return out[i].ToolCallID < out[j].ToolCallID })
		return out
	}).([]ToolApproval)
}

// UiStateFor returns the stored UI state for a user.
func (s *Store) UiStateFor(userID string) (UiState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.uiState[userID]
	return st, ok
}
