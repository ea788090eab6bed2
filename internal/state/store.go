package state

import (
	"sync"
)

// Store is the in-memory table store. It is a deterministic projection of
// an event log: applying the same op batches in the same order always
// yields identical tables, so a store can be rebuilt from scratch at any
// time by replay.
type Store struct {
	mu sync.RWMutex

	cells         map[string]Cell
	outputs       map[string]Output
	outputDeltas  map[string]map[int]OutputDelta
	pendingClears map[string]PendingClear
	sessions      map[string]RuntimeSession
	queue         map[string]ExecutionQueueEntry
	presence      map[string]PresenceEntry
	actors        map[string]Actor
	approvals     map[string]ToolApproval
	metadata      map[string]string
	uiState       map[string]UiState

	// version increments on every mutating Apply; memoized query results
	// are valid only for the version they were computed at.
	version uint64
	memo    map[memoKey]memoEntry
}

func NewStore() *Store {
	return &Store{
		cells:         make(map[string]Cell),
		outputs:       make(map[string]Output),
		outputDeltas:  make(map[string]map[int]OutputDelta),
		pendingClears: make(map[string]PendingClear),
		sessions:      make(map[string]RuntimeSession),
		queue:         make(map[string]ExecutionQueueEntry),
		presence:      make(map[string]PresenceEntry),
		actors:        make(map[string]Actor),
		approvals:     make(map[string]ToolApproval),
		metadata:      make(map[string]string),
		uiState:       make(map[string]UiState),
		memo:          make(map[memoKey]memoEntry),
	}
}

// Apply folds a batch of table ops into the store.
func (s *Store) Apply(ops []TableOp) {
	if len(ops) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	for _, op := range ops {
		s.applyOne(op)
	}
}

func (s *Store) applyOne(op TableOp) {
	switch o := op.(type) {
	case UpsertCell:
		if o.IgnoreConflict {
			if _, exists := s.cells[o.Cell.ID]; exists {
				return
			}
		}
		s.cells[o.Cell.ID] = o.Cell
	case PatchCell:
		cell, ok := s.cells[o.ID]
		if !ok {
			return
		}
		applyCellPatch(&cell, o.Patch)
		s.cells[o.ID] = cell
	case DeleteCell:
		delete(s.cells, o.ID)
	case InsertOutput:
		s.outputs[o.Output.ID] = o.Output
	case PatchOutput:
		out, ok := s.outputs[o.ID]
		if !ok {
			return
		}
		applyOutputPatch(&out, o.Patch)
		s.outputs[o.ID] = out
	case DeleteOutputsForCell:
		for id, out := range s.outputs {
			if out.CellID == o.CellID {
				delete(s.outputs, id)
				delete(s.outputDeltas, id)
			}
		}
	case InsertOutputDelta:
		bySeq := s.outputDeltas[o.Delta.OutputID]
		if bySeq == nil {
			bySeq = make(map[int]OutputDelta)
			s.outputDeltas[o.Delta.OutputID] = bySeq
		}
		bySeq[o.Delta.SequenceNumber] = o.Delta
	case UpsertPendingClear:
		s.pendingClears[o.Clear.CellID] = o.Clear
	case DeletePendingClear:
		delete(s.pendingClears, o.CellID)
	case UpsertRuntimeSession:
		s.sessions[o.Session.SessionID] = o.Session
	case PatchRuntimeSession:
		sess, ok := s.sessions[o.SessionID]
		if !ok {
			return
		}
		if o.Patch.Status != nil {
			sess.Status = *o.Patch.Status
		}
		if o.Patch.IsActive != nil {
			sess.IsActive = *o.Patch.IsActive
		}
		s.sessions[o.SessionID] = sess
	case UpsertQueueEntry:
		s.queue[o.Entry.ID] = o.Entry
	case PatchQueueEntry:
		entry, ok := s.queue[o.ID]
		if !ok {
			return
		}
		if o.Patch.Status != nil {
			entry.Status = *o.Patch.Status
		}
		if o.Patch.AssignedRuntimeSession != nil {
			entry.AssignedRuntimeSession = o.Patch.AssignedRuntimeSession
		}
		if o.Patch.StartedAt != nil {
			entry.StartedAt = o.Patch.StartedAt
		}
		if o.Patch.CompletedAt != nil {
			entry.CompletedAt = o.Patch.CompletedAt
		}
		if o.Patch.ExecutionDurationMs != nil {
			entry.ExecutionDurationMs = o.Patch.ExecutionDurationMs
		}
		s.queue[o.ID] = entry
	case UpsertPresence:
		s.presence[o.Entry.UserID] = o.Entry
	case UpsertActor:
		s.actors[o.Actor.ID] = o.Actor
	case UpsertToolApproval:
		s.approvals[o.Approval.ToolCallID] = o.Approval
	case PatchToolApproval:
		approval, ok := s.approvals[o.ToolCallID]
		if !ok {
			return
		}
		approval.Status = o.Status
		s.approvals[o.ToolCallID] = approval
	case SetMetadata:
		s.metadata[o.Key] = o.Value
	case UpsertUiState:
		s.uiState[o.State.UserID] = o.State
	}
}

func applyCellPatch(cell *Cell, p CellPatch) {
	if p.Source != nil {
		cell.Source = *p.Source
	}
	if p.CellType != nil {
		cell.CellType = *p.CellType
	}
	if p.FractionalIndex != nil {
		cell.FractionalIndex = p.FractionalIndex
	}
	if p.ExecutionState != nil {
		cell.ExecutionState = *p.ExecutionState
	}
	if p.ExecutionCount != nil {
		cell.ExecutionCount = p.ExecutionCount
	}
	if p.LastExecutionDurationMs != nil {
		cell.LastExecutionDurationMs = p.LastExecutionDurationMs
	}
	if p.AssignedRuntimeSession != nil {
		cell.AssignedRuntimeSession = p.AssignedRuntimeSession
	}
	if p.SourceVisible != nil {
		cell.SourceVisible = *p.SourceVisible
	}
	if p.OutputVisible != nil {
		cell.OutputVisible = *p.OutputVisible
	}
	if p.AiContextVisible != nil {
		cell.AiContextVisible = *p.AiContextVisible
	}
	if p.AiProvider != nil {
		cell.AiProvider = p.AiProvider
	}
	if p.AiModel != nil {
		cell.AiModel = p.AiModel
	}
	if p.AiSettings != nil {
		cell.AiSettings = p.AiSettings
	}
	if p.SqlConnectionID != nil {
		cell.SqlConnectionID = p.SqlConnectionID
	}
	if p.SqlResultVariable != nil {
		cell.SqlResultVariable = p.SqlResultVariable
	}
}

func applyOutputPatch(out *Output, p OutputPatch) {
	if p.Data != nil {
		out.Data = *p.Data
	}
	if p.AppendData != nil {
		out.Data += *p.AppendData
	}
	if p.MimeType != nil {
		out.MimeType = p.MimeType
	}
	if p.ArtifactID != nil {
		out.ArtifactID = p.ArtifactID
	}
	if p.Representations != nil {
		out.Representations = p.Representations
	}
}

// GetCell returns a cell row by id.
func (s *Store) GetCell(id string) (Cell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cell, ok := s.cells[id]
	return cell, ok
}

// GetOutput returns an output row by id.
func (s *Store) GetOutput(id string) (Output, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out, ok := s.outputs[id]
	return out, ok
}

// PendingClearFor returns the pending clear for a cell, if any.
func (s *Store) PendingClearFor(cellID string) (PendingClear, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clear, ok := s.pendingClears[cellID]
	return clear, ok
}

// OutputsByDisplayID returns the display outputs carrying the given display
// id, in position order.
func (s *Store) OutputsByDisplayID(displayID string) []Output {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Output
	for _, o := range s.outputs {
		if o.OutputType == OutputTypeMultimediaDisplay && o.DisplayID != nil && *o.DisplayID == displayID {
			out = append(out, o)
		}
	}
	sortOutputs(out)
	return out
}
