package app

import (
	"context"
	"net/http"

	"cellar/api/internal/state"
)

// NotebookStateView is the full materialized projection returned by the
// state endpoint: everything a client needs to render a notebook.
type NotebookStateView struct {
	Info     state.NotebookInfo      `json:"info"`
	Cells    []state.Cell            `json:"cells"`
	Outputs  map[string][]OutputView `json:"outputs,omitempty"`
	Metadata []state.MetadataEntry   `json:"metadata,omitempty"`
	Sessions []state.RuntimeSession  `json:"sessions,omitempty"`
	Presence []state.PresenceEntry   `json:"presence,omitempty"`
	Actors   []state.Actor           `json:"actors,omitempty"`
	Seq      int64                   `json:"seq"`
}

// OutputView is an output row with its append deltas folded into Data.
type OutputView struct {
	state.Output
	Data string `json:"data"`
}

func foldOutput(st *state.Store, out state.Output) OutputView {
	view := OutputView{Output: out, Data: out.Data}
	deltas := st.OutputDeltasForOutput(out.ID)
	if len(deltas) > 0 {
		view.Data = state.ApplyDeltas(out.Data, deltas)
	}
	return view
}

func (s *Service) NotebookState(ctx context.Context, notebookID string) (NotebookStateView, error) {
	var view NotebookStateView
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		view.Info = st.NotebookInfo()
		view.Cells = st.Cells()
		view.Metadata = st.NotebookMetadata()
		view.Sessions = st.RuntimeSessions()
		view.Presence = st.Presence()
		view.Actors = st.Actors()
		view.Outputs = map[string][]OutputView{}
		for _, cell := range view.Cells {
			outs := st.OutputsForCell(cell.ID)
			if len(outs) == 0 {
				continue
			}
			folded := make([]OutputView, 0, len(outs))
			for _, out := range outs {
				folded = append(folded, foldOutput(st, out))
			}
			view.Outputs[cell.ID] = folded
		}
	})
	if err != nil {
		return NotebookStateView{}, err
	}
	entry := s.notebookEntry(notebookID)
	entry.mu.Lock()
	view.Seq = entry.seq
	entry.mu.Unlock()
	return view, nil
}

func (s *Service) CellReferences(ctx context.Context, notebookID string) ([]state.CellReference, error) {
	var refs []state.CellReference
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		refs = st.CellReferences()
	})
	return refs, err
}

func (s *Service) CellOrdering(ctx context.Context, notebookID string) ([]state.CellOrder, error) {
	var order []state.CellOrder
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		order = st.CellOrdering()
	})
	return order, err
}

func (s *Service) GetCell(ctx context.Context, notebookID, cellID string) (state.Cell, error) {
	var cell state.Cell
	var found bool
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		cell, found = st.GetCell(cellID)
	})
	if err != nil {
		return state.Cell{}, err
	}
	if !found {
		return state.Cell{}, domainError(http.StatusNotFound, "CELL_NOT_FOUND", "Cell not found", map[string]any{"cellId": cellID})
	}
	return cell, nil
}

func (s *Service) CellsBefore(ctx context.Context, notebookID, index string, limit int) ([]state.CellReference, error) {
	var refs []state.CellReference
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		refs = st.CellsBefore(index, limit)
	})
	return refs, err
}

func (s *Service) CellsAfter(ctx context.Context, notebookID, index string, limit int) ([]state.CellReference, error) {
	var refs []state.CellReference
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		refs = st.CellsAfter(index, limit)
	})
	return refs, err
}

func (s *Service) CellsInRange(ctx context.Context, notebookID string, start, end *string) ([]state.CellReference, error) {
	var refs []state.CellReference
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		refs = st.CellsInRange(start, end)
	})
	return refs, err
}

func (s *Service) AdjacentCells(ctx context.Context, notebookID, cellID string) (before, after *state.CellReference, err error) {
	err = s.withState(ctx, notebookID, func(st *state.Store) {
		cell, ok := st.GetCell(cellID)
		if !ok || cell.FractionalIndex == nil {
			return
		}
		before, after = st.AdjacentCells(cellID, *cell.FractionalIndex)
	})
	return before, after, err
}

func (s *Service) OutputsForCell(ctx context.Context, notebookID, cellID string) ([]OutputView, error) {
	var views []OutputView
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		for _, out := range st.OutputsForCell(cellID) {
			views = append(views, foldOutput(st, out))
		}
	})
	return views, err
}

func (s *Service) ExecutionQueueForCell(ctx context.Context, notebookID, cellID string) ([]state.ExecutionQueueEntry, error) {
	var queue []state.ExecutionQueueEntry
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		queue = st.ExecutionQueueForCell(cellID)
	})
	return queue, err
}

func (s *Service) NotebookMetadata(ctx context.Context, notebookID string) ([]state.MetadataEntry, error) {
	var entries []state.MetadataEntry
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		entries = st.NotebookMetadata()
	})
	return entries, err
}

func (s *Service) Presence(ctx context.Context, notebookID string) ([]state.PresenceEntry, error) {
	var entries []state.PresenceEntry
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		entries = st.Presence()
	})
	return entries, err
}

func (s *Service) RuntimeSessions(ctx context.Context, notebookID string) ([]state.RuntimeSession, error) {
	var sessions []state.RuntimeSession
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		sessions = st.RuntimeSessions()
	})
	return sessions, err
}
