// Package materialize turns notebook events into table-operation batches.
//
// Reduce is a pure function: it reads current state only through a Queries
// handle and never touches the clock, randomness or globals, so replaying
// a log on any fresh store rebuilds identical tables.
package materialize

import (
	"strconv"

	"cellar/api/internal/events"
	"cellar/api/internal/state"
)

// Queries is the read-only state handle Reduce may consult. Missing rows
// make dependent events soft no-ops rather than errors; a log merged from
// several clients can reference rows a snapshot never saw.
type Queries interface {
	GetCell(id string) (state.Cell, bool)
	GetOutput(id string) (state.Output, bool)
	PendingClearFor(cellID string) (state.PendingClear, bool)
	OutputsByDisplayID(displayID string) []state.Output
}

// Reduce maps one event to the table ops that materialize it.
func Reduce(q Queries, ev events.Event) []state.TableOp {
	switch e := ev.(type) {
	case *events.NotebookInitialized:
		var ops []state.TableOp
		if e.Title != "" {
			ops = append(ops, state.SetMetadata{Key: "title", Value: e.Title})
		}
		if e.OwnerID != "" {
			ops = append(ops, state.SetMetadata{Key: "ownerId", Value: e.OwnerID})
		}
		return ops

	case *events.NotebookMetadataSet:
		return []state.TableOp{state.SetMetadata{Key: e.Key, Value: e.Value}}

	case *events.NotebookTitleChanged:
		return []state.TableOp{state.SetMetadata{Key: "title", Value: e.Title}}

	case *events.CellCreatedV1:
		cell := state.NewCell(e.ID)
		cell.CellType = e.CellType
		cell.CreatedBy = e.CreatedBy
		idx := pseudoIndex(e.Position)
		cell.FractionalIndex = &idx
		actor := e.ActorID
		if actor == "" {
			actor = e.CreatedBy
		}
		return []state.TableOp{
			state.UpsertCell{Cell: cell, IgnoreConflict: true},
			presenceOp(actor, &e.ID),
		}

	case *events.CellCreated:
		cell := state.NewCell(e.ID)
		cell.CellType = e.CellType
		cell.CreatedBy = e.CreatedBy
		idx := e.FractionalIndex
		cell.FractionalIndex = &idx
		return []state.TableOp{
			state.UpsertCell{Cell: cell, IgnoreConflict: true},
			presenceOp(e.CreatedBy, &e.ID),
		}

	case *events.CellSourceChanged:
		ops := []state.TableOp{state.PatchCell{ID: e.ID, Patch: state.CellPatch{Source: &e.Source}}}
		return withPresence(ops, e.ActorID, &e.ID)

	case *events.CellTypeChanged:
		ops := []state.TableOp{state.PatchCell{ID: e.ID, Patch: state.CellPatch{CellType: &e.CellType}}}
		return withPresence(ops, e.ActorID, &e.ID)

	case *events.CellDeleted:
		ops := []state.TableOp{state.DeleteCell{ID: e.ID}}
		return withPresence(ops, e.ActorID, nil)

	case *events.CellMovedV1:
		idx := pseudoIndex(e.Position)
		ops := []state.TableOp{state.PatchCell{ID: e.ID, Patch: state.CellPatch{FractionalIndex: &idx}}}
		return withPresence(ops, e.ActorID, &e.ID)

	case *events.CellMoved:
		ops := []state.TableOp{state.PatchCell{ID: e.ID, Patch: state.CellPatch{FractionalIndex: &e.FractionalIndex}}}
		return withPresence(ops, e.ActorID, &e.ID)

	case *events.CellSourceVisibilityToggled:
		ops := []state.TableOp{state.PatchCell{ID: e.ID, Patch: state.CellPatch{SourceVisible: &e.Visible}}}
		return withPresence(ops, e.ActorID, &e.ID)

	case *events.CellOutputVisibilityToggled:
		ops := []state.TableOp{state.PatchCell{ID: e.ID, Patch: state.CellPatch{OutputVisible: &e.Visible}}}
		return withPresence(ops, e.ActorID, &e.ID)

	case *events.CellAiContextVisibilityToggled:
		ops := []state.TableOp{state.PatchCell{ID: e.ID, Patch: state.CellPatch{AiContextVisible: &e.Visible}}}
		return withPresence(ops, e.ActorID, &e.ID)

	case *events.CellAiSettingsChanged:
		patch := state.CellPatch{AiSettings: e.Settings}
		if e.Provider != "" {
			patch.AiProvider = &e.Provider
		}
		if e.Model != "" {
			patch.AiModel = &e.Model
		}
		ops := []state.TableOp{state.PatchCell{ID: e.ID, Patch: patch}}
		return withPresence(ops, e.ActorID, &e.ID)

	case *events.CellSqlConnectionChanged:
		ops := []state.TableOp{state.PatchCell{ID: e.ID, Patch: state.CellPatch{SqlConnectionID: &e.SqlConnectionID}}}
		return withPresence(ops, e.ActorID, &e.ID)

	case *events.CellSqlResultVariableChanged:
		ops := []state.TableOp{state.PatchCell{ID: e.ID, Patch: state.CellPatch{SqlResultVariable: &e.SqlResultVariable}}}
		return withPresence(ops, e.ActorID, &e.ID)

	case *events.CellOutputsCleared:
		var ops []state.TableOp
		if e.Wait {
			ops = append(ops, state.UpsertPendingClear{Clear: state.PendingClear{CellID: e.CellID, ClearedBy: e.ClearedBy}})
		} else {
			ops = append(ops, state.DeleteOutputsForCell{CellID: e.CellID})
		}
		return withPresence(ops, e.ClearedBy, &e.CellID)

	case *events.MultimediaDisplayOutputAdded:
		ops := consumePendingClear(q, e.CellID)
		out := state.Output{
			ID:              e.ID,
			CellID:          e.CellID,
			OutputType:      state.OutputTypeMultimediaDisplay,
			Position:        e.Position,
			Representations: e.Representations,
		}
		if e.DisplayID != "" {
			id := e.DisplayID
			out.DisplayID = &id
		}
		if mime, data, artifactID, ok := primaryRepresentation(e.Representations, displayPriority); ok {
			out.MimeType = &mime
			out.Data = data
			out.ArtifactID = artifactID
		}
		// A repeated display id re-renders every prior output carrying it.
		if e.DisplayID != "" {
			for _, existing := range q.OutputsByDisplayID(e.DisplayID) {
				patch := state.OutputPatch{Representations: e.Representations}
				if out.MimeType != nil {
					patch.MimeType = out.MimeType
					patch.Data = &out.Data
					patch.ArtifactID = out.ArtifactID
				}
				ops = append(ops, state.PatchOutput{ID: existing.ID, Patch: patch})
			}
		}
		return append(ops, state.InsertOutput{Output: out})

	case *events.MultimediaDisplayOutputUpdated:
		// In-place update only; never creates a row.
		var ops []state.TableOp
		mime, data, artifactID, ok := primaryRepresentation(e.Representations, displayPriority)
		for _, existing := range q.OutputsByDisplayID(e.DisplayID) {
			patch := state.OutputPatch{Representations: e.Representations}
			if ok {
				patch.MimeType = &mime
				patch.Data = &data
				patch.ArtifactID = artifactID
			}
			ops = append(ops, state.PatchOutput{ID: existing.ID, Patch: patch})
		}
		return ops

	case *events.MultimediaResultOutputAdded:
		ops := consumePendingClear(q, e.CellID)
		count := e.ExecutionCount
		out := state.Output{
			ID:              e.ID,
			CellID:          e.CellID,
			OutputType:      state.OutputTypeMultimediaResult,
			Position:        e.Position,
			ExecutionCount:  &count,
			Representations: e.Representations,
		}
		if mime, data, artifactID, ok := primaryRepresentation(e.Representations, resultPriority); ok {
			out.MimeType = &mime
			out.Data = data
			out.ArtifactID = artifactID
		}
		return append(ops, state.InsertOutput{Output: out})

	case *events.TerminalOutputAdded:
		ops := consumePendingClear(q, e.CellID)
		stream := e.StreamName
		out := state.Output{
			ID:         e.ID,
			CellID:     e.CellID,
			OutputType: state.OutputTypeTerminal,
			Position:   e.Position,
			StreamName: &stream,
			Data:       containerText(e.Content),
		}
		if e.Content.Type == events.ContainerArtifact {
			id := e.Content.ArtifactID
			out.ArtifactID = &id
		}
		return append(ops, state.InsertOutput{Output: out})

	case *events.TerminalOutputAppendedV1:
		// Deprecated concatenating append; silently skipped for unknown
		// outputs so out-of-order logs replay.
		if _, ok := q.GetOutput(e.OutputID); !ok {
			return nil
		}
		return []state.TableOp{state.PatchOutput{ID: e.OutputID, Patch: state.OutputPatch{AppendData: &e.Delta}}}

	case *events.TerminalOutputAppended:
		if _, ok := q.GetOutput(e.OutputID); !ok {
			return nil
		}
		return []state.TableOp{state.InsertOutputDelta{Delta: state.OutputDelta{
			ID:             e.ID,
			OutputID:       e.OutputID,
			Delta:          e.Delta,
			SequenceNumber: e.SequenceNumber,
		}}}

	case *events.MarkdownOutputAdded:
		ops := consumePendingClear(q, e.CellID)
		out := state.Output{
			ID:         e.ID,
			CellID:     e.CellID,
			OutputType: state.OutputTypeMarkdown,
			Position:   e.Position,
			Data:       containerText(e.Content),
		}
		if e.Content.Type == events.ContainerArtifact {
			id := e.Content.ArtifactID
			out.ArtifactID = &id
		}
		return append(ops, state.InsertOutput{Output: out})

	case *events.MarkdownOutputAppendedV1:
		if _, ok := q.GetOutput(e.OutputID); !ok {
			return nil
		}
		return []state.TableOp{state.PatchOutput{ID: e.OutputID, Patch: state.OutputPatch{AppendData: &e.Delta}}}

	case *events.MarkdownOutputAppended:
		if _, ok := q.GetOutput(e.OutputID); !ok {
			return nil
		}
		return []state.TableOp{state.InsertOutputDelta{Delta: state.OutputDelta{
			ID:             e.ID,
			OutputID:       e.OutputID,
			Delta:          e.Delta,
			SequenceNumber: e.SequenceNumber,
		}}}

	case *events.ErrorOutputAdded:
		ops := consumePendingClear(q, e.CellID)
		out := state.Output{
			ID:         e.ID,
			CellID:     e.CellID,
			OutputType: state.OutputTypeError,
			Position:   e.Position,
			Data:       containerText(e.Content),
		}
		if e.Content.Type == events.ContainerArtifact {
			id := e.Content.ArtifactID
			out.ArtifactID = &id
		}
		return append(ops, state.InsertOutput{Output: out})

	case *events.RuntimeSessionStarted:
		sess := state.RuntimeSession{
			SessionID:         e.SessionID,
			RuntimeID:         e.RuntimeID,
			RuntimeType:       e.RuntimeType,
			Status:            e.Status,
			IsActive:          true,
			CanExecuteCode:    e.CanExecuteCode,
			CanExecuteSql:     e.CanExecuteSql,
			CanExecuteAi:      e.CanExecuteAi,
			AvailableAiModels: e.AvailableAiModels,
		}
		if sess.RuntimeType == "" {
			sess.RuntimeType = "python3"
		}
		if sess.Status == "" {
			sess.Status = state.SessionStatusStarting
		}
		return []state.TableOp{state.UpsertRuntimeSession{Session: sess}}

	case *events.RuntimeSessionStatusChanged:
		return []state.TableOp{state.PatchRuntimeSession{
			SessionID: e.SessionID,
			Patch:     state.RuntimeSessionPatch{Status: &e.Status},
		}}

	case *events.RuntimeSessionTerminated:
		terminated := state.SessionStatusTerminated
		inactive := false
		return []state.TableOp{state.PatchRuntimeSession{
			SessionID: e.SessionID,
			Patch:     state.RuntimeSessionPatch{Status: &terminated, IsActive: &inactive},
		}}

	case *events.ExecutionRequested:
		queued := state.ExecStateQueued
		count := e.ExecutionCount
		ops := []state.TableOp{
			state.UpsertQueueEntry{Entry: state.ExecutionQueueEntry{
				ID:             e.QueueID,
				CellID:         e.CellID,
				ExecutionCount: e.ExecutionCount,
				RequestedBy:    e.RequestedBy,
				Status:         state.QueueStatusPending,
			}},
			state.PatchCell{ID: e.CellID, Patch: state.CellPatch{
				ExecutionState: &queued,
				ExecutionCount: &count,
			}},
		}
		return withPresence(ops, e.RequestedBy, &e.CellID)

	case *events.ExecutionAssigned:
		assigned := state.QueueStatusAssigned
		return []state.TableOp{state.PatchQueueEntry{ID: e.QueueID, Patch: state.QueuePatch{
			Status:                 &assigned,
			AssignedRuntimeSession: &e.RuntimeSessionID,
		}}}

	case *events.ExecutionStarted:
		executing := state.QueueStatusExecuting
		running := state.ExecStateRunning
		return []state.TableOp{
			state.PatchQueueEntry{ID: e.QueueID, Patch: state.QueuePatch{
				Status:    &executing,
				StartedAt: &e.StartedAt,
			}},
			state.PatchCell{ID: e.CellID, Patch: state.CellPatch{
				ExecutionState:         &running,
				AssignedRuntimeSession: &e.RuntimeSessionID,
			}},
		}

	case *events.ExecutionCompleted:
		queueStatus := state.QueueStatusCompleted
		cellState := state.ExecStateCompleted
		if e.Status != events.ExecutionOutcomeSuccess {
			queueStatus = state.QueueStatusFailed
			cellState = state.ExecStateError
		}
		duration := e.ExecutionDurationMs
		return []state.TableOp{
			state.PatchQueueEntry{ID: e.QueueID, Patch: state.QueuePatch{
				Status:              &queueStatus,
				CompletedAt:         &e.CompletedAt,
				ExecutionDurationMs: &duration,
			}},
			state.PatchCell{ID: e.CellID, Patch: state.CellPatch{
				ExecutionState:          &cellState,
				LastExecutionDurationMs: &duration,
			}},
		}

	case *events.ExecutionCancelled:
		cancelled := state.QueueStatusCancelled
		idle := state.ExecStateIdle
		ops := []state.TableOp{
			state.PatchQueueEntry{ID: e.QueueID, Patch: state.QueuePatch{Status: &cancelled}},
			state.PatchCell{ID: e.CellID, Patch: state.CellPatch{ExecutionState: &idle}},
		}
		return withPresence(ops, e.CancelledBy, &e.CellID)

	case *events.ActorProfileSet:
		return []state.TableOp{state.UpsertActor{Actor: state.Actor{
			ID:          e.ID,
			Type:        e.Type,
			DisplayName: e.DisplayName,
			Avatar:      e.Avatar,
		}}}

	case *events.ToolApprovalRequested:
		return []state.TableOp{state.UpsertToolApproval{Approval: state.ToolApproval{
			ToolCallID: e.ToolCallID,
			CellID:     e.CellID,
			ToolName:   e.ToolName,
			Status:     events.ToolApprovalPending,
		}}}

	case *events.ToolApprovalResponded:
		return []state.TableOp{state.PatchToolApproval{ToolCallID: e.ToolCallID, Status: e.Status}}

	case *events.PresenceSet:
		return []state.TableOp{state.UpsertPresence{Entry: state.PresenceEntry{UserID: e.UserID, CellID: e.CellID}}}

	case *events.UiStateSet:
		return []state.TableOp{state.UpsertUiState{State: state.UiState{UserID: e.UserID, State: e.State}}}

	case *events.DebugLogged:
		return nil

	default:
		// Unknown or Raw events carry no state.
		return nil
	}
}

// ReduceAll folds a batch of events into one op list, consulting the store
// between events via apply so earlier events in the batch are visible to
// later ones.
func ReduceAll(store *state.Store, evs []events.Event) {
	for _, ev := range evs {
		store.Apply(Reduce(store, ev))
	}
}

// pseudoIndex maps a legacy integer position to a deterministic index:
// "a" + base36(floor(position)). Retained for replay of v1 events only;
// it can collide with real v2 indices and must not be used by new writers.
func pseudoIndex(position float64) string {
	return "a" + strconv.FormatInt(int64(position), 36)
}

func presenceOp(userID string, cellID *string) state.TableOp {
	return state.UpsertPresence{Entry: state.PresenceEntry{UserID: userID, CellID: cellID}}
}

func withPresence(ops []state.TableOp, actorID string, cellID *string) []state.TableOp {
	if actorID == "" {
		return ops
	}
	return append(ops, presenceOp(actorID, cellID))
}

// consumePendingClear returns the ops that realize a deferred clear when
// the next output lands in the cell.
func consumePendingClear(q Queries, cellID string) []state.TableOp {
	if _, ok := q.PendingClearFor(cellID); !ok {
		return nil
	}
	return []state.TableOp{
		state.DeleteOutputsForCell{CellID: cellID},
		state.DeletePendingClear{CellID: cellID},
	}
}
