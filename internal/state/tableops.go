package state

import "cellar/api/internal/events"

// TableOp is one mutation of the materialized tables. The materializer
// returns batches of these; Store.Apply folds them in order.
type TableOp interface {
	isTableOp()
}

// UpsertCell inserts or replaces a cell row. With IgnoreConflict set, an
// existing row with the same id is left untouched.
type UpsertCell struct {
	Cell           Cell
	IgnoreConflict bool
}

// CellPatch is a partial cell update; nil fields are unchanged.
type CellPatch struct {
	Source                  *string
	CellType                *string
	FractionalIndex         *string
	ExecutionState          *string
	ExecutionCount          *int
	LastExecutionDurationMs *int
	AssignedRuntimeSession  *string
	SourceVisible           *bool
	OutputVisible           *bool
	AiContextVisible        *bool
	AiProvider              *string
	AiModel                 *string
	AiSettings              map[string]any
	SqlConnectionID         *string
	SqlResultVariable       *string
}

// PatchCell updates a cell by id. A missing row makes the op a no-op.
type PatchCell struct {
	ID    string
	Patch CellPatch
}

type DeleteCell struct {
	ID string
}

// InsertOutput inserts or replaces an output row by id.
type InsertOutput struct {
	Output Output
}

// OutputPatch is a partial output update; nil fields are unchanged.
// AppendData concatenates onto the existing data column (legacy terminal
// and markdown appends).
type OutputPatch struct {
	Data            *string
	AppendData      *string
	MimeType        *string
	ArtifactID      *string
	Representations events.Representations
}

type PatchOutput struct {
	ID    string
	Patch OutputPatch
}

type DeleteOutputsForCell struct {
	CellID string
}

// InsertOutputDelta upserts a delta row keyed by (outputId, sequenceNumber).
type InsertOutputDelta struct {
	Delta OutputDelta
}

// UpsertPendingClear replaces any prior pending clear for the cell.
type UpsertPendingClear struct {
	Clear PendingClear
}

type DeletePendingClear struct {
	CellID string
}

type UpsertRuntimeSession struct {
	Session RuntimeSession
}

type RuntimeSessionPatch struct {
	Status   *string
	IsActive *bool
}

type PatchRuntimeSession struct {
	SessionID string
	Patch     RuntimeSessionPatch
}

type UpsertQueueEntry struct {
	Entry ExecutionQueueEntry
}

type QueuePatch struct {
	Status                 *string
	AssignedRuntimeSession *string
	StartedAt              *string
	CompletedAt            *string
	ExecutionDurationMs    *int
}

type PatchQueueEntry struct {
	ID    string
	Patch QueuePatch
}

// UpsertPresence replaces the user's presence row.
type UpsertPresence struct {
	Entry PresenceEntry
}

type UpsertActor struct {
	Actor Actor
}

type UpsertToolApproval struct {
	Approval ToolApproval
}

type PatchToolApproval struct {
	ToolCallID string
	Status     string
}

type SetMetadata struct {
	Key   string
	Value string
}

type UpsertUiState struct {
	State UiState
}

func (UpsertCell) isTableOp()           {}
func (PatchCell) isTableOp()            {}
func (DeleteCell) isTableOp()           {}
func (InsertOutput) isTableOp()         {}
func (PatchOutput) isTableOp()          {}
func (DeleteOutputsForCell) isTableOp() {}
func (InsertOutputDelta) isTableOp()    {}
func (UpsertPendingClear) isTableOp()   {}
func (DeletePendingClear) isTableOp()   {}
func (UpsertRuntimeSession) isTableOp() {}
func (PatchRuntimeSession) isTableOp()  {}
func (UpsertQueueEntry) isTableOp()     {}
func (PatchQueueEntry) isTableOp()      {}
func (UpsertPresence) isTableOp()       {}
func (UpsertActor) isTableOp()          {}
func (UpsertToolApproval) isTableOp()   {}
func (PatchToolApproval) isTableOp()    {}
func (SetMetadata) isTableOp()          {}
func (UpsertUiState) isTableOp()        {}
