// Package state holds the materialized notebook tables: deterministic
// projections of the event log, rebuilt from scratch by replay. Rows are
// only ever changed through table ops produced by the materializer.
package state

import (
	"encoding/json"

	"cellar/api/internal/events"
)

const (
	CellTypeCode     = "code"
	CellTypeMarkdown = "markdown"
	CellTypeSql      = "sql"
	CellTypeRaw      = "raw"
	CellTypeAi       = "ai"
)

const (
	ExecStateIdle      = "idle"
	ExecStateQueued    = "queued"
	ExecStateRunning   = "running"
	ExecStateCompleted = "completed"
	ExecStateError     = "error"
)

const (
	OutputTypeMultimediaDisplay = "multimedia_display"
	OutputTypeMultimediaResult  = "multimedia_result"
	OutputTypeTerminal          = "terminal"
	OutputTypeMarkdown          = "markdown"
	OutputTypeError             = "error"
)

const (
	SessionStatusStarting   = "starting"
	SessionStatusReady      = "ready"
	SessionStatusBusy       = "busy"
	SessionStatusRestarting = "restarting"
	SessionStatusTerminated = "terminated"
)

const (
	QueueStatusPending   = "pending"
	QueueStatusAssigned  = "assigned"
	QueueStatusExecuting = "executing"
	QueueStatusCompleted = "completed"
	QueueStatusFailed    = "failed"
	QueueStatusCancelled = "cancelled"
)

type Cell struct {
	ID                      string         `json:"id"`
	CellType                string         `json:"cellType"`
	Source                  string         `json:"source"`
	FractionalIndex         *string        `json:"fractionalIndex"`
	ExecutionCount          *int           `json:"executionCount,omitempty"`
	ExecutionState          string         `json:"executionState"`
	LastExecutionDurationMs *int           `json:"lastExecutionDurationMs,omitempty"`
	AssignedRuntimeSession  *string        `json:"assignedRuntimeSession,omitempty"`
	SqlConnectionID         *string        `json:"sqlConnectionId,omitempty"`
	SqlResultVariable       *string        `json:"sqlResultVariable,omitempty"`
	AiProvider              *string        `json:"aiProvider,omitempty"`
	AiModel                 *string        `json:"aiModel,omitempty"`
	AiSettings              map[string]any `json:"aiSettings,omitempty"`
	SourceVisible           bool           `json:"sourceVisible"`
	OutputVisible           bool           `json:"outputVisible"`
	AiContextVisible        bool           `json:"aiContextVisible"`
	CreatedBy               string         `json:"createdBy"`
}

// NewCell returns a cell row with the schema defaults applied.
func NewCell(id string) Cell {
	return Cell{
		ID:               id,
		CellType:         CellTypeCode,
		Source:           "",
		ExecutionState:   ExecStateIdle,
		SourceVisible:    true,
		OutputVisible:    true,
		AiContextVisible: true,
	}
}

// CellReference is the projection used by ordering queries and the cell
// operations layer.
type CellReference struct {
	ID              string  `json:"id"`
	FractionalIndex *string `json:"fractionalIndex"`
	CellType        string  `json:"cellType"`
}

type Output struct {
	ID              string                 `json:"id"`
	CellID          string                 `json:"cellId"`
	OutputType      string                 `json:"outputType"`
	Position        float64                `json:"position"`
	StreamName      *string                `json:"streamName,omitempty"`
	ExecutionCount  *int                   `json:"executionCount,omitempty"`
	DisplayID       *string                `json:"displayId,omitempty"`
	Data            string                 `json:"data"`
	ArtifactID      *string                `json:"artifactId,omitempty"`
	MimeType        *string                `json:"mimeType,omitempty"`
	Metadata        map[string]any         `json:"metadata,omitempty"`
	Representations events.Representations `json:"representations,omitempty"`
}

type OutputDelta struct {
	ID             string `json:"id"`
	OutputID       string `json:"outputId"`
	Delta          string `json:"delta"`
	SequenceNumber int    `json:"sequenceNumber"`
}

// PendingClear marks a deferred clear_output(wait=True): it survives until
// the next output lands in the cell.
type PendingClear struct {
	CellID    string `json:"cellId"`
	ClearedBy string `json:"clearedBy"`
}

type RuntimeSession struct {
	SessionID         string   `json:"sessionId"`
	RuntimeID         string   `json:"runtimeId"`
	RuntimeType       string   `json:"runtimeType"`
	Status            string   `json:"status"`
	IsActive          bool     `json:"isActive"`
	CanExecuteCode    bool     `json:"canExecuteCode"`
	CanExecuteSql     bool     `json:"canExecuteSql"`
	CanExecuteAi      bool     `json:"canExecuteAi"`
	AvailableAiModels []string `json:"availableAiModels,omitempty"`
}

type ExecutionQueueEntry struct {
	ID                     string  `json:"id"`
	CellID                 string  `json:"cellId"`
	ExecutionCount         int     `json:"executionCount"`
	RequestedBy            string  `json:"requestedBy"`
	Status                 string  `json:"status"`
	AssignedRuntimeSession *string `json:"assignedRuntimeSession,omitempty"`
	StartedAt              *string `json:"startedAt,omitempty"`
	CompletedAt            *string `json:"completedAt,omitempty"`
	ExecutionDurationMs    *int    `json:"executionDurationMs,omitempty"`
}

type PresenceEntry struct {
	UserID string  `json:"userId"`
	CellID *string `json:"cellId"`
}

type Actor struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

type ToolApproval struct {
	ToolCallID string `json:"toolCallId"`
	CellID     string `json:"cellId"`
	ToolName   string `json:"toolName"`
	Status     string `json:"status"`
}

type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NotebookInfo carries the canonical metadata fields with their defaults
// filled in for keys the log never set.
type NotebookInfo struct {
	Title       string `json:"title"`
	OwnerID     string `json:"ownerId"`
	RuntimeType string `json:"runtimeType"`
	IsPublic    bool   `json:"isPublic"`
}

type UiState struct {
	UserID string          `json:"userId"`
	State  json.RawMessage `json:"state"`
}
