package events

import "encoding/json"

// Container is the tagged payload union for output content: inline data or
// an artifact reference. Exactly one of Data / ArtifactID is set.
type Container struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
	ArtifactID string          `json:"artifactId,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
}

const (
	ContainerInline   = "inline"
	ContainerArtifact = "artifact"
)

// Representations maps a MIME type to its payload container.
type Representations map[string]Container

// InlineText builds an inline container holding a plain string payload.
func InlineText(data string) Container {
	raw, _ := json.Marshal(data)
	return Container{Type: ContainerInline, Data: raw}
}

// InlineJSON builds an inline container holding an arbitrary JSON payload.
func InlineJSON(v any) (Container, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Container{}, err
	}
	return Container{Type: ContainerInline, Data: raw}, nil
}

// ArtifactRef builds a by-reference container.
func ArtifactRef(artifactID string) Container {
	return Container{Type: ContainerArtifact, ArtifactID: artifactID}
}

// Notebook-level events.

type NotebookInitialized struct {
	Title   string `json:"title,omitempty"`
	OwnerID string `json:"ownerId,omitempty"`
}

func (NotebookInitialized) EventName() string { return "v1.NotebookInitialized" }

type NotebookMetadataSet struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (NotebookMetadataSet) EventName() string { return "v1.NotebookMetadataSet" }

type NotebookTitleChanged struct {
	Title string `json:"title"`
}

func (NotebookTitleChanged) EventName() string { return "v1.NotebookTitleChanged" }

// Cell events.

// CellCreatedV1 is the deprecated positional variant, kept so historical
// logs replay. New writers emit CellCreated (v2) with a fractional index.
type CellCreatedV1 struct {
	ID        string  `json:"id"`
	Position  float64 `json:"position"`
	CellType  string  `json:"cellType"`
	CreatedBy string  `json:"createdBy"`
	ActorID   string  `json:"actorId,omitempty"`
}

func (CellCreatedV1) EventName() string { return "v1.CellCreated" }

type CellCreated struct {
	ID              string `json:"id"`
	FractionalIndex string `json:"fractionalIndex"`
	CellType        string `json:"cellType"`
	CreatedBy       string `json:"createdBy"`
}

func (CellCreated) EventName() string { return "v2.CellCreated" }

type CellSourceChanged struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	ActorID string `json:"actorId,omitempty"`
}

func (CellSourceChanged) EventName() string { return "v1.CellSourceChanged" }

type CellTypeChanged struct {
	ID       string `json:"id"`
	CellType string `json:"cellType"`
	ActorID  string `json:"actorId,omitempty"`
}

func (CellTypeChanged) EventName() string { return "v1.CellTypeChanged" }

type CellDeleted struct {
	ID      string `json:"id"`
	ActorID string `json:"actorId,omitempty"`
}

func (CellDeleted) EventName() string { return "v1.CellDeleted" }

// CellMovedV1 is the deprecated positional move, mapped to a pseudo index
// on replay the same way CellCreatedV1 is.
type CellMovedV1 struct {
	ID       string  `json:"id"`
	Position float64 `json:"position"`
	ActorID  string  `json:"actorId,omitempty"`
}

func (CellMovedV1) EventName() string { return "v1.CellMoved" }

type CellMoved struct {
	ID              string `json:"id"`
	FractionalIndex string `json:"fractionalIndex"`
	ActorID         string `json:"actorId,omitempty"`
}

func (CellMoved) EventName() string { return "v2.CellMoved" }

type CellSourceVisibilityToggled struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
	ActorID string `json:"actorId,omitempty"`
}

func (CellSourceVisibilityToggled) EventName() string { return "v1.CellSourceVisibilityToggled" }

type CellOutputVisibilityToggled struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
	ActorID string `json:"actorId,omitempty"`
}

func (CellOutputVisibilityToggled) EventName() string { return "v1.CellOutputVisibilityToggled" }

type CellAiContextVisibilityToggled struct {
	ID      string `json:"id"`
	Visible bool   `json:"visible"`
	ActorID string `json:"actorId,omitempty"`
}

func (CellAiContextVisibilityToggled) EventName() string {
	return "v1.CellAiContextVisibilityToggled"
}

type CellAiSettingsChanged struct {
	ID       string         `json:"id"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
	Settings map[string]any `json:"settings,omitempty"`
	ActorID  string         `json:"actorId,omitempty"`
}

func (CellAiSettingsChanged) EventName() string { return "v1.CellAiSettingsChanged" }

type CellSqlConnectionChanged struct {
	ID              string `json:"id"`
	SqlConnectionID string `json:"sqlConnectionId"`
	ActorID         string `json:"actorId,omitempty"`
}

func (CellSqlConnectionChanged) EventName() string { return "v1.CellSqlConnectionChanged" }

type CellSqlResultVariableChanged struct {
	ID                string `json:"id"`
	SqlResultVariable string `json:"sqlResultVariable"`
	ActorID           string `json:"actorId,omitempty"`
}

func (CellSqlResultVariableChanged) EventName() string { return "v1.CellSqlResultVariableChanged" }

// Runtime session events.

type RuntimeSessionStarted struct {
	SessionID         string   `json:"sessionId"`
	RuntimeID         string   `json:"runtimeId"`
	RuntimeType       string   `json:"runtimeType,omitempty"`
	Status            string   `json:"status,omitempty"`
	CanExecuteCode    bool     `json:"canExecuteCode"`
	CanExecuteSql     bool     `json:"canExecuteSql"`
	CanExecuteAi      bool     `json:"canExecuteAi"`
	AvailableAiModels []string `json:"availableAiModels,omitempty"`
}

func (RuntimeSessionStarted) EventName() string { return "v1.RuntimeSessionStarted" }

type RuntimeSessionStatusChanged struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

func (RuntimeSessionStatusChanged) EventName() string { return "v1.RuntimeSessionStatusChanged" }

type RuntimeSessionTerminated struct {
	SessionID string `json:"sessionId"`
}

func (RuntimeSessionTerminated) EventName() string { return "v1.RuntimeSessionTerminated" }

// Execution queue events.

type ExecutionRequested struct {
	QueueID        string `json:"queueId"`
	CellID         string `json:"cellId"`
	ExecutionCount int    `json:"executionCount"`
	RequestedBy    string `json:"requestedBy"`
}

func (ExecutionRequested) EventName() string { return "v1.ExecutionRequested" }

type ExecutionAssigned struct {
	QueueID          string `json:"queueId"`
	RuntimeSessionID string `json:"runtimeSessionId"`
}

func (ExecutionAssigned) EventName() string { return "v1.ExecutionAssigned" }

type ExecutionStarted struct {
	QueueID          string `json:"queueId"`
	CellID           string `json:"cellId"`
	RuntimeSessionID string `json:"runtimeSessionId"`
	StartedAt        string `json:"startedAt"`
}

func (ExecutionStarted) EventName() string { return "v1.ExecutionStarted" }

const (
	ExecutionOutcomeSuccess = "success"
	ExecutionOutcomeFailure = "failure"
)

type ExecutionCompleted struct {
	QueueID             string `json:"queueId"`
	CellID              string `json:"cellId"`
	Status              string `json:"status"`
	CompletedAt         string `json:"completedAt"`
	ExecutionDurationMs int    `json:"executionDurationMs"`
}

func (ExecutionCompleted) EventName() string { return "v1.ExecutionCompleted" }

type ExecutionCancelled struct {
	QueueID     string `json:"queueId"`
	CellID      string `json:"cellId"`
	CancelledBy string `json:"cancelledBy,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

func (ExecutionCancelled) EventName() string { return "v1.ExecutionCancelled" }

// Output events.

type MultimediaDisplayOutputAdded struct {
	ID              string          `json:"id"`
	CellID          string          `json:"cellId"`
	Position        float64         `json:"position"`
	Representations Representations `json:"representations"`
	DisplayID       string          `json:"displayId,omitempty"`
}

func (MultimediaDisplayOutputAdded) EventName() string { return "v1.MultimediaDisplayOutputAdded" }

type MultimediaDisplayOutputUpdated struct {
	DisplayID       string          `json:"displayId"`
	Representations Representations `json:"representations"`
}

func (MultimediaDisplayOutputUpdated) EventName() string {
	return "v1.MultimediaDisplayOutputUpdated"
}

type MultimediaResultOutputAdded struct {
	ID              string          `json:"id"`
	CellID          string          `json:"cellId"`
	Position        float64         `json:"position"`
	Representations Representations `json:"representations"`
	ExecutionCount  int             `json:"executionCount"`
}

func (MultimediaResultOutputAdded) EventName() string { return "v1.MultimediaResultOutputAdded" }

type TerminalOutputAdded struct {
	ID         string    `json:"id"`
	CellID     string    `json:"cellId"`
	Position   float64   `json:"position"`
	StreamName string    `json:"streamName"`
	Content    Container `json:"content"`
}

func (TerminalOutputAdded) EventName() string { return "v1.TerminalOutputAdded" }

// TerminalOutputAppendedV1 is the deprecated concatenating append. New
// writers emit TerminalOutputAppended (v2) delta rows instead.
type TerminalOutputAppendedV1 struct {
	OutputID string `json:"outputId"`
	Delta    string `json:"delta"`
	ActorID  string `json:"actorId,omitempty"`
}

func (TerminalOutputAppendedV1) EventName() string { return "v1.TerminalOutputAppended" }

type TerminalOutputAppended struct {
	ID             string `json:"id"`
	OutputID       string `json:"outputId"`
	Delta          string `json:"delta"`
	SequenceNumber int    `json:"sequenceNumber"`
}

func (TerminalOutputAppended) EventName() string { return "v2.TerminalOutputAppended" }

type MarkdownOutputAdded struct {
	ID       string    `json:"id"`
	CellID   string    `json:"cellId"`
	Position float64   `json:"position"`
	Content  Container `json:"content"`
}

func (MarkdownOutputAdded) EventName() string { return "v1.MarkdownOutputAdded" }

// MarkdownOutputAppendedV1 is the deprecated concatenating append.
type MarkdownOutputAppendedV1 struct {
	OutputID string `json:"outputId"`
	Delta    string `json:"delta"`
	ActorID  string `json:"actorId,omitempty"`
}

func (MarkdownOutputAppendedV1) EventName() string { return "v1.MarkdownOutputAppended" }

type MarkdownOutputAppended struct {
	ID             string `json:"id"`
	OutputID       string `json:"outputId"`
	Delta          string `json:"delta"`
	SequenceNumber int    `json:"sequenceNumber"`
}

func (MarkdownOutputAppended) EventName() string { return "v2.MarkdownOutputAppended" }

// ErrorOutputContent is the payload shape inside ErrorOutputAdded's inline
// container: {ename, evalue, traceback}.
type ErrorOutputContent struct {
	Ename     string   `json:"ename"`
	Evalue    string   `json:"evalue"`
	Traceback []string `json:"traceback"`
}

type ErrorOutputAdded struct {
	ID       string    `json:"id"`
	CellID   string    `json:"cellId"`
	Position float64   `json:"position"`
	Content  Container `json:"content"`
}

func (ErrorOutputAdded) EventName() string { return "v1.ErrorOutputAdded" }

type CellOutputsCleared struct {
	CellID    string `json:"cellId"`
	Wait      bool   `json:"wait"`
	ClearedBy string `json:"clearedBy,omitempty"`
}

func (CellOutputsCleared) EventName() string { return "v1.CellOutputsCleared" }

// Collaboration events.

type ActorProfileSet struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

func (ActorProfileSet) EventName() string { return "v1.ActorProfileSet" }

type ToolApprovalRequested struct {
	ToolCallID string `json:"toolCallId"`
	CellID     string `json:"cellId"`
	ToolName   string `json:"toolName"`
}

func (ToolApprovalRequested) EventName() string { return "v1.ToolApprovalRequested" }

const (
	ToolApprovalPending        = "pending"
	ToolApprovalApprovedOnce   = "approved_once"
	ToolApprovalApprovedAlways = "approved_always"
	ToolApprovalDenied         = "denied"
)

type ToolApprovalResponded struct {
	ToolCallID string `json:"toolCallId"`
	Status     string `json:"status"`
	ActorID    string `json:"actorId,omitempty"`
}

func (ToolApprovalResponded) EventName() string { return "v1.ToolApprovalResponded" }

type PresenceSet struct {
	UserID string  `json:"userId"`
	CellID *string `json:"cellId"`
}

func (PresenceSet) EventName() string { return "v1.PresenceSet" }

type UiStateSet struct {
	UserID string          `json:"userId"`
	State  json.RawMessage `json:"state"`
}

func (UiStateSet) EventName() string { return "v1.UiStateSet" }

type DebugLogged struct {
	Message string `json:"message"`
}

func (DebugLogged) EventName() string { return "v1.DebugLogged" }
