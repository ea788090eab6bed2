// Package events defines the versioned event catalog for notebook logs.
//
// Each event carries a version-tagged name (for example "v2.CellCreated").
// A versioned shape is never mutated: new shapes get a new version and the
// old arms stay decodable so historical logs remain replayable.
package events

import (
	"encoding/json"
	"fmt"
)

// Event is one typed record of the notebook log.
type Event interface {
	EventName() string
}

// Envelope is the wire form of an event: a version-tagged name plus its
// JSON-encoded arguments.
type Envelope struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}

// Raw holds an event whose name is not in the catalog. It round-trips
// unchanged; the materializer produces no table ops for it.
type Raw struct {
	Name string
	Args json.RawMessage
}

func (r Raw) EventName() string { return r.Name }

var registry = map[string]func() Event{}

func register(name string, factory func() Event) {
	registry[name] = factory
}

func init() {
	register("v1.NotebookInitialized", func() Event { return &NotebookInitialized{} })
	register("v1.NotebookMetadataSet", func() Event { return &NotebookMetadataSet{} })
	register("v1.NotebookTitleChanged", func() Event { return &NotebookTitleChanged{} })
	register("v1.CellCreated", func() Event { return &CellCreatedV1{} })
	register("v2.CellCreated", func() Event { return &CellCreated{} })
	register("v1.CellSourceChanged", func() Event { return &CellSourceChanged{} })
	register("v1.CellTypeChanged", func() Event { return &CellTypeChanged{} })
	register("v1.CellDeleted", func() Event { return &CellDeleted{} })
	register("v1.CellMoved", func() Event { return &CellMovedV1{} })
	register("v2.CellMoved", func() Event { return &CellMoved{} })
	register("v1.CellSourceVisibilityToggled", func() Event { return &CellSourceVisibilityToggled{} })
	register("v1.CellOutputVisibilityToggled", func() Event { return &CellOutputVisibilityToggled{} })
	register("v1.CellAiContextVisibilityToggled", func() Event { return &CellAiContextVisibilityToggled{} })
	register("v1.CellAiSettingsChanged", func() Event { return &CellAiSettingsChanged{} })
	register("v1.CellSqlConnectionChanged", func() Event { return &CellSqlConnectionChanged{} })
	register("v1.CellSqlResultVariableChanged", func() Event { return &CellSqlResultVariableChanged{} })
	register("v1.RuntimeSessionStarted", func() Event { return &RuntimeSessionStarted{} })
	register("v1.RuntimeSessionStatusChanged", func() Event { return &RuntimeSessionStatusChanged{} })
	register("v1.RuntimeSessionTerminated", func() Event { return &RuntimeSessionTerminated{} })
	register("v1.ExecutionRequested", func() Event { return &ExecutionRequested{} })
	register("v1.ExecutionAssigned", func() Event { return &ExecutionAssigned{} })
	register("v1.ExecutionStarted", func() Event { return &ExecutionStarted{} })
	register("v1.ExecutionCompleted", func() Event { return &ExecutionCompleted{} })
	register("v1.ExecutionCancelled", func() Event { return &ExecutionCancelled{} })
	register("v1.MultimediaDisplayOutputAdded", func() Event { return &MultimediaDisplayOutputAdded{} })
	register("v1.MultimediaDisplayOutputUpdated", func() Event { return &MultimediaDisplayOutputUpdated{} })
	register("v1.MultimediaResultOutputAdded", func() Event { return &MultimediaResultOutputAdded{} })
	register("v1.TerminalOutputAdded", func() Event { return &TerminalOutputAdded{} })
	register("v1.TerminalOutputAppended", func() Event { return &TerminalOutputAppendedV1{} })
	register("v2.TerminalOutputAppended", func() Event { return &TerminalOutputAppended{} })
	register("v1.MarkdownOutputAdded", func() Event { return &MarkdownOutputAdded{} })
	register("v1.MarkdownOutputAppended", func() Event { return &MarkdownOutputAppendedV1{} })
	register("v2.MarkdownOutputAppended", func() Event { return &MarkdownOutputAppended{} })
	register("v1.ErrorOutputAdded", func() Event { return &ErrorOutputAdded{} })
	register("v1.CellOutputsCleared", func() Event { return &CellOutputsCleared{} })
	register("v1.ActorProfileSet", func() Event { return &ActorProfileSet{} })
	register("v1.ToolApprovalRequested", func() Event { return &ToolApprovalRequested{} })
	register("v1.ToolApprovalResponded", func() Event { return &ToolApprovalResponded{} })
	register("v1.PresenceSet", func() Event { return &PresenceSet{} })
	register("v1.UiStateSet", func() Event { return &UiStateSet{} })
	register("v1.DebugLogged", func() Event { return &DebugLogged{} })
}

// Encode wraps an event into its wire envelope.
func Encode(ev Event) (Envelope, error) {
	if raw, ok := ev.(Raw); ok {
		return Envelope{Name: raw.Name, Args: raw.Args}, nil
	}
	args, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	return Envelope{Name: ev.EventName(), Args: args}, nil
}

// EncodeAll encodes a batch, preserving order.
func EncodeAll(evs []Event) ([]Envelope, error) {
	out := make([]Envelope, 0, len(evs))
	for _, ev := range evs {
		env, err := Encode(ev)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return out, nil
}

// Decode resolves an envelope into its typed event. Names outside the
// catalog come back as Raw rather than failing, so logs written by newer
// writers stay replayable.
func Decode(env Envelope) (Event, error) {
	factory, ok := registry[env.Name]
	if !ok {
		return Raw{Name: env.Name, Args: env.Args}, nil
	}
	ev := factory()
	if len(env.Args) > 0 {
		if err := json.Unmarshal(env.Args, ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Name, err)
		}
	}
	return ev, nil
}
