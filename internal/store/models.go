package store

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup targets a row that does not exist.
var ErrNotFound = errors.New("not found")

type Notebook struct {
	ID         string
	Title      string
	OwnerID    string
	EventCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// EventRecord is one row of a notebook's append-only event log. Seq is
// assigned by the store, contiguous from 1 per notebook.
type EventRecord struct {
	NotebookID string
	Seq        int64
	Name       string
	Args       json.RawMessage
	CreatedAt  time.Time
}

type APIKey struct {
	ID         string
	Name       string
	SecretHash string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}
