// Package app wires the notebook services together behind the HTTP API:
// the event log, the materialized state cache, live fanout, search,
// artifacts, snapshots and export.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"cellar/api/internal/apikey"
	"cellar/api/internal/artifact"
	"cellar/api/internal/cells"
	"cellar/api/internal/config"
	"cellar/api/internal/events"
	"cellar/api/internal/export"
	"cellar/api/internal/fanout"
	"cellar/api/internal/fracindex"
	"cellar/api/internal/materialize"
	"cellar/api/internal/search"
	"cellar/api/internal/snapshot"
	"cellar/api/internal/state"
	"cellar/api/internal/store"
	"cellar/api/internal/util"
)

// dataStore is the persistence surface the service needs. PostgresStore
// implements it; tests substitute an in-memory fake.
type dataStore interface {
	CreateNotebook(ctx context.Context, id, title, ownerID string) (store.Notebook, error)
	GetNotebook(ctx context.Context, id string) (store.Notebook, error)
	ListNotebooks(ctx context.Context) ([]store.Notebook, error)
	RenameNotebook(ctx context.Context, id, title string) error
	DeleteNotebook(ctx context.Context, id string) error
	AppendEvents(ctx context.Context, notebookID string, records []store.EventRecord) ([]store.EventRecord, error)
	ListEvents(ctx context.Context, notebookID string, afterSeq int64, limit int) ([]store.EventRecord, error)
	InsertAPIKey(ctx context.Context, key store.APIKey) error
	GetAPIKey(ctx context.Context, id string) (store.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]store.APIKey, error)
	TouchAPIKey(ctx context.Context, id string) error
	DeleteAPIKey(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// notebookState is one notebook's materialized tables plus the sequence
// number of the last event folded in. mu serializes replay catch-up and
// writes for that notebook.
type notebookState struct {
	mu    sync.Mutex
	store *state.Store
	seq   int64
}

type Service struct {
	cfg       config.Config
	store     dataStore
	broker    *fanout.Broker
	search    *search.Service
	artifacts *artifact.Store
	snapshots *snapshot.Service
	exporter  *export.Service
	keys      *apikey.Service

	stateMu sync.Mutex
	states  map[string]*notebookState
}

// Options carries the optional backing services. Nil fields disable the
// corresponding endpoints rather than failing startup.
type Options struct {
	Broker    *fanout.Broker
	Search    *search.Service
	Artifacts *artifact.Store
	Snapshots *snapshot.Service
}

func New(cfg config.Config, dataStore dataStore, opts Options) *Service {
	svc := &Service{
		cfg:       cfg,
		store:     dataStore,
		broker:    opts.Broker,
		search:    opts.Search,
		artifacts: opts.Artifacts,
		snapshots: opts.Snapshots,
		keys:      apikey.NewService(dataStore),
		states:    map[string]*notebookState{},
	}
	svc.exporter = export.NewService(svc)
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) APIKeyService() *apikey.Service { return s.keys }

// notebookEntry returns the cached state for a notebook, creating the
// entry on first use. The caller must hold the returned entry's lock
// before touching its store.
func (s *Service) notebookEntry(notebookID string) *notebookState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	entry, ok := s.states[notebookID]
	if !ok {
		entry = &notebookState{store: state.NewStore()}
		s.states[notebookID] = entry
	}
	return entry
}

func (s *Service) dropState(notebookID string) {
	s.stateMu.Lock()
	delete(s.states, notebookID)
	s.stateMu.Unlock()
}

// catchUp replays log events past entry.seq into the cached store. The
// entry lock must be held.
func (s *Service) catchUp(ctx context.Context, notebookID string, entry *notebookState) error {
	records, err := s.store.ListEvents(ctx, notebookID, entry.seq, 0)
	if err != nil {
		return err
	}
	for _, rec := range records {
		ev, err := events.Decode(events.Envelope{Name: rec.Name, Args: rec.Args})
		if err != nil {
			return fmt.Errorf("replay seq %d: %w", rec.Seq, err)
		}
		entry.store.Apply(materialize.Reduce(entry.store, ev))
		entry.seq = rec.Seq
	}
	return nil
}

// withState runs fn against the up-to-date materialized state for a
// notebook. fn must not retain the store past the call.
func (s *Service) withState(ctx context.Context, notebookID string, fn func(st *state.Store)) error {
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return err
	}
	entry := s.notebookEntry(notebookID)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := s.catchUp(ctx, notebookID, entry); err != nil {
		return err
	}
	fn(entry.store)
	return nil
}

// Notebook lifecycle.

func (s *Service) CreateNotebook(ctx context.Context, title, ownerID string) (store.Notebook, error) {
	if title == "" {
		title = "Untitled Notebook"
	}
	id := util.NewID("nb")
	nb, err := s.store.CreateNotebook(ctx, id, title, ownerID)
	if err != nil {
		return store.Notebook{}, err
	}

	init, err := events.Encode(&events.NotebookInitialized{Title: title, OwnerID: ownerID})
	if err != nil {
		return store.Notebook{}, err
	}
	if _, err := s.AppendEvents(ctx, id, []events.Envelope{init}); err != nil {
		return store.Notebook{}, err
	}

	if s.snapshots != nil {
		doc, derr := s.snapshotDocument(ctx, id)
		if derr == nil {
			_ = s.snapshots.Ensure(id, doc, ownerID)
		}
	}
	return s.store.GetNotebook(ctx, nb.ID)
}

func (s *Service) GetNotebook(ctx context.Context, id string) (store.Notebook, error) {
	return s.store.GetNotebook(ctx, id)
}

func (s *Service) ListNotebooks(ctx context.Context) ([]store.Notebook, error) {
	return s.store.ListNotebooks(ctx)
}

func (s *Service) RenameNotebook(ctx context.Context, id, title string) (store.Notebook, error) {
	if title == "" {
		return store.Notebook{}, domainError(http.StatusBadRequest, "INVALID_TITLE", "Title must not be empty", nil)
	}
	if err := s.store.RenameNotebook(ctx, id, title); err != nil {
		return store.Notebook{}, err
	}
	env, err := events.Encode(&events.NotebookTitleChanged{Title: title})
	if err != nil {
		return store.Notebook{}, err
	}
	if _, err := s.AppendEvents(ctx, id, []events.Envelope{env}); err != nil {
		return store.Notebook{}, err
	}
	return s.store.GetNotebook(ctx, id)
}

func (s *Service) DeleteNotebook(ctx context.Context, id string) error {
	if err := s.store.DeleteNotebook(ctx, id); err != nil {
		return err
	}
	s.dropState(id)
	if s.search != nil {
		s.search.DeleteNotebook(id)
	}
	return nil
}

// Event log.

// AppendEvents validates and appends a batch to a notebook's log, folds
// it into the cached state, then fans it out to live subscribers and the
// search index. The batch is atomic: either every event lands or none.
func (s *Service) AppendEvents(ctx context.Context, notebookID string, envelopes []events.Envelope) ([]store.EventRecord, error) {
	if len(envelopes) == 0 {
		return nil, domainError(http.StatusBadRequest, "EMPTY_BATCH", "Event batch must not be empty", nil)
	}

	decoded := make([]events.Event, 0, len(envelopes))
	records := make([]store.EventRecord, 0, len(envelopes))
	for i, env := range envelopes {
		if env.Name == "" {
			return nil, domainError(http.StatusBadRequest, "INVALID_EVENT", "Event name must not be empty", map[string]any{"index": i})
		}
		ev, err := events.Decode(env)
		if err != nil {
			return nil, domainError(http.StatusBadRequest, "INVALID_EVENT", err.Error(), map[string]any{"index": i})
		}
		decoded = append(decoded, ev)
		records = append(records, store.EventRecord{Name: env.Name, Args: env.Args})
	}

	entry := s.notebookEntry(notebookID)
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if err := s.catchUp(ctx, notebookID, entry); err != nil {
		return nil, err
	}

	stored, err := s.store.AppendEvents(ctx, notebookID, records)
	if err != nil {
		return nil, err
	}
	for i, rec := range stored {
		entry.store.Apply(materialize.Reduce(entry.store, decoded[i]))
		entry.seq = rec.Seq
	}

	if s.broker != nil {
		_ = s.broker.Publish(ctx, notebookID, stored)
	}
	s.indexEvents(ctx, notebookID, decoded, entry.store)
	return stored, nil
}

// Events returns log records after a sequence number, oldest first.
func (s *Service) Events(ctx context.Context, notebookID string, afterSeq int64, limit int) ([]store.EventRecord, error) {
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, notebookID, afterSeq, limit)
}

// Subscribe attaches to the live event stream for a notebook.
func (s *Service) Subscribe(ctx context.Context, notebookID string) (<-chan fanout.Message, func(), error) {
	if s.broker == nil {
		return nil, nil, domainError(http.StatusServiceUnavailable, "STREAM_UNAVAILABLE", "Live streaming is not configured", nil)
	}
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return nil, nil, err
	}
	return s.broker.Subscribe(ctx, notebookID)
}

// indexEvents pushes the search-relevant slice of an appended batch into
// the index. Failures are absorbed; search lags rather than blocking the
// write path.
func (s *Service) indexEvents(ctx context.Context, notebookID string, batch []events.Event, st *state.Store) {
	if s.search == nil {
		return
	}
	for _, ev := range batch {
		switch e := ev.(type) {
		case *events.NotebookInitialized, *events.NotebookTitleChanged:
			if nb, err := s.store.GetNotebook(ctx, notebookID); err == nil {
				s.search.IndexNotebook(search.NotebookRecord{ID: nb.ID, Title: nb.Title, OwnerID: nb.OwnerID})
			}
		case *events.CellCreated:
			s.indexCell(notebookID, e.ID, st)
		case *events.CellCreatedV1:
			s.indexCell(notebookID, e.ID, st)
		case *events.CellSourceChanged:
			s.indexCell(notebookID, e.ID, st)
		case *events.CellTypeChanged:
			s.indexCell(notebookID, e.ID, st)
		case *events.CellDeleted:
			s.search.DeleteCell(search.CellUID(notebookID, e.ID))
		}
	}
}

func (s *Service) indexCell(notebookID, cellID string, st *state.Store) {
	cell, ok := st.GetCell(cellID)
	if !ok {
		return
	}
	s.search.IndexCell(search.CellRecord{
		UID:        search.CellUID(notebookID, cellID),
		CellID:     cellID,
		NotebookID: notebookID,
		CellType:   cell.CellType,
		Source:     cell.Source,
	})
}

// Cell operations.

type CreateCellRequest struct {
	CellType  string
	CreatedBy string
	BeforeID  string
	AfterID   string
}

type CellPlacement struct {
	CellID           string `json:"cellId"`
	NeedsRebalancing bool   `json:"needsRebalancing"`
	RebalanceCount   int    `json:"rebalanceCount"`
	EventCount       int    `json:"eventCount"`
}

func (s *Service) resolveNeighbors(st *state.Store, beforeID, afterID string) (before, after *state.CellReference, refs []state.CellReference, err error) {
	refs = st.CellReferences()
	find := func(id string) (*state.CellReference, error) {
		if id == "" {
			return nil, nil
		}
		for i := range refs {
			if refs[i].ID == id {
				return &refs[i], nil
			}
		}
		return nil, domainError(http.StatusNotFound, "CELL_NOT_FOUND", "Cell not found", map[string]any{"cellId": id})
	}
	if before, err = find(beforeID); err != nil {
		return nil, nil, nil, err
	}
	if after, err = find(afterID); err != nil {
		return nil, nil, nil, err
	}
	return before, after, refs, nil
}

// CreateCell places a new cell between the named neighbors, appending any
// rebalance moves the placement required ahead of the create event.
func (s *Service) CreateCell(ctx context.Context, notebookID string, req CreateCellRequest) (CellPlacement, error) {
	var result cells.CreateResult
	var opErr error
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		before, after, refs, err := s.resolveNeighbors(st, req.BeforeID, req.AfterID)
		if err != nil {
			opErr = err
			return
		}
		result, opErr = cells.CreateCellBetween(cells.NewCell{
			CellType:  req.CellType,
			CreatedBy: req.CreatedBy,
		}, before, after, refs, fracindex.SystemSource())
	})
	if err != nil {
		return CellPlacement{}, err
	}
	if opErr != nil {
		return CellPlacement{}, opErr
	}

	envelopes, err := events.EncodeAll(result.Events)
	if err != nil {
		return CellPlacement{}, err
	}
	if _, err := s.AppendEvents(ctx, notebookID, envelopes); err != nil {
		return CellPlacement{}, err
	}
	return CellPlacement{
		CellID:           result.NewCellID,
		NeedsRebalancing: result.NeedsRebalancing,
		RebalanceCount:   result.RebalanceCount,
		EventCount:       len(result.Events),
	}, nil
}

// MoveCell repositions an existing cell between the named neighbors. A
// move whose target interval already contains the cell is a no-op.
func (s *Service) MoveCell(ctx context.Context, notebookID, cellID, beforeID, afterID, actorID string) (CellPlacement, error) {
	var result cells.MoveResult
	var opErr error
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		before, after, refs, err := s.resolveNeighbors(st, beforeID, afterID)
		if err != nil {
			opErr = err
			return
		}
		var cell *state.CellReference
		for i := range refs {
			if refs[i].ID == cellID {
				cell = &refs[i]
				break
			}
		}
		if cell == nil {
			opErr = domainError(http.StatusNotFound, "CELL_NOT_FOUND", "Cell not found", map[string]any{"cellId": cellID})
			return
		}
		result, opErr = cells.MoveCellBetweenWithRebalancing(*cell, before, after, refs, actorID, fracindex.SystemSource())
	})
	if err != nil {
		return CellPlacement{}, err
	}
	if opErr != nil {
		return CellPlacement{}, opErr
	}

	placement := CellPlacement{
		CellID:           cellID,
		NeedsRebalancing: result.NeedsRebalancing,
		RebalanceCount:   result.RebalanceCount,
		EventCount:       len(result.Events),
	}
	if len(result.Events) == 0 {
		return placement, nil
	}
	envelopes, err := events.EncodeAll(result.Events)
	if err != nil {
		return CellPlacement{}, err
	}
	if _, err := s.AppendEvents(ctx, notebookID, envelopes); err != nil {
		return CellPlacement{}, err
	}
	return placement, nil
}

func (s *Service) UpdateCellSource(ctx context.Context, notebookID, cellID, source, actorID string) error {
	var opErr error
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		if _, ok := st.GetCell(cellID); !ok {
			opErr = domainError(http.StatusNotFound, "CELL_NOT_FOUND", "Cell not found", map[string]any{"cellId": cellID})
		}
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}
	env, err := events.Encode(&events.CellSourceChanged{ID: cellID, Source: source, ActorID: actorID})
	if err != nil {
		return err
	}
	_, err = s.AppendEvents(ctx, notebookID, []events.Envelope{env})
	return err
}

func (s *Service) DeleteCell(ctx context.Context, notebookID, cellID, actorID string) error {
	var opErr error
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		if _, ok := st.GetCell(cellID); !ok {
			opErr = domainError(http.StatusNotFound, "CELL_NOT_FOUND", "Cell not found", map[string]any{"cellId": cellID})
		}
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}
	env, err := events.Encode(&events.CellDeleted{ID: cellID, ActorID: actorID})
	if err != nil {
		return err
	}
	_, err = s.AppendEvents(ctx, notebookID, []events.Envelope{env})
	return err
}
