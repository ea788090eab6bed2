package app

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"cellar/api/internal/events"
	"cellar/api/internal/export"
	"cellar/api/internal/importer"
	"cellar/api/internal/search"
	"cellar/api/internal/snapshot"
	"cellar/api/internal/state"
	"cellar/api/internal/store"
)

// Import.

// ImportNotebook creates a notebook from an ipynb document: a fresh
// notebook row, then the full imported event sequence in one batch.
func (s *Service) ImportNotebook(ctx context.Context, ownerID string, r io.Reader) (store.Notebook, error) {
	doc, err := importer.Parse(r)
	if err != nil {
		return store.Notebook{}, domainError(http.StatusBadRequest, "INVALID_NOTEBOOK", err.Error(), nil)
	}

	imp := importer.Importer{}
	batch, err := imp.Import(doc)
	if err != nil {
		return store.Notebook{}, domainError(http.StatusBadRequest, "IMPORT_FAILED", err.Error(), nil)
	}

	nb, err := s.CreateNotebook(ctx, "", ownerID)
	if err != nil {
		return store.Notebook{}, err
	}

	envelopes, err := events.EncodeAll(batch)
	if err != nil {
		return store.Notebook{}, err
	}
	if _, err := s.AppendEvents(ctx, nb.ID, envelopes); err != nil {
		return store.Notebook{}, err
	}

	// The import batch carries the real title; pick it up for the listing
	// row without a second title event.
	var title string
	for _, ev := range batch {
		if e, ok := ev.(*events.NotebookTitleChanged); ok {
			title = e.Title
		}
	}
	if title != "" {
		if err := s.store.RenameNotebook(ctx, nb.ID, title); err != nil {
			return store.Notebook{}, err
		}
	}
	return s.store.GetNotebook(ctx, nb.ID)
}

// Export.

// NotebookDocument builds the export view of a notebook. An empty version
// exports the live state; otherwise version names a snapshot commit.
func (s *Service) NotebookDocument(ctx context.Context, notebookID, version string) (export.Document, error) {
	if version != "" && version != "latest" {
		if s.snapshots == nil {
			return export.Document{}, domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "Snapshots are not configured", nil)
		}
		doc, err := s.snapshots.At(notebookID, version)
		if err != nil {
			return export.Document{}, err
		}
		return exportFromSnapshot(notebookID, doc), nil
	}

	var doc export.Document
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		doc = exportFromState(notebookID, st)
	})
	return doc, err
}

func exportFromState(notebookID string, st *state.Store) export.Document {
	info := st.NotebookInfo()
	doc := export.Document{
		ID:     notebookID,
		Title:  info.Title,
		Author: info.OwnerID,
	}
	for _, entry := range st.NotebookMetadata() {
		applyExportMetadata(&doc, entry)
	}
	for _, cell := range st.Cells() {
		exp := export.Cell{
			ID:             cell.ID,
			CellType:       cell.CellType,
			Source:         cell.Source,
			ExecutionCount: cell.ExecutionCount,
		}
		for _, out := range st.OutputsForCell(cell.ID) {
			view := foldOutput(st, out)
			exp.Outputs = append(exp.Outputs, exportOutput(view))
		}
		doc.Cells = append(doc.Cells, exp)
	}
	return doc
}

func exportFromSnapshot(notebookID string, snap snapshot.Document) export.Document {
	doc := export.Document{
		ID:     notebookID,
		Title:  snap.Title,
		Author: snap.Info.OwnerID,
	}
	for _, entry := range snap.Metadata {
		applyExportMetadata(&doc, entry)
	}
	for _, cell := range snap.Cells {
		exp := export.Cell{
			ID:             cell.ID,
			CellType:       cell.CellType,
			Source:         cell.Source,
			ExecutionCount: cell.ExecutionCount,
		}
		for _, out := range snap.Outputs[cell.ID] {
			exp.Outputs = append(exp.Outputs, exportOutput(OutputView{Output: out, Data: out.Data}))
		}
		doc.Cells = append(doc.Cells, exp)
	}
	return doc
}

func applyExportMetadata(doc *export.Document, entry state.MetadataEntry) {
	switch entry.Key {
	case "language":
		doc.Language = entry.Value
	case "kernelspec_display_name":
		doc.Kernel = entry.Value
	}
}

func exportOutput(view OutputView) export.Output {
	out := export.Output{
		Type: view.OutputType,
		Data: view.Data,
	}
	if view.StreamName != nil {
		out.StreamName = *view.StreamName
	}
	if view.MimeType != nil {
		out.MimeType = *view.MimeType
	}
	if view.OutputType == state.OutputTypeError {
		if v, ok := view.Metadata["ename"].(string); ok {
			out.Ename = v
		}
		if v, ok := view.Metadata["evalue"].(string); ok {
			out.Evalue = v
		}
		if lines, ok := view.Metadata["traceback"].([]any); ok {
			for _, line := range lines {
				if v, ok := line.(string); ok {
					out.Traceback = append(out.Traceback, v)
				}
			}
		}
	}
	return out
}

func (s *Service) Export(ctx context.Context, notebookID, version, format string) (*export.Result, error) {
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return nil, err
	}
	return s.exporter.Export(ctx, export.Request{
		NotebookID: notebookID,
		Version:    version,
		Format:     export.Format(format),
	})
}

// Snapshots.

func (s *Service) snapshotDocument(ctx context.Context, notebookID string) (snapshot.Document, error) {
	var doc snapshot.Document
	err := s.withState(ctx, notebookID, func(st *state.Store) {
		info := st.NotebookInfo()
		doc = snapshot.Document{
			Title:    info.Title,
			Info:     info,
			Cells:    st.Cells(),
			Metadata: st.NotebookMetadata(),
			Outputs:  map[string][]state.Output{},
		}
		for _, cell := range doc.Cells {
			outs := st.OutputsForCell(cell.ID)
			if len(outs) > 0 {
				doc.Outputs[cell.ID] = outs
			}
		}
	})
	if err != nil {
		return snapshot.Document{}, err
	}
	entry := s.notebookEntry(notebookID)
	entry.mu.Lock()
	doc.Seq = entry.seq
	entry.mu.Unlock()
	return doc, nil
}

func (s *Service) requireSnapshots() error {
	if s.snapshots == nil {
		return domainError(http.StatusServiceUnavailable, "SNAPSHOTS_UNAVAILABLE", "Snapshots are not configured", nil)
	}
	return nil
}

// CommitSnapshot records the current materialized state as a commit in
// the notebook's snapshot history.
func (s *Service) CommitSnapshot(ctx context.Context, notebookID, author, message string) (snapshot.CommitInfo, error) {
	if err := s.requireSnapshots(); err != nil {
		return snapshot.CommitInfo{}, err
	}
	doc, err := s.snapshotDocument(ctx, notebookID)
	if err != nil {
		return snapshot.CommitInfo{}, err
	}
	if err := s.snapshots.Ensure(notebookID, doc, author); err != nil {
		return snapshot.CommitInfo{}, err
	}
	if message == "" {
		message = fmt.Sprintf("Snapshot at seq %d", doc.Seq)
	}
	return s.snapshots.Commit(notebookID, doc, author, message)
}

func (s *Service) SnapshotHistory(ctx context.Context, notebookID string, limit int) ([]snapshot.CommitInfo, error) {
	if err := s.requireSnapshots(); err != nil {
		return nil, err
	}
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return nil, err
	}
	return s.snapshots.History(notebookID, limit)
}

func (s *Service) SnapshotAt(ctx context.Context, notebookID, hash string) (snapshot.Document, error) {
	if err := s.requireSnapshots(); err != nil {
		return snapshot.Document{}, err
	}
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return snapshot.Document{}, err
	}
	return s.snapshots.At(notebookID, hash)
}

// Artifacts.

func (s *Service) requireArtifacts() error {
	if s.artifacts == nil {
		return domainError(http.StatusServiceUnavailable, "ARTIFACTS_UNAVAILABLE", "Artifact storage is not configured", nil)
	}
	return nil
}

// PutArtifact stores an output payload and returns its content-addressed
// id for use in event representations.
func (s *Service) PutArtifact(ctx context.Context, notebookID, mimeType string, data []byte) (string, error) {
	if err := s.requireArtifacts(); err != nil {
		return "", err
	}
	if _, err := s.store.GetNotebook(ctx, notebookID); err != nil {
		return "", err
	}
	return s.artifacts.Put(ctx, notebookID, mimeType, data)
}

func (s *Service) GetArtifact(ctx context.Context, notebookID, id string) ([]byte, string, error) {
	if err := s.requireArtifacts(); err != nil {
		return nil, "", err
	}
	return s.artifacts.Get(ctx, notebookID, id)
}

// Search.

func (s *Service) Search(q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.search.Search(q), nil
}

// API keys.

type IssuedKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Plaintext string `json:"key"`
}

func (s *Service) IssueAPIKey(ctx context.Context, name string) (IssuedKey, error) {
	if name == "" {
		return IssuedKey{}, domainError(http.StatusBadRequest, "INVALID_NAME", "Key name must not be empty", nil)
	}
	plaintext, key, err := s.keys.Issue(ctx, name)
	if err != nil {
		return IssuedKey{}, err
	}
	return IssuedKey{ID: key.ID, Name: key.Name, Plaintext: plaintext}, nil
}

func (s *Service) ListAPIKeys(ctx context.Context) ([]store.APIKey, error) {
	keys, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, err
	}
	// Hashes never leave the service.
	for i := range keys {
		keys[i].SecretHash = ""
	}
	return keys, nil
}

func (s *Service) RevokeAPIKey(ctx context.Context, id string) error {
	return s.keys.Revoke(ctx, id)
}

func (s *Service) VerifyAPIKey(ctx context.Context, plaintext string) (store.APIKey, error) {
	return s.keys.Verify(ctx, plaintext)
}
