package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cellar/api/internal/apikey"
	"cellar/api/internal/events"
	"cellar/api/internal/export"
	"cellar/api/internal/fracindex"
	"cellar/api/internal/search"
	"cellar/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/import" {
		if !s.authorize(w, r) {
			return
		}
		s.handleImport(w, r)
		return
	}

	if r.URL.Path == "/api/keys" || strings.HasPrefix(r.URL.Path, "/api/keys/") {
		s.handleKeys(w, r)
		return
	}

	if r.URL.Path == "/api/notebooks" || strings.HasPrefix(r.URL.Path, "/api/notebooks/") {
		s.handleNotebooks(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}

	if broker := s.service.broker; broker != nil {
		checks["redis"] = map[string]any{"status": "ok"}
		if err := broker.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := search.Query{
		Text:             q.Get("q"),
		FilterNotebookID: q.Get("notebookId"),
		Limit:            intQuery(q.Get("limit"), 0),
		Offset:           intQuery(q.Get("offset"), 0),
	}
	switch q.Get("type") {
	case "notebook":
		query.FilterType = search.ResultNotebook
	case "cell":
		query.FilterType = search.ResultCell
	}
	resp, err := s.service.Search(query)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleImport accepts an ipynb document either as the raw request body
// or as a multipart upload under the "file" field.
func (s *HTTPServer) handleImport(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var body io.Reader = http.MaxBytesReader(w, r.Body, 32<<20)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "Missing file field", nil)
			return
		}
		defer file.Close()
		body = file
	}
	nb, err := s.service.ImportNotebook(r.Context(), actorID(r), body)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, notebookPayload(nb))
}

func (s *HTTPServer) handleKeys(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	// parts: ["api", "keys", {id}?]

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			keys, err := s.service.ListAPIKeys(r.Context())
			if err != nil {
				respondError(w, err)
				return
			}
			payload := make([]map[string]any, 0, len(keys))
			for _, key := range keys {
				payload = append(payload, keyPayload(key))
			}
			writeJSON(w, http.StatusOK, map[string]any{"keys": payload})
			return
		case http.MethodPost:
			if !s.authorize(w, r) {
				return
			}
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			issued, err := s.service.IssueAPIKey(r.Context(), body.Name)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, issued)
			return
		}
	}

	if len(parts) == 3 && r.Method == http.MethodDelete {
		if !s.authorize(w, r) {
			return
		}
		if err := s.service.RevokeAPIKey(r.Context(), parts[2]); err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleNotebooks(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	// parts: ["api", "notebooks", {id}?, ...]

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			notebooks, err := s.service.ListNotebooks(r.Context())
			if err != nil {
				respondError(w, err)
				return
			}
			payload := make([]map[string]any, 0, len(notebooks))
			for _, nb := range notebooks {
				payload = append(payload, notebookPayload(nb))
			}
			writeJSON(w, http.StatusOK, map[string]any{"notebooks": payload})
			return
		case http.MethodPost:
			if !s.authorize(w, r) {
				return
			}
			var body struct {
				Title   string `json:"title"`
				OwnerID string `json:"ownerId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			owner := body.OwnerID
			if owner == "" {
				owner = actorID(r)
			}
			nb, err := s.service.CreateNotebook(r.Context(), body.Title, owner)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, notebookPayload(nb))
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	notebookID := parts[2]

	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			nb, err := s.service.GetNotebook(r.Context(), notebookID)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, notebookPayload(nb))
			return
		case http.MethodPut:
			if !s.authorize(w, r) {
				return
			}
			var body struct {
				Title string `json:"title"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			nb, err := s.service.RenameNotebook(r.Context(), notebookID, body.Title)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, notebookPayload(nb))
			return
		case http.MethodDelete:
			if !s.authorize(w, r) {
				return
			}
			if err := s.service.DeleteNotebook(r.Context(), notebookID); err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	switch parts[3] {
	case "state":
		if r.Method == http.MethodGet && len(parts) == 4 {
			view, err := s.service.NotebookState(r.Context(), notebookID)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, view)
			return
		}
	case "events":
		if len(parts) == 4 {
			s.handleEvents(w, r, notebookID)
			return
		}
	case "stream":
		if r.Method == http.MethodGet && len(parts) == 4 {
			s.handleStream(w, r, notebookID)
			return
		}
	case "sessions":
		if r.Method == http.MethodGet && len(parts) == 4 {
			sessions, err := s.service.RuntimeSessions(r.Context(), notebookID)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
			return
		}
	case "metadata":
		if r.Method == http.MethodGet && len(parts) == 4 {
			entries, err := s.service.NotebookMetadata(r.Context(), notebookID)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"metadata": entries})
			return
		}
	case "presence":
		if r.Method == http.MethodGet && len(parts) == 4 {
			entries, err := s.service.Presence(r.Context(), notebookID)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"presence": entries})
			return
		}
	case "export":
		if r.Method == http.MethodGet && len(parts) == 4 {
			s.handleExport(w, r, notebookID)
			return
		}
	case "snapshots":
		s.handleSnapshots(w, r, notebookID, parts)
		return
	case "artifacts":
		s.handleArtifacts(w, r, notebookID, parts)
		return
	case "cells":
		s.handleCells(w, r, notebookID, parts)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request, notebookID string) {
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		after := int64(intQuery(q.Get("after"), 0))
		limit := intQuery(q.Get("limit"), 0)
		records, err := s.service.Events(r.Context(), notebookID, after, limit)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": eventPayload(records)})
		return
	case http.MethodPost:
		if !s.authorize(w, r) {
			return
		}
		var body struct {
			Events []struct {
				Name string          `json:"name"`
				Args json.RawMessage `json:"args"`
			} `json:"events"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		envelopes := make([]events.Envelope, 0, len(body.Events))
		for _, ev := range body.Events {
			envelopes = append(envelopes, events.Envelope{Name: ev.Name, Args: ev.Args})
		}
		records, err := s.service.AppendEvents(r.Context(), notebookID, envelopes)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"events": eventPayload(records)})
		return
	}
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

// handleStream serves the live event feed over server-sent events.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request, notebookID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAM_UNSUPPORTED", "Streaming unsupported", nil)
		return
	}

	messages, cancel, err := s.service.Subscribe(r.Context(), notebookID)
	if err != nil {
		respondError(w, err)
		return
	}
	defer cancel()

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, open := <-messages:
			if !open {
				return
			}
			payload, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: notebook\ndata: %s\n\n", msg.Seq, payload)
			flusher.Flush()
		}
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, notebookID string) {
	q := r.URL.Query()
	format := q.Get("format")
	if format == "" {
		format = "ipynb"
	}
	result, err := s.service.Export(r.Context(), notebookID, q.Get("version"), format)
	if err != nil {
		respondError(w, err)
		return
	}
	header := w.Header()
	header.Set("Content-Type", result.MimeType)
	header.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSnapshots(w http.ResponseWriter, r *http.Request, notebookID string, parts []string) {
	// parts: ["api", "notebooks", {id}, "snapshots", {hash}?]
	if len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			limit := intQuery(r.URL.Query().Get("limit"), 50)
			history, err := s.service.SnapshotHistory(r.Context(), notebookID, limit)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"snapshots": history})
			return
		case http.MethodPost:
			if !s.authorize(w, r) {
				return
			}
			var body struct {
				Author  string `json:"author"`
				Message string `json:"message"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			author := body.Author
			if author == "" {
				author = actorID(r)
			}
			commit, err := s.service.CommitSnapshot(r.Context(), notebookID, author, body.Message)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, commit)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 5 && r.Method == http.MethodGet {
		doc, err := s.service.SnapshotAt(r.Context(), notebookID, parts[4])
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleArtifacts(w http.ResponseWriter, r *http.Request, notebookID string, parts []string) {
	// parts: ["api", "notebooks", {id}, "artifacts", {artifactID}?]
	if len(parts) == 4 && r.Method == http.MethodPost {
		if !s.authorize(w, r) {
			return
		}
		defer r.Body.Close()
		data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 64<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "Body too large or unreadable", nil)
			return
		}
		mimeType := r.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		id, err := s.service.PutArtifact(r.Context(), notebookID, mimeType, data)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"artifactId": id})
		return
	}

	if len(parts) == 5 && r.Method == http.MethodGet {
		data, mimeType, err := s.service.GetArtifact(r.Context(), notebookID, parts[4])
		if err != nil {
			respondError(w, err)
			return
		}
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", mimeType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleCells(w http.ResponseWriter, r *http.Request, notebookID string, parts []string) {
	// parts: ["api", "notebooks", {id}, "cells", ...]
	if len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			refs, err := s.service.CellReferences(r.Context(), notebookID)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"cells": refs})
			return
		case http.MethodPost:
			if !s.authorize(w, r) {
				return
			}
			var body struct {
				CellType string `json:"cellType"`
				BeforeID string `json:"beforeId"`
				AfterID  string `json:"afterId"`
				ActorID  string `json:"actorId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			creator := body.ActorID
			if creator == "" {
				creator = actorID(r)
			}
			placement, err := s.service.CreateCell(r.Context(), notebookID, CreateCellRequest{
				CellType:  body.CellType,
				CreatedBy: creator,
				BeforeID:  body.BeforeID,
				AfterID:   body.AfterID,
			})
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, placement)
			return
		}
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}

	if len(parts) == 5 && r.Method == http.MethodGet {
		q := r.URL.Query()
		switch parts[4] {
		case "order":
			order, err := s.service.CellOrdering(r.Context(), notebookID)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"cells": order})
			return
		case "before":
			refs, err := s.service.CellsBefore(r.Context(), notebookID, q.Get("index"), intQuery(q.Get("limit"), 0))
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"cells": refs})
			return
		case "after":
			refs, err := s.service.CellsAfter(r.Context(), notebookID, q.Get("index"), intQuery(q.Get("limit"), 0))
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"cells": refs})
			return
		case "range":
			var start, end *string
			if v := q.Get("start"); v != "" {
				start = &v
			}
			if v := q.Get("end"); v != "" {
				end = &v
			}
			refs, err := s.service.CellsInRange(r.Context(), notebookID, start, end)
			if err != nil {
				respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"cells": refs})
			return
		}
	}

	if len(parts) >= 5 {
		cellID := parts[4]

		if len(parts) == 5 {
			switch r.Method {
			case http.MethodGet:
				cell, err := s.service.GetCell(r.Context(), notebookID, cellID)
				if err != nil {
					respondError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, cell)
				return
			case http.MethodPut:
				if !s.authorize(w, r) {
					return
				}
				var body struct {
					Source  string `json:"source"`
					ActorID string `json:"actorId"`
				}
				if err := decodeBody(r, &body); err != nil {
					writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
					return
				}
				if err := s.service.UpdateCellSource(r.Context(), notebookID, cellID, body.Source, body.ActorID); err != nil {
					respondError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"updated": true})
				return
			case http.MethodDelete:
				if !s.authorize(w, r) {
					return
				}
				if err := s.service.DeleteCell(r.Context(), notebookID, cellID, actorID(r)); err != nil {
					respondError(w, err)
					return
				}
				writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
				return
			}
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}

		if len(parts) == 6 {
			switch parts[5] {
			case "move":
				if r.Method == http.MethodPost {
					if !s.authorize(w, r) {
						return
					}
					var body struct {
						BeforeID string `json:"beforeId"`
						AfterID  string `json:"afterId"`
						ActorID  string `json:"actorId"`
					}
					if err := decodeBody(r, &body); err != nil {
						writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
						return
					}
					actor := body.ActorID
					if actor == "" {
						actor = actorID(r)
					}
					placement, err := s.service.MoveCell(r.Context(), notebookID, cellID, body.BeforeID, body.AfterID, actor)
					if err != nil {
						respondError(w, err)
						return
					}
					writeJSON(w, http.StatusOK, placement)
					return
				}
			case "outputs":
				if r.Method == http.MethodGet {
					outputs, err := s.service.OutputsForCell(r.Context(), notebookID, cellID)
					if err != nil {
						respondError(w, err)
						return
					}
					writeJSON(w, http.StatusOK, map[string]any{"outputs": outputs})
					return
				}
			case "queue":
				if r.Method == http.MethodGet {
					queue, err := s.service.ExecutionQueueForCell(r.Context(), notebookID, cellID)
					if err != nil {
						respondError(w, err)
						return
					}
					writeJSON(w, http.StatusOK, map[string]any{"queue": queue})
					return
				}
			case "neighbors":
				if r.Method == http.MethodGet {
					before, after, err := s.service.AdjacentCells(r.Context(), notebookID, cellID)
					if err != nil {
						respondError(w, err)
						return
					}
					writeJSON(w, http.StatusOK, map[string]any{"before": before, "after": after})
					return
				}
			}
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// authorize enforces the API key requirement on mutating endpoints. With
// the requirement disabled every caller passes.
func (s *HTTPServer) authorize(w http.ResponseWriter, r *http.Request) bool {
	if !s.service.cfg.RequireAPIKey {
		return true
	}
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return false
	}
	if _, err := s.service.VerifyAPIKey(r.Context(), token); err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return false
	}
	return true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-Actor-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func respondError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// actorID attributes a request to an actor for event authorship. Clients
// pass their collaborator id; anonymous requests get a stable default.
func actorID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Actor-ID")); v != "" {
		return v
	}
	return "anonymous"
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func intQuery(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func notebookPayload(nb store.Notebook) map[string]any {
	return map[string]any{
		"id":         nb.ID,
		"title":      nb.Title,
		"ownerId":    nb.OwnerID,
		"eventCount": nb.EventCount,
		"createdAt":  nb.CreatedAt,
		"updatedAt":  nb.UpdatedAt,
	}
}

func eventPayload(records []store.EventRecord) []map[string]any {
	out := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		out = append(out, map[string]any{
			"seq":       rec.Seq,
			"name":      rec.Name,
			"args":      rec.Args,
			"createdAt": rec.CreatedAt,
		})
	}
	return out
}

func keyPayload(key store.APIKey) map[string]any {
	return map[string]any{
		"id":         key.ID,
		"name":       key.Name,
		"createdAt":  key.CreatedAt,
		"lastUsedAt": key.LastUsedAt,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, apikey.ErrInvalidKey) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, fracindex.ErrInvalidCharacter) || errors.Is(err, fracindex.ErrInvalidRange) {
		return http.StatusBadRequest, "INVALID_INDEX", err.Error(), nil
	}
	if errors.Is(err, export.ErrContentUnavailable) {
		return http.StatusNotFound, "NOT_FOUND", "Notebook content unavailable", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export dependency missing", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
