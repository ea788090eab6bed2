package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) CreateNotebook(ctx context.Context, id, title, ownerID string) (Notebook, error) {
	const insert = `
		INSERT INTO notebooks (id, title, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, title, owner_id, created_at, updated_at
	`
	var nb Notebook
	err := s.db.QueryRowContext(ctx, insert, id, title, ownerID).
		Scan(&nb.ID, &nb.Title, &nb.OwnerID, &nb.CreatedAt, &nb.UpdatedAt)
	if err != nil {
		return Notebook{}, fmt.Errorf("insert notebook: %w", err)
	}
	return nb, nil
}

func (s *PostgresStore) GetNotebook(ctx context.Context, id string) (Notebook, error) {
	const query = `
		SELECT n.id, n.title, n.owner_id, n.created_at, n.updated_at,
			COALESCE((SELECT MAX(seq) FROM notebook_events e WHERE e.notebook_id = n.id), 0)
		FROM notebooks n
		WHERE n.id = $1
	`
	var nb Notebook
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&nb.ID, &nb.Title, &nb.OwnerID, &nb.CreatedAt, &nb.UpdatedAt, &nb.EventCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Notebook{}, ErrNotFound
	}
	if err != nil {
		return Notebook{}, fmt.Errorf("lookup notebook: %w", err)
	}
	return nb, nil
}

func (s *PostgresStore) ListNotebooks(ctx context.Context) ([]Notebook, error) {
	const query = `
		SELECT n.id, n.title, n.owner_id, n.created_at, n.updated_at,
			COALESCE((SELECT MAX(seq) FROM notebook_events e WHERE e.notebook_id = n.id), 0)
		FROM notebooks n
		ORDER BY n.updated_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list notebooks: %w", err)
	}
	defer rows.Close()

	var out []Notebook
	for rows.Next() {
		var nb Notebook
		if err := rows.Scan(&nb.ID, &nb.Title, &nb.OwnerID, &nb.CreatedAt, &nb.UpdatedAt, &nb.EventCount); err != nil {
			return nil, fmt.Errorf("scan notebook: %w", err)
		}
		out = append(out, nb)
	}
	return out, rows.Err()
}

func (s *PostgresStore) RenameNotebook(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notebooks SET title=$2, updated_at=NOW() WHERE id=$1`, id, title)
	if err != nil {
		return fmt.Errorf("rename notebook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteNotebook(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notebooks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete notebook: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendEvents writes a batch to a notebook's log inside one transaction.
// The notebook row is locked so concurrent appenders serialize and seq
// stays contiguous. Returns the stored records with their assigned seqs.
func (s *PostgresStore) AppendEvents(ctx context.Context, notebookID string, events []EventRecord) ([]EventRecord, error) {
	if len(events) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT TRUE FROM notebooks WHERE id=$1 FOR UPDATE`, notebookID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock notebook: %w", err)
	}

	var last int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM notebook_events WHERE notebook_id=$1`, notebookID,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("read last seq: %w", err)
	}

	const insert = `
		INSERT INTO notebook_events (notebook_id, seq, name, args)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	out := make([]EventRecord, len(events))
	for i, ev := range events {
		rec := EventRecord{
			NotebookID: notebookID,
			Seq:        last + int64(i) + 1,
			Name:       ev.Name,
			Args:       ev.Args,
		}
		if rec.Args == nil {
			rec.Args = json.RawMessage(`{}`)
		}
		if err := tx.QueryRowContext(ctx, insert, rec.NotebookID, rec.Seq, rec.Name, []byte(rec.Args)).
			Scan(&rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert event seq %d: %w", rec.Seq, err)
		}
		out[i] = rec
	}

	if _, err := tx.ExecContext(ctx, `UPDATE notebooks SET updated_at=NOW() WHERE id=$1`, notebookID); err != nil {
		return nil, fmt.Errorf("touch notebook: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append tx: %w", err)
	}
	return out, nil
}

// ListEvents returns a notebook's events with seq > afterSeq in append
// order. limit <= 0 means all.
func (s *PostgresStore) ListEvents(ctx context.Context, notebookID string, afterSeq int64, limit int) ([]EventRecord, error) {
	query := `
		SELECT notebook_id, seq, name, args, created_at
		FROM notebook_events
		WHERE notebook_id=$1 AND seq > $2
		ORDER BY seq ASC
	`
	args := []any{notebookID, afterSeq}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var raw []byte
		if err := rows.Scan(&rec.NotebookID, &rec.Seq, &rec.Name, &raw, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Args = json.RawMessage(raw)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertAPIKey(ctx context.Context, key APIKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, name, secret_hash)
		VALUES ($1, $2, $3)
	`, key.ID, key.Name, key.SecretHash)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAPIKey(ctx context.Context, id string) (APIKey, error) {
	var key APIKey
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, secret_hash, created_at, last_used_at FROM api_keys WHERE id=$1
	`, id).Scan(&key.ID, &key.Name, &key.SecretHash, &key.CreatedAt, &key.LastUsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return APIKey{}, ErrNotFound
	}
	if err != nil {
		return APIKey{}, fmt.Errorf("lookup api key: %w", err)
	}
	return key, nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, secret_hash, created_at, last_used_at FROM api_keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var out []APIKey
	for rows.Next() {
		var key APIKey
		if err := rows.Scan(&key.ID, &key.Name, &key.SecretHash, &key.CreatedAt, &key.LastUsedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TouchAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at=NOW() WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAPIKey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_keys WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
