package store

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"cellar/api/internal/util"
)

// These tests need a real Postgres with the migrations applied. They skip
// in short mode and use TEST_DATABASE_URL or the standard Postgres
// environment variables.

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()

	if url := getenv("TEST_DATABASE_URL", ""); url != "" {
		return url
	}

	host := getenv("POSTGRES_HOST", "localhost")
	port := getenv("POSTGRES_PORT", "5432")
	user := getenv("POSTGRES_USER", "cellar")
	pass := getenv("POSTGRES_PASSWORD", "cellar")
	dbname := getenv("POSTGRES_DB", "cellar_test")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + dbname + "?sslmode=disable"
}

func getenv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	db, err := Open(ctx, getTestDatabaseURL(t))
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := ApplyMigrations(ctx, db, "../../db/migrations"); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db)
}

func TestAppendAndListEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	nb, err := s.CreateNotebook(ctx, util.NewID("nb"), "Test", "anonymous")
	if err != nil {
		t.Fatalf("create notebook: %v", err)
	}
	defer func() { _ = s.DeleteNotebook(ctx, nb.ID) }()

	batch := []EventRecord{
		{Name: "v2.CellCreated", Args: json.RawMessage(`{"id":"c1","fractionalIndex":"m","cellType":"code"}`)},
		{Name: "v1.CellSourceChanged", Args: json.RawMessage(`{"id":"c1","source":"print(1)"}`)},
	}
	stored, err := s.AppendEvents(ctx, nb.ID, batch)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(stored) != 2 || stored[0].Seq != 1 || stored[1].Seq != 2 {
		t.Fatalf("assigned seqs = %v", stored)
	}

	// A second batch continues the sequence.
	more, err := s.AppendEvents(ctx, nb.ID, []EventRecord{{Name: "v1.CellDeleted", Args: json.RawMessage(`{"id":"c1"}`)}})
	if err != nil {
		t.Fatalf("append second batch: %v", err)
	}
	if more[0].Seq != 3 {
		t.Errorf("second batch seq = %d, want 3", more[0].Seq)
	}

	evs, err := s.ListEvents(ctx, nb.ID, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(evs) != 3 || evs[0].Name != "v2.CellCreated" || evs[2].Seq != 3 {
		t.Fatalf("listed = %v", evs)
	}

	tail, err := s.ListEvents(ctx, nb.ID, 2, 0)
	if err != nil {
		t.Fatalf("list tail: %v", err)
	}
	if len(tail) != 1 || tail[0].Seq != 3 {
		t.Errorf("tail = %v", tail)
	}

	got, err := s.GetNotebook(ctx, nb.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EventCount != 3 {
		t.Errorf("event count = %d, want 3", got.EventCount)
	}
}

func TestAppendToMissingNotebook(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.AppendEvents(ctx, "nb_missing", []EventRecord{{Name: "v1.DebugLogged"}})
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEventLogRejectsUpdates(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	nb, err := s.CreateNotebook(ctx, util.NewID("nb"), "Immutable", "anonymous")
	if err != nil {
		t.Fatalf("create notebook: %v", err)
	}
	defer func() { _ = s.DeleteNotebook(ctx, nb.ID) }()

	if _, err := s.AppendEvents(ctx, nb.ID, []EventRecord{{Name: "v1.DebugLogged"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	_, err = s.DB().ExecContext(ctx,
		`UPDATE notebook_events SET name='tampered' WHERE notebook_id=$1`, nb.ID)
	if err == nil {
		t.Fatal("update on notebook_events succeeded, trigger missing")
	}
}
