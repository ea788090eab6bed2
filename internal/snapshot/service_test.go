package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"cellar/api/internal/state"
)

func sampleDocument(title string, seq int64) Document {
	idx := "m"
	cell := state.NewCell("c1")
	cell.FractionalIndex = &idx
	cell.CellType = state.CellTypeCode
	cell.Source = "print('hello')"
	return Document{
		Title: title,
		Info:  state.NotebookInfo{Title: title, OwnerID: "anonymous", RuntimeType: "python3"},
		Cells: []state.Cell{cell},
		Seq:   seq,
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	initial := sampleDocument("Analysis", 1)
	if err := svc.Ensure("nb-1", initial, "Avery"); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "nb-1")); err != nil {
		t.Fatalf("repo directory missing: %v", err)
	}
	// Ensure is idempotent.
	if err := svc.Ensure("nb-1", initial, "Avery"); err != nil {
		t.Fatalf("second Ensure() error = %v", err)
	}

	updated := sampleDocument("Analysis v2", 5)
	commit, err := svc.Commit("nb-1", updated, "Avery", "After import")
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if commit.Hash == "" {
		t.Fatal("expected commit hash")
	}

	head, headCommit, err := svc.Head("nb-1")
	if err != nil {
		t.Fatalf("Head() error = %v", err)
	}
	if head.Title != "Analysis v2" || head.Seq != 5 {
		t.Fatalf("head = %+v", head)
	}
	if headCommit.Hash != commit.Hash {
		t.Errorf("head commit = %s, want %s", headCommit.Hash, commit.Hash)
	}

	history, err := svc.History("nb-1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0].Hash != commit.Hash {
		t.Errorf("history not newest first: %+v", history)
	}

	baseline, err := svc.At("nb-1", history[1].Hash)
	if err != nil {
		t.Fatalf("At() error = %v", err)
	}
	if baseline.Title != "Analysis" || baseline.Seq != 1 {
		t.Fatalf("baseline = %+v", baseline)
	}
}

func TestAtWithAbbreviatedHash(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.Ensure("nb-1", sampleDocument("Short", 1), "Avery"); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	history, err := svc.History("nb-1", 1)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}

	doc, err := svc.At("nb-1", history[0].Hash[:8])
	if err != nil {
		t.Fatalf("At() with short hash error = %v", err)
	}
	if doc.Title != "Short" {
		t.Fatalf("doc = %+v", doc)
	}
}

func TestHeadOnMissingNotebook(t *testing.T) {
	svc := New(t.TempDir())
	if _, _, err := svc.Head("nope"); err == nil {
		t.Fatal("expected error for missing repo")
	}
}
