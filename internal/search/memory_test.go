package search

import "testing"

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	_ = m.IndexNotebook(NotebookRecord{ID: "nb1", Title: "Sales Analysis"})
	_ = m.IndexNotebook(NotebookRecord{ID: "nb2", Title: "Scratch"})
	_ = m.IndexCell(CellRecord{UID: CellUID("nb1", "c1"), CellID: "c1", NotebookID: "nb1", CellType: "code", Source: "df = load_sales()"})
	_ = m.IndexCell(CellRecord{UID: CellUID("nb1", "c2"), CellID: "c2", NotebookID: "nb1", CellType: "markdown", Source: "# Sales overview"})
	_ = m.IndexCell(CellRecord{UID: CellUID("nb2", "c3"), CellID: "c3", NotebookID: "nb2", CellType: "code", Source: "print('hi')"})
	return m
}

func TestMemorySearchMatchesTitlesAndSources(t *testing.T) {
	m := seedMemory(t)

	results, total, err := m.Search(Query{Text: "sales"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	var notebooks, cells int
	for _, r := range results {
		switch r.Type {
		case ResultNotebook:
			notebooks++
		case ResultCell:
			cells++
		}
	}
	if notebooks != 1 || cells != 2 {
		t.Errorf("hits = %d notebooks, %d cells", notebooks, cells)
	}
}

func TestMemorySearchFilters(t *testing.T) {
	m := seedMemory(t)

	results, _, err := m.Search(Query{Text: "sales", FilterType: ResultCell, FilterNotebookID: "nb1"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, r := range results {
		if r.Type != ResultCell || r.NotebookID != "nb1" {
			t.Errorf("unexpected hit %+v", r)
		}
	}

	if results, _, _ := m.Search(Query{Text: "hi", FilterNotebookID: "nb1", FilterType: ResultCell}); len(results) != 0 {
		t.Errorf("filter leaked across notebooks: %v", results)
	}
}

func TestMemoryDeleteNotebookDropsCells(t *testing.T) {
	m := seedMemory(t)
	_ = m.DeleteNotebook("nb1")

	if results, _, _ := m.Search(Query{Text: "sales"}); len(results) != 0 {
		t.Errorf("deleted notebook still searchable: %v", results)
	}
	if results, _, _ := m.Search(Query{Text: "hi"}); len(results) != 1 {
		t.Errorf("unrelated notebook affected: %v", results)
	}
}

func TestServiceFallsBackWithoutMeili(t *testing.T) {
	svc := NewService(nil, nil)
	svc.IndexCell(CellRecord{UID: CellUID("nb1", "c1"), CellID: "c1", NotebookID: "nb1", CellType: "code", Source: "import pandas"})

	resp := svc.Search(Query{Text: "pandas"})
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Results[0].ID != "c1" {
		t.Errorf("hit = %+v", resp.Results[0])
	}
}
