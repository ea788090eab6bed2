package search

import (
	"sort"
	"strings"
	"sync"
)

// Memory is the in-process fallback index. It mirrors everything the
// primary index receives, so a Meilisearch outage degrades matching
// quality (substring instead of ranked full text) without losing the
// endpoint.
type Memory struct {
	mu        sync.RWMutex
	notebooks map[string]NotebookRecord
	cells     map[string]CellRecord
}

func NewMemory() *Memory {
	return &Memory{
		notebooks: make(map[string]NotebookRecord),
		cells:     make(map[string]CellRecord),
	}
}

func (m *Memory) Healthy() bool { return true }

func (m *Memory) IndexNotebook(nb NotebookRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notebooks[nb.ID] = nb
	return nil
}

func (m *Memory) IndexCell(c CellRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells[c.UID] = c
	return nil
}

func (m *Memory) DeleteCell(uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cells, uid)
	return nil
}

func (m *Memory) DeleteNotebook(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.notebooks, id)
	prefix := id + "-"
	for uid := range m.cells {
		if strings.HasPrefix(uid, prefix) {
			delete(m.cells, uid)
		}
	}
	return nil
}

// Search does case-insensitive substring matching over titles and cell
// sources.
func (m *Memory) Search(q Query) ([]Result, int, error) {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	if needle == "" {
		return nil, 0, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []Result
	if q.FilterType == "" || q.FilterType == ResultNotebook {
		for _, nb := range m.notebooks {
			if strings.Contains(strings.ToLower(nb.Title), needle) {
				results = append(results, Result{
					Type:       ResultNotebook,
					ID:         nb.ID,
					NotebookID: nb.ID,
					Title:      nb.Title,
				})
			}
		}
	}
	if q.FilterType == "" || q.FilterType == ResultCell {
		for _, c := range m.cells {
			if q.FilterNotebookID != "" && c.NotebookID != q.FilterNotebookID {
				continue
			}
			if strings.Contains(strings.ToLower(c.Source), needle) {
				results = append(results, Result{
					Type:       ResultCell,
					ID:         c.CellID,
					NotebookID: c.NotebookID,
					CellType:   c.CellType,
					Snippet:    snippet(c.Source, needle),
				})
			}
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Type != results[j].Type {
			return results[i].Type < results[j].Type
		}
		return results[i].ID < results[j].ID
	})

	total := len(results)
	if q.Offset > 0 {
		if q.Offset >= len(results) {
			results = nil
		} else {
			results = results[q.Offset:]
		}
	}
	limit := q.Limit
	if limit == 0 {
		limit = 20
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, total, nil
}

// snippet trims the source down to a window around the first match.
func snippet(source, needle string) string {
	const window = 60
	idx := strings.Index(strings.ToLower(source), needle)
	if idx < 0 {
		idx = 0
	}
	start := idx - window/2
	if start < 0 {
		start = 0
	}
	end := start + window + len(needle)
	if end > len(source) {
		end = len(source)
	}
	out := source[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(source) {
		out += "..."
	}
	return out
}
