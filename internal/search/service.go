package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to
// the in-memory index. Every write goes to both so the fallback stays
// warm.
type Service struct {
	meili  *Meili
	memory *Memory
}

// NewService creates a search service. meili may be nil if Meilisearch
// is not configured.
func NewService(meili *Meili, memory *Memory) *Service {
	if memory == nil {
		memory = NewMemory()
	}
	return &Service{meili: meili, memory: memory}
}

// Search tries Meilisearch if healthy, otherwise the in-memory index.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to memory: %v", err)
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		log.Printf("search: memory fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexNotebook indexes a notebook (fire-and-forget to Meilisearch).
func (s *Service) IndexNotebook(nb NotebookRecord) {
	_ = s.memory.IndexNotebook(nb)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNotebook(nb); err != nil {
			log.Printf("search: index notebook %s: %v", nb.ID, err)
		}
	}()
}

// IndexCell indexes a cell (fire-and-forget to Meilisearch).
func (s *Service) IndexCell(c CellRecord) {
	_ = s.memory.IndexCell(c)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexCell(c); err != nil {
			log.Printf("search: index cell %s: %v", c.UID, err)
		}
	}()
}

// DeleteCell removes a cell from both indexes (fire-and-forget).
func (s *Service) DeleteCell(uid string) {
	_ = s.memory.DeleteCell(uid)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteCell(uid); err != nil {
			log.Printf("search: delete cell %s: %v", uid, err)
		}
	}()
}

// DeleteNotebook removes a notebook and its cells from both indexes.
func (s *Service) DeleteNotebook(id string) {
	_ = s.memory.DeleteNotebook(id)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteNotebook(id); err != nil {
			log.Printf("search: delete notebook %s: %v", id, err)
		}
	}()
}

// ReindexNotebook bulk-pushes a notebook's current cells, used after a
// replay rebuild.
func (s *Service) ReindexNotebook(nb NotebookRecord, cells []CellRecord) {
	_ = s.memory.IndexNotebook(nb)
	for _, c := range cells {
		_ = s.memory.IndexCell(c)
	}
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNotebook(nb); err != nil {
			log.Printf("search: reindex notebook %s: %v", nb.ID, err)
		}
		if err := s.meili.IndexCells(cells); err != nil {
			log.Printf("search: reindex cells for %s: %v", nb.ID, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
