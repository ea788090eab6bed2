package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultNotebook ResultType = "notebook"
	ResultCell     ResultType = "cell"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	NotebookID string     `json:"notebookId"`
	CellType   string     `json:"cellType,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterNotebookID string
	Limit            int
	Offset           int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexNotebook(nb NotebookRecord) error
	IndexCell(c CellRecord) error
	DeleteCell(uid string) error
	DeleteNotebook(id string) error
}

// NotebookRecord is the data we index for a notebook.
type NotebookRecord struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	OwnerID string `json:"ownerId"`
}

// CellRecord is the data we index for a cell. UID is notebook id and
// cell id joined, unique across notebooks.
type CellRecord struct {
	UID        string `json:"uid"`
	CellID     string `json:"cellId"`
	NotebookID string `json:"notebookId"`
	CellType   string `json:"cellType"`
	Source     string `json:"source"`
}

// CellUID builds the index-wide unique id for a cell.
func CellUID(notebookID, cellID string) string {
	return notebookID + "-" + cellID
}
