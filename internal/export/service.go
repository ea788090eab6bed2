package export

import (
	"context"
	"fmt"
)

// DataStore loads the materialized notebook to export.
type DataStore interface {
	NotebookDocument(ctx context.Context, notebookID, version string) (Document, error)
}

// Document is the export view of a notebook.
type Document struct {
	ID       string
	Title    string
	Author   string
	Language string
	Kernel   string
	Cells    []Cell
}

// Cell is one cell with its outputs in document order.
type Cell struct {
	ID             string
	CellType       string // "code" or "markdown"
	Source         string
	ExecutionCount *int
	Outputs        []Output
}

// Output is one rendered output row.
type Output struct {
	Type       string // "terminal", "multimedia_result", "multimedia_display", "error"
	StreamName string
	MimeType   string
	Data       string
	Ename      string
	Evalue     string
	Traceback  []string
}

// Service provides notebook export functionality.
type Service struct {
	store DataStore
}

// NewService creates a new export service.
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	doc, err := s.store.NotebookDocument(ctx, req.NotebookID, req.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	switch req.Format {
	case FormatIpynb:
		data, err := RenderIpynb(doc)
		if err != nil {
			return nil, fmt.Errorf("render ipynb: %w", err)
		}
		return &Result{
			Data:     data,
			Filename: sanitizeFilename(doc.Title) + ".ipynb",
			MimeType: "application/x-ipynb+json",
		}, nil
	case FormatHTML:
		html, err := RenderNotebookHTML(templateData(doc))
		if err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(doc.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		html, err := RenderNotebookHTML(templateData(doc))
		if err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		return exportPDF(html, doc.Title)
	case FormatDOCX:
		html, err := RenderNotebookHTML(templateData(doc))
		if err != nil {
			return nil, fmt.Errorf("render html: %w", err)
		}
		return exportDOCX(html, doc.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
