// Package export renders notebooks to interchange formats: nbformat 4
// JSON, standalone HTML, PDF and DOCX.
package export

import "errors"

// Format represents the export output format.
type Format string

const (
	FormatIpynb Format = "ipynb"
	FormatHTML  Format = "html"
	FormatPDF   Format = "pdf"
	FormatDOCX  Format = "docx"
)

// Request contains parameters for an export operation.
type Request struct {
	NotebookID string
	Version    string // "latest" or snapshot hash
	Format     Format
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrContentUnavailable indicates notebook content could not be loaded for export.
	ErrContentUnavailable = errors.New("export content unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
