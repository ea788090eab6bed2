package export

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func intptr(n int) *int { return &n }

func sampleDoc() Document {
	return Document{
		ID:       "nb1",
		Title:    "Sales Report",
		Author:   "Avery",
		Language: "python",
		Kernel:   "python3",
		Cells: []Cell{
			{ID: "c1", CellType: "markdown", Source: "# Sales\nQuarterly numbers."},
			{
				ID:             "c2",
				CellType:       "code",
				Source:         "print('total')\nresult",
				ExecutionCount: intptr(3),
				Outputs: []Output{
					{Type: "terminal", StreamName: "stdout", Data: "total\n"},
					{Type: "multimedia_result", MimeType: "text/plain", Data: "42"},
				},
			},
			{
				ID:       "c3",
				CellType: "code",
				Source:   "1/0",
				Outputs: []Output{
					{Type: "error", Ename: "ZeroDivisionError", Evalue: "division by zero", Traceback: []string{"tb line"}},
				},
			},
		},
	}
}

func TestSplitLines(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"one line", []string{"one line"}},
		{"a\nb", []string{"a\n", "b"}},
		{"trailing\n", []string{"trailing\n"}},
	}
	for _, tc := range cases {
		if got := splitLines(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitLines(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRenderIpynb(t *testing.T) {
	data, err := RenderIpynb(sampleDoc())
	if err != nil {
		t.Fatalf("RenderIpynb() error = %v", err)
	}

	var doc struct {
		Cells []struct {
			CellType       string   `json:"cell_type"`
			Source         []string `json:"source"`
			ExecutionCount *int     `json:"execution_count"`
			Outputs        []struct {
				OutputType string         `json:"output_type"`
				Name       string         `json:"name"`
				Text       []string       `json:"text"`
				Data       map[string]any `json:"data"`
				Ename      string         `json:"ename"`
			} `json:"outputs"`
		} `json:"cells"`
		NBFormat int `json:"nbformat"`
		Metadata struct {
			Kernelspec struct {
				Language string `json:"language"`
			} `json:"kernelspec"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if doc.NBFormat != 4 || doc.Metadata.Kernelspec.Language != "python" {
		t.Errorf("header = nbformat %d language %s", doc.NBFormat, doc.Metadata.Kernelspec.Language)
	}
	if len(doc.Cells) != 3 {
		t.Fatalf("cells = %d, want 3", len(doc.Cells))
	}
	if doc.Cells[0].CellType != "markdown" || doc.Cells[0].Source[0] != "# Sales\n" {
		t.Errorf("markdown cell = %+v", doc.Cells[0])
	}

	code := doc.Cells[1]
	if code.CellType != "code" || code.ExecutionCount == nil || *code.ExecutionCount != 3 {
		t.Errorf("code cell = %+v", code)
	}
	if len(code.Outputs) != 2 {
		t.Fatalf("outputs = %d, want 2", len(code.Outputs))
	}
	if code.Outputs[0].OutputType != "stream" || code.Outputs[0].Name != "stdout" {
		t.Errorf("stream output = %+v", code.Outputs[0])
	}
	if code.Outputs[1].OutputType != "execute_result" {
		t.Errorf("result output = %+v", code.Outputs[1])
	}
	if _, ok := code.Outputs[1].Data["text/plain"]; !ok {
		t.Errorf("result data = %v", code.Outputs[1].Data)
	}

	errOut := doc.Cells[2].Outputs[0]
	if errOut.OutputType != "error" || errOut.Ename != "ZeroDivisionError" {
		t.Errorf("error output = %+v", errOut)
	}
}

func TestRenderNotebookHTML(t *testing.T) {
	html, err := RenderNotebookHTML(templateData(sampleDoc()))
	if err != nil {
		t.Fatalf("RenderNotebookHTML() error = %v", err)
	}

	for _, want := range []string{
		"Sales Report",
		"print(&#39;total&#39;)",
		"ZeroDivisionError",
		"[3]",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestRenderNotebookHTMLEscapesMarkdown(t *testing.T) {
	doc := Document{
		Title: "XSS",
		Cells: []Cell{{CellType: "markdown", Source: "<script>alert(1)</script>"}},
	}
	html, err := RenderNotebookHTML(templateData(doc))
	if err != nil {
		t.Fatalf("RenderNotebookHTML() error = %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("markdown source rendered unescaped")
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b<c>")
	if got != "a%20b%3Cc%3E" {
		t.Errorf("encoded = %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Sales Report Q3":      "Sales-Report-Q3",
		"data/analysis: notes": "dataanalysis-notes",
		"":                     "notebook",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeExportStore struct {
	doc Document
	err error
}

func (f *fakeExportStore) NotebookDocument(ctx context.Context, notebookID, version string) (Document, error) {
	return f.doc, f.err
}

func TestExportIpynbEndToEnd(t *testing.T) {
	svc := NewService(&fakeExportStore{doc: sampleDoc()})

	res, err := svc.Export(context.Background(), Request{NotebookID: "nb1", Format: FormatIpynb})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "Sales-Report.ipynb" || res.MimeType != "application/x-ipynb+json" {
		t.Errorf("result = %s (%s)", res.Filename, res.MimeType)
	}
	if !json.Valid(res.Data) {
		t.Error("ipynb payload is not valid JSON")
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService(&fakeExportStore{doc: sampleDoc()})
	if _, err := svc.Export(context.Background(), Request{NotebookID: "nb1", Format: "xlsx"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
