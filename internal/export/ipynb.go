package export

import (
	"encoding/json"
	"strings"
)

// nbformat 4 document shapes. Sources and texts are stored as line
// arrays with trailing newlines preserved, the way Jupyter writes them.

type ipynbDocument struct {
	Cells         []ipynbCell   `json:"cells"`
	Metadata      ipynbMetadata `json:"metadata"`
	NBFormat      int           `json:"nbformat"`
	NBFormatMinor int           `json:"nbformat_minor"`
}

type ipynbMetadata struct {
	Kernelspec   ipynbKernelspec   `json:"kernelspec"`
	LanguageInfo ipynbLanguageInfo `json:"language_info"`
}

type ipynbKernelspec struct {
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
	Name        string `json:"name"`
}

type ipynbLanguageInfo struct {
	Name string `json:"name"`
}

type ipynbCell struct {
	CellType       string         `json:"cell_type"`
	Metadata       map[string]any `json:"metadata"`
	Source         []string       `json:"source"`
	ExecutionCount *int           `json:"execution_count,omitempty"`
	Outputs        []ipynbOutput  `json:"outputs,omitempty"`
}

type ipynbOutput struct {
	OutputType     string         `json:"output_type"`
	Name           string         `json:"name,omitempty"`
	Text           []string       `json:"text,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ExecutionCount *int           `json:"execution_count,omitempty"`
	Ename          string         `json:"ename,omitempty"`
	Evalue         string         `json:"evalue,omitempty"`
	Traceback      []string       `json:"traceback,omitempty"`
}

// RenderIpynb serializes the document as an nbformat 4 notebook.
func RenderIpynb(doc Document) ([]byte, error) {
	language := doc.Language
	if language == "" {
		language = "python"
	}
	kernel := doc.Kernel
	if kernel == "" {
		kernel = "python3"
	}

	out := ipynbDocument{
		Cells: make([]ipynbCell, 0, len(doc.Cells)),
		Metadata: ipynbMetadata{
			Kernelspec:   ipynbKernelspec{DisplayName: kernel, Language: language, Name: kernel},
			LanguageInfo: ipynbLanguageInfo{Name: language},
		},
		NBFormat:      4,
		NBFormatMinor: 5,
	}

	for _, cell := range doc.Cells {
		out.Cells = append(out.Cells, toIpynbCell(cell))
	}
	return json.MarshalIndent(out, "", " ")
}

func toIpynbCell(cell Cell) ipynbCell {
	ic := ipynbCell{
		Metadata: map[string]any{},
		Source:   splitLines(cell.Source),
	}

	if cell.CellType != "code" {
		ic.CellType = "markdown"
		return ic
	}

	ic.CellType = "code"
	ic.ExecutionCount = cell.ExecutionCount
	ic.Outputs = make([]ipynbOutput, 0, len(cell.Outputs))
	for _, out := range cell.Outputs {
		ic.Outputs = append(ic.Outputs, toIpynbOutput(out, cell.ExecutionCount))
	}
	return ic
}

func toIpynbOutput(out Output, fallbackCount *int) ipynbOutput {
	switch out.Type {
	case "terminal":
		name := out.StreamName
		if name == "" {
			name = "stdout"
		}
		return ipynbOutput{
			OutputType: "stream",
			Name:       name,
			Text:       splitLines(out.Data),
		}
	case "multimedia_result":
		return ipynbOutput{
			OutputType:     "execute_result",
			Data:           outputData(out),
			Metadata:       map[string]any{},
			ExecutionCount: fallbackCount,
		}
	case "multimedia_display":
		return ipynbOutput{
			OutputType: "display_data",
			Data:       outputData(out),
			Metadata:   map[string]any{},
		}
	case "error":
		traceback := out.Traceback
		if len(traceback) == 0 && out.Evalue != "" {
			traceback = []string{out.Ename + ": " + out.Evalue}
		}
		return ipynbOutput{
			OutputType: "error",
			Ename:      out.Ename,
			Evalue:     out.Evalue,
			Traceback:  traceback,
		}
	default:
		return ipynbOutput{
			OutputType: "stream",
			Name:       "stdout",
			Text:       splitLines(out.Data),
		}
	}
}

func outputData(out Output) map[string]any {
	mime := out.MimeType
	if mime == "" {
		mime = "text/plain"
	}
	if strings.HasPrefix(mime, "text/") {
		return map[string]any{mime: splitLines(out.Data)}
	}
	return map[string]any{mime: out.Data}
}

// splitLines breaks text into nbformat's line array form, keeping the
// newline at the end of every line but the last.
func splitLines(text string) []string {
	if text == "" {
		return []string{}
	}
	parts := strings.SplitAfter(text, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}
