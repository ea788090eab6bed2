package importer

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Document is a Jupyter nbformat 4 notebook, reduced to the fields the
// importer consumes.
type Document struct {
	Cells         []DocCell `json:"cells"`
	Metadata      Metadata  `json:"metadata"`
	NBFormat      int       `json:"nbformat"`
	NBFormatMinor int       `json:"nbformat_minor"`
}

type Metadata struct {
	Kernelspec Kernelspec `json:"kernelspec"`
}

type Kernelspec struct {
	DisplayName string `json:"display_name"`
	Language    string `json:"language"`
	Name        string `json:"name"`
}

type DocCell struct {
	CellType       string      `json:"cell_type"`
	Source         StringList  `json:"source"`
	ExecutionCount *int        `json:"execution_count"`
	Outputs        []DocOutput `json:"outputs"`
}

type DocOutput struct {
	OutputType     string                     `json:"output_type"`
	Name           string                     `json:"name"`
	Text           StringList                 `json:"text"`
	Data           map[string]json.RawMessage `json:"data"`
	ExecutionCount *int                       `json:"execution_count"`
	Ename          string                     `json:"ename"`
	Evalue         string                     `json:"evalue"`
	Traceback      []string                   `json:"traceback"`
}

// StringList accepts the nbformat convention of either a single string or
// an array of line fragments.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("source is neither string nor string array: %w", err)
	}
	*s = StringList(many)
	return nil
}

func (s StringList) Join() string {
	return strings.Join(s, "")
}

// Parse decodes and validates a notebook document.
func Parse(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode notebook json: %w", err)
	}
	if doc.NBFormat != 4 {
		return Document{}, fmt.Errorf("unsupported nbformat %d (want 4)", doc.NBFormat)
	}
	return doc, nil
}
