package export

import (
	"bytes"
	"embed"
	"encoding/base64"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var notebookTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"imageSrc": func(mime, data string) template.URL {
			if strings.Contains(data, ";base64,") {
				return template.URL(data)
			}
			return template.URL("data:" + mime + ";base64," + data)
		},
		"rawHTML": func(s string) template.HTML { return template.HTML(s) },
	}

	templateContent, err := templateFS.ReadFile("templates/notebook.html")
	if err != nil {
		// Fallback to built-in template if file not found
		notebookTemplate = template.Must(template.New("notebook").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	notebookTemplate = template.Must(template.New("notebook").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for notebook template rendering.
type TemplateData struct {
	Title  string
	Author string
	Kernel string
	Cells  []TemplateCell
}

// TemplateCell holds one cell for the template.
type TemplateCell struct {
	CellType       string
	Source         string
	ExecutionCount *int
	Outputs        []TemplateOutput
}

// TemplateOutput holds one output for the template.
type TemplateOutput struct {
	Kind     string // "text", "html", "image", "error"
	Text     string
	HTML     string
	MimeType string
	Data     string
}

func templateData(doc Document) TemplateData {
	data := TemplateData{
		Title:  doc.Title,
		Author: doc.Author,
		Kernel: doc.Kernel,
	}
	for _, cell := range doc.Cells {
		tc := TemplateCell{
			CellType:       cell.CellType,
			Source:         cell.Source,
			ExecutionCount: cell.ExecutionCount,
		}
		for _, out := range cell.Outputs {
			tc.Outputs = append(tc.Outputs, toTemplateOutput(out))
		}
		data.Cells = append(data.Cells, tc)
	}
	return data
}

func toTemplateOutput(out Output) TemplateOutput {
	if out.Type == "error" {
		text := out.Ename + ": " + out.Evalue
		if len(out.Traceback) > 0 {
			text = strings.Join(out.Traceback, "\n")
		}
		return TemplateOutput{Kind: "error", Text: text}
	}
	switch {
	case out.MimeType == "text/html":
		return TemplateOutput{Kind: "html", HTML: out.Data}
	case strings.HasPrefix(out.MimeType, "image/") && isBase64Payload(out.Data):
		return TemplateOutput{Kind: "image", MimeType: out.MimeType, Data: out.Data}
	default:
		return TemplateOutput{Kind: "text", Text: out.Data}
	}
}

func isBase64Payload(data string) bool {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return false
	}
	_, err := base64.StdEncoding.DecodeString(trimmed)
	return err == nil
}

// RenderNotebookHTML renders the notebook template with provided data.
func RenderNotebookHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := notebookTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load.
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{range .Cells}}<pre>{{.Source}}</pre>{{end}}
</body>
</html>`
