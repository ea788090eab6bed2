package materialize

import (
	"encoding/json"
	"strings"

	"cellar/api/internal/events"
)

// displayPriority is the MIME preference order used to pick the primary
// representation of a multimedia display output. First present wins.
var displayPriority = []string{
	"application/vnd.plotly.v1+json",
	"application/vnd.vega.v5+json",
	"application/vnd.vegalite.v5+json",
	"application/vnd.jupyter.widget-view+json",
	"application/vnd.jupyter.widget-state+json",
	"application/vnd.dataresource+json",
	"application/vdom.v1+json",
	"application/geo+json",
	"application/json",
	"application/javascript",
	"text/html",
	"image/svg+xml",
	"image/png",
	"image/jpeg",
	"image/gif",
	"text/latex",
	"text/markdown",
	"text/plain",
}

// resultPriority is the narrower HTML-first list used for execute-result
// outputs.
var resultPriority = []string{
	"text/html",
	"image/png",
	"image/jpeg",
	"image/svg+xml",
	"application/json",
	"text/plain",
}

// primaryRepresentation walks the priority list and returns the first MIME
// type present, with the denormalized data column value. Inline payloads
// are coerced to a string; artifact payloads yield empty data.
func primaryRepresentation(reps events.Representations, priority []string) (mimeType string, data string, artifactID *string, ok bool) {
	for _, mime := range priority {
		container, present := reps[mime]
		if !present {
			continue
		}
		if container.Type == events.ContainerArtifact {
			id := container.ArtifactID
			return mime, "", &id, true
		}
		return mime, coerceToString(container.Data), nil, true
	}
	return "", "", nil, false
}

// coerceToString renders inline JSON data as the string stored in the data
// column: string payloads are unquoted, string arrays are joined, anything
// else stays compact JSON text.
func coerceToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []string
	if err := json.Unmarshal(raw, &parts); err == nil {
		return strings.Join(parts, "")
	}
	return string(raw)
}

// containerText extracts the string payload of an inline container.
func containerText(c events.Container) string {
	if c.Type == events.ContainerArtifact {
		return ""
	}
	return coerceToString(c.Data)
}
