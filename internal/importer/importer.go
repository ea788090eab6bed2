// Package importer converts Jupyter notebooks into ordered event logs,
// exercising the cell-placement contract end to end: every imported cell
// goes through CreateCellBetween with a running tail reference.
package importer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cellar/api/internal/cells"
	"cellar/api/internal/events"
	"cellar/api/internal/fracindex"
	"cellar/api/internal/state"
)

const importerDisplayName = "Notebook Importer"

// Importer builds event sequences from parsed notebooks. Now and NewID
// are injectable for deterministic tests; zero values fall back to the
// wall clock and fresh uuids.
type Importer struct {
	Now    func() time.Time
	NewID  func() string
	Jitter fracindex.Source
}

func (imp *Importer) now() time.Time {
	if imp.Now != nil {
		return imp.Now()
	}
	return time.Now()
}

func (imp *Importer) newID() string {
	if imp.NewID != nil {
		return imp.NewID()
	}
	return uuid.NewString()
}

// Import produces the full event sequence for a notebook document:
// importer actor profile, title, kernelspec metadata, then per cell the
// placement events, the source, and the cell's outputs.
func (imp *Importer) Import(doc Document) ([]events.Event, error) {
	actorID := imp.newID()
	out := []events.Event{
		&events.ActorProfileSet{ID: actorID, Type: "human", DisplayName: importerDisplayName},
		&events.NotebookTitleChanged{Title: "Imported Notebook - " + imp.now().Format("January 2, 2006")},
	}
	if v := doc.Metadata.Kernelspec.DisplayName; v != "" {
		out = append(out, &events.NotebookMetadataSet{Key: "kernelspec_display_name", Value: v})
	}
	if v := doc.Metadata.Kernelspec.Language; v != "" {
		out = append(out, &events.NotebookMetadataSet{Key: "language", Value: v})
	}

	var cellBefore *state.CellReference
	var allCells []state.CellReference
	for i, cell := range doc.Cells {
		cellType := state.CellTypeMarkdown
		if cell.CellType == "code" {
			cellType = state.CellTypeCode
		}

		created, err := cells.CreateCellBetween(cells.NewCell{
			ID:        imp.newID(),
			CellType:  cellType,
			CreatedBy: actorID,
		}, cellBefore, nil, allCells, imp.Jitter)
		if err != nil {
			return nil, fmt.Errorf("place imported cell %d: %w", i, err)
		}
		out = append(out, created.Events...)

		// Keep the running order in sync with whatever the placement
		// emitted, rebalance moves included.
		for _, ev := range created.Events {
			switch e := ev.(type) {
			case *events.CellMoved:
				for j := range allCells {
					if allCells[j].ID == e.ID {
						idx := e.FractionalIndex
						allCells[j].FractionalIndex = &idx
					}
				}
			case *events.CellCreated:
				idx := e.FractionalIndex
				ref := state.CellReference{ID: e.ID, FractionalIndex: &idx, CellType: e.CellType}
				allCells = append(allCells, ref)
				cellBefore = &ref
			}
		}

		out = append(out, &events.CellSourceChanged{
			ID:      created.NewCellID,
			Source:  cell.Source.Join(),
			ActorID: actorID,
		})

		if cell.CellType == "code" && len(cell.Outputs) > 0 {
			out = append(out, &events.CellOutputsCleared{
				CellID:    created.NewCellID,
				Wait:      false,
				ClearedBy: actorID,
			})
			for pos, output := range cell.Outputs {
				ev, err := imp.outputEvent(created.NewCellID, float64(pos), cell, output)
				if err != nil {
					return nil, fmt.Errorf("import cell %d output %d: %w", i, pos, err)
				}
				if ev != nil {
					out = append(out, ev)
				}
			}
		}
	}
	return out, nil
}

func (imp *Importer) outputEvent(cellID string, position float64, cell DocCell, output DocOutput) (events.Event, error) {
	switch output.OutputType {
	case "stream":
		return &events.TerminalOutputAdded{
			ID:         imp.newID(),
			CellID:     cellID,
			Position:   position,
			StreamName: output.Name,
			Content:    events.InlineText(output.Text.Join()),
		}, nil

	case "execute_result":
		count := 0
		switch {
		case output.ExecutionCount != nil:
			count = *output.ExecutionCount
		case cell.ExecutionCount != nil:
			count = *cell.ExecutionCount
		}
		return &events.MultimediaResultOutputAdded{
			ID:              imp.newID(),
			CellID:          cellID,
			Position:        position,
			Representations: dataRepresentations(output.Data),
			ExecutionCount:  count,
		}, nil

	case "display_data":
		return &events.MultimediaDisplayOutputAdded{
			ID:              imp.newID(),
			CellID:          cellID,
			Position:        position,
			Representations: dataRepresentations(output.Data),
		}, nil

	case "error":
		content, err := events.InlineJSON(events.ErrorOutputContent{
			Ename:     output.Ename,
			Evalue:    output.Evalue,
			Traceback: output.Traceback,
		})
		if err != nil {
			return nil, err
		}
		return &events.ErrorOutputAdded{
			ID:       imp.newID(),
			CellID:   cellID,
			Position: position,
			Content:  content,
		}, nil

	default:
		// Unknown output kinds are dropped rather than failing the import.
		return nil, nil
	}
}

func dataRepresentations(data map[string]json.RawMessage) events.Representations {
	reps := make(events.Representations, len(data))
	for mime, raw := range data {
		reps[mime] = events.Container{Type: events.ContainerInline, Data: raw}
	}
	return reps
}
