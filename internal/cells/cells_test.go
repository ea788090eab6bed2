package cells

import (
	"errors"
	"testing"

	"cellar/api/internal/events"
	"cellar/api/internal/fracindex"
	"cellar/api/internal/state"
)

func ref(id, idx string) state.CellReference {
	return state.CellReference{ID: id, FractionalIndex: &idx, CellType: state.CellTypeCode}
}

func crowded() []state.CellReference {
	return []state.CellReference{
		ref("c1", "m"),
		ref("c2", "m0"),
		ref("c3", "m00"),
		ref("c4", "m000"),
	}
}

func TestNeedsRebalancing(t *testing.T) {
	if NeedsRebalancing([]state.CellReference{ref("a", "m"), ref("b", "t")}, nil) {
		t.Error("well spaced cells flagged for rebalancing")
	}
	if !NeedsRebalancing(crowded(), nil) {
		t.Error("adjacent indices not flagged for rebalancing")
	}
	// Duplicate indices block insertion between the pair.
	if !NeedsRebalancing([]state.CellReference{ref("a", "m"), ref("b", "m")}, nil) {
		t.Error("duplicate indices not flagged")
	}
	// The bounding pair at an insert slot is checked too.
	pos := 2
	if !NeedsRebalancing([]state.CellReference{ref("a", "b"), ref("b", "m"), ref("c", "m0")}, &pos) {
		t.Error("full insert slot not flagged")
	}
}

func TestRebalanceRestoresHeadroom(t *testing.T) {
	// Property 6: every adjacent pair of new indices admits an insertion,
	// as do the open intervals at both ends.
	plan, err := Rebalance(crowded(), RebalanceOptions{ActorID: "u", BufferCells: 1})
	if err != nil {
		t.Fatalf("Rebalance failed: %v", err)
	}
	order := plan.Order
	if len(order) != 4 {
		t.Fatalf("order size = %d, want 4", len(order))
	}
	first, last := *order[0].FractionalIndex, *order[len(order)-1].FractionalIndex
	if _, err := fracindex.Between(nil, &first, nil); err != nil {
		t.Errorf("no room before first new index %q: %v", first, err)
	}
	if _, err := fracindex.Between(&last, nil, nil); err != nil {
		t.Errorf("no room after last new index %q: %v", last, err)
	}
	for i := 1; i < len(order); i++ {
		a, b := order[i-1].FractionalIndex, order[i].FractionalIndex
		if _, err := fracindex.Between(a, b, nil); err != nil {
			t.Errorf("no room between %q and %q: %v", *a, *b, err)
		}
	}
}

func TestRebalancePreservesRelativeOrder(t *testing.T) {
	// Property 7: sorting by old and by new indices yields the same id
	// sequence.
	input := crowded()
	plan, err := Rebalance(input, RebalanceOptions{ActorID: "u"})
	if err != nil {
		t.Fatalf("Rebalance failed: %v", err)
	}
	oldOrder := sortRefs(input)
	for i, got := range plan.Order {
		if got.ID != oldOrder[i].ID {
			t.Errorf("position %d: id %q, want %q", i, got.ID, oldOrder[i].ID)
		}
	}
}

func TestRebalanceSkipsUnchangedCells(t *testing.T) {
	// Property 8: cells already on their target index emit no event.
	refs := []state.CellReference{ref("a", "n"), ref("b", "o"), ref("c", "p")}
	plan, err := Rebalance(refs, RebalanceOptions{ActorID: "u", BufferCells: 1})
	if err != nil {
		t.Fatalf("Rebalance failed: %v", err)
	}
	// Generate(nil, nil, 5) yields m,n,o,p,q; with one buffer slot each
	// side the cells map exactly onto their current indices.
	if len(plan.Events) != 0 {
		t.Errorf("no-op rebalance emitted %d events: %v", len(plan.Events), plan.Events)
	}
}

func TestRebalanceEmitsMovesWithActor(t *testing.T) {
	plan, err := Rebalance(crowded(), RebalanceOptions{ActorID: "u-rebalance"})
	if err != nil {
		t.Fatalf("Rebalance failed: %v", err)
	}
	if len(plan.Events) == 0 {
		t.Fatal("expected move events")
	}
	for _, ev := range plan.Events {
		moved, ok := ev.(*events.CellMoved)
		if !ok {
			t.Fatalf("unexpected event type %T", ev)
		}
		if moved.ActorID != "u-rebalance" {
			t.Errorf("move actor = %q, want u-rebalance", moved.ActorID)
		}
	}
}

func TestBetweenWithFallbackNoContextPropagates(t *testing.T) {
	a, b := "m", "m0"
	_, err := BetweenWithFallback(&a, &b, nil)
	if !errors.Is(err, fracindex.ErrEmptyInterval) {
		t.Errorf("error without context = %v, want ErrEmptyInterval", err)
	}
}

func TestCreateCellBetweenTriggersRebalance(t *testing.T) {
	// S3: inserting into the exhausted gap between c2 and c3 reindexes all
	// four cells and then creates the new cell strictly between the new
	// c2 and c3 positions.
	all := crowded()
	c2, c3 := all[1], all[2]
	res, err := CreateCellBetween(NewCell{ID: "cNew", CellType: "code", CreatedBy: "u"}, &c2, &c3, all, nil)
	if err != nil {
		t.Fatalf("CreateCellBetween failed: %v", err)
	}
	if !res.NeedsRebalancing {
		t.Error("NeedsRebalancing = false, want true")
	}
	if res.RebalanceCount < 1 {
		t.Errorf("RebalanceCount = %d, want >= 1", res.RebalanceCount)
	}
	if res.NewCellID != "cNew" {
		t.Errorf("NewCellID = %q", res.NewCellID)
	}

	last, ok := res.Events[len(res.Events)-1].(*events.CellCreated)
	if !ok {
		t.Fatalf("last event is %T, want CellCreated", res.Events[len(res.Events)-1])
	}

	// Find the new indices of c2 and c3 among the move events.
	newIdx := map[string]string{}
	for _, ev := range res.Events[:len(res.Events)-1] {
		moved, ok := ev.(*events.CellMoved)
		if !ok {
			t.Fatalf("prefix event is %T, want CellMoved", ev)
		}
		if moved.ActorID != "u-rebalance" {
			t.Errorf("rebalance actor = %q, want u-rebalance", moved.ActorID)
		}
		newIdx[moved.ID] = moved.FractionalIndex
	}
	lo, hi := newIdx["c2"], newIdx["c3"]
	if lo == "" || hi == "" {
		t.Fatalf("c2/c3 not reindexed: %v", newIdx)
	}
	if !(lo < last.FractionalIndex && last.FractionalIndex < hi) {
		t.Errorf("new cell index %q not in (%q, %q)", last.FractionalIndex, lo, hi)
	}
}

func TestCreateCellBetweenSimple(t *testing.T) {
	all := []state.CellReference{ref("a", "f"), ref("b", "t")}
	before, after := all[0], all[1]
	res, err := CreateCellBetween(NewCell{CellType: "markdown", CreatedBy: "u"}, &before, &after, all, nil)
	if err != nil {
		t.Fatalf("CreateCellBetween failed: %v", err)
	}
	if res.NeedsRebalancing || res.RebalanceCount != 0 {
		t.Errorf("unexpected rebalance: %+v", res)
	}
	if len(res.Events) != 1 {
		t.Fatalf("event count = %d, want 1", len(res.Events))
	}
	created := res.Events[0].(*events.CellCreated)
	if created.ID == "" {
		t.Error("generated cell id empty")
	}
	if !("f" < created.FractionalIndex && created.FractionalIndex < "t") {
		t.Errorf("index %q not in (f, t)", created.FractionalIndex)
	}
	if created.CellType != "markdown" || created.CreatedBy != "u" {
		t.Errorf("created = %+v", created)
	}
}

func TestCreateCellBetweenDefaultsToTail(t *testing.T) {
	all := []state.CellReference{ref("a", "f"), ref("b", "t")}
	res, err := CreateCellBetween(NewCell{CellType: "code", CreatedBy: "u"}, nil, nil, all, nil)
	if err != nil {
		t.Fatalf("CreateCellBetween failed: %v", err)
	}
	created := res.Events[len(res.Events)-1].(*events.CellCreated)
	if !(created.FractionalIndex > "t") {
		t.Errorf("tail insert index %q not above %q", created.FractionalIndex, "t")
	}
}

func TestCreateCellBetweenEmptyNotebook(t *testing.T) {
	res, err := CreateCellBetween(NewCell{CellType: "code", CreatedBy: "u"}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("CreateCellBetween failed: %v", err)
	}
	created := res.Events[0].(*events.CellCreated)
	if created.FractionalIndex != "m" {
		t.Errorf("first index = %q, want m", created.FractionalIndex)
	}
}

func TestMoveCellBetweenNoops(t *testing.T) {
	cell := ref("c", "m")
	// Already inside the bounds.
	before, after := ref("a", "f"), ref("b", "t")
	moved, err := MoveCellBetween(cell, &before, &after, "u", nil)
	if err != nil || moved != nil {
		t.Errorf("in-place move = (%v, %v), want (nil, nil)", moved, err)
	}
	// No index on the cell.
	noIdx := state.CellReference{ID: "x"}
	moved, err = MoveCellBetween(noIdx, &before, &after, "u", nil)
	if err != nil || moved != nil {
		t.Errorf("indexless move = (%v, %v), want (nil, nil)", moved, err)
	}
}

func TestMoveCellBetweenEmitsMove(t *testing.T) {
	cell := ref("c", "z")
	before, after := ref("a", "f"), ref("b", "t")
	moved, err := MoveCellBetween(cell, &before, &after, "u", nil)
	if err != nil {
		t.Fatalf("MoveCellBetween failed: %v", err)
	}
	if moved == nil {
		t.Fatal("expected a move event")
	}
	if !("f" < moved.FractionalIndex && moved.FractionalIndex < "t") {
		t.Errorf("moved index %q not in (f, t)", moved.FractionalIndex)
	}
	if moved.ActorID != "u" {
		t.Errorf("actor = %q, want u", moved.ActorID)
	}
}

func TestMoveCellBetweenWithRebalancing(t *testing.T) {
	all := crowded()
	c2, c3 := all[1], all[2]
	res, err := MoveCellBetweenWithRebalancing(all[3], &c2, &c3, all, "u", nil)
	if err != nil {
		t.Fatalf("MoveCellBetweenWithRebalancing failed: %v", err)
	}
	if !res.NeedsRebalancing {
		t.Error("NeedsRebalancing = false, want true")
	}
	last, ok := res.Events[len(res.Events)-1].(*events.CellMoved)
	if !ok {
		t.Fatalf("last event is %T, want CellMoved", res.Events[len(res.Events)-1])
	}
	if last.ID != "c4" || last.ActorID != "u" {
		t.Errorf("final move = %+v", last)
	}
}
