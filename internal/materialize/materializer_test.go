package materialize

import (
	"reflect"
	"testing"

	"cellar/api/internal/events"
	"cellar/api/internal/state"
)

func applyAll(t *testing.T, store *state.Store, evs ...events.Event) {
	t.Helper()
	ReduceAll(store, evs)
}

func inline(data string) events.Container {
	return events.InlineText(data)
}

func createCell(id, idx string) *events.CellCreated {
	return &events.CellCreated{ID: id, FractionalIndex: idx, CellType: state.CellTypeCode, CreatedBy: "user-1"}
}

func TestBasicCellOrdering(t *testing.T) {
	// S1: three inserts via between(nil,nil), between(m,nil), between(m,s)
	// materialize in index order [first, third, second].
	store := state.NewStore()
	applyAll(t, store,
		createCell("first", "m"),
		createCell("second", "n"),
		createCell("third", "mh"),
	)

	refs := store.CellReferences()
	got := make([]string, len(refs))
	for i, r := range refs {
		got[i] = r.ID
	}
	want := []string{"first", "third", "second"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("cellReferences order = %v, want %v", got, want)
	}
}

func TestEqualIndicesBreakTiesByID(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store,
		createCell("b-cell", "m"),
		createCell("a-cell", "m"),
	)
	refs := store.CellReferences()
	if refs[0].ID != "a-cell" || refs[1].ID != "b-cell" {
		t.Errorf("tie on index not broken by id: %v", refs)
	}
}

func TestCellCreatedV1PseudoIndex(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store, &events.CellCreatedV1{ID: "c1", Position: 37, CellType: "code", CreatedBy: "u"})
	cell, ok := store.GetCell("c1")
	if !ok {
		t.Fatal("cell not materialized")
	}
	if cell.FractionalIndex == nil || *cell.FractionalIndex != "a11" {
		t.Errorf("pseudo index = %v, want a11", cell.FractionalIndex)
	}
}

func TestCellCreatedIgnoresConflict(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store,
		createCell("c1", "m"),
		&events.CellSourceChanged{ID: "c1", Source: "original"},
		createCell("c1", "z"),
	)
	cell, _ := store.GetCell("c1")
	if cell.Source != "original" {
		t.Errorf("duplicate create clobbered the row: source = %q", cell.Source)
	}
	if *cell.FractionalIndex != "m" {
		t.Errorf("duplicate create moved the cell to %q", *cell.FractionalIndex)
	}
}

func TestPendingClearProtocol(t *testing.T) {
	// S2: clear(wait=true) leaves outputs intact until the next add, which
	// removes the old outputs and the pending-clear row.
	store := state.NewStore()
	applyAll(t, store,
		createCell("C", "m"),
		&events.ExecutionRequested{QueueID: "q1", CellID: "C", ExecutionCount: 1, RequestedBy: "u"},
		&events.TerminalOutputAdded{ID: "X", CellID: "C", Position: 0, StreamName: "stdout", Content: inline("old")},
		&events.CellOutputsCleared{CellID: "C", Wait: true, ClearedBy: "u"},
	)

	// Old output still visible before the next add.
	if outs := store.OutputsForCell("C"); len(outs) != 1 || outs[0].ID != "X" {
		t.Fatalf("outputs before next add = %v, want [X]", outs)
	}
	if _, ok := store.PendingClearFor("C"); !ok {
		t.Fatal("pending clear row missing")
	}

	applyAll(t, store, &events.TerminalOutputAdded{ID: "o", CellID: "C", Position: 1, StreamName: "stdout", Content: inline("hi")})

	outs := store.OutputsForCell("C")
	if len(outs) != 1 || outs[0].ID != "o" {
		t.Fatalf("outputs after add = %v, want [o]", outs)
	}
	if outs[0].Data != "hi" {
		t.Errorf("output data = %q, want %q", outs[0].Data, "hi")
	}
	if _, ok := store.PendingClearFor("C"); ok {
		t.Error("pending clear row not consumed")
	}
}

func TestClearWithoutWaitDeletesImmediately(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store,
		createCell("C", "m"),
		&events.TerminalOutputAdded{ID: "X", CellID: "C", Position: 0, StreamName: "stdout", Content: inline("old")},
		&events.CellOutputsCleared{CellID: "C", Wait: false, ClearedBy: "u"},
	)
	if outs := store.OutputsForCell("C"); len(outs) != 0 {
		t.Errorf("outputs after immediate clear = %v, want none", outs)
	}
}

func TestPendingClearConsumedOnceOnly(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store,
		createCell("C", "m"),
		&events.TerminalOutputAdded{ID: "P", CellID: "C", Position: 0, StreamName: "stdout", Content: inline("p")},
		&events.CellOutputsCleared{CellID: "C", Wait: true, ClearedBy: "u"},
		&events.TerminalOutputAdded{ID: "X", CellID: "C", Position: 1, StreamName: "stdout", Content: inline("x")},
		&events.TerminalOutputAdded{ID: "Y", CellID: "C", Position: 2, StreamName: "stdout", Content: inline("y")},
	)
	outs := store.OutputsForCell("C")
	if len(outs) != 2 || outs[0].ID != "X" || outs[1].ID != "Y" {
		t.Errorf("outputs = %v, want [X Y]", outs)
	}
}

func reps(mime, data string) events.Representations {
	return events.Representations{mime: inline(data)}
}

func TestDisplayIDUpdateInPlaceAndAppend(t *testing.T) {
	// Property 11: a second add with the same display id updates the first
	// row in place and still appends its own row; a later Update patches
	// both without creating a third.
	store := state.NewStore()
	applyAll(t, store,
		createCell("C", "m"),
		&events.MultimediaDisplayOutputAdded{ID: "o1", CellID: "C", Position: 0, DisplayID: "d", Representations: reps("text/plain", "R1")},
		&events.MultimediaDisplayOutputAdded{ID: "o2", CellID: "C", Position: 1, DisplayID: "d", Representations: reps("text/plain", "R2")},
	)

	outs := store.OutputsForCell("C")
	if len(outs) != 2 {
		t.Fatalf("output count = %d, want 2", len(outs))
	}
	for _, o := range outs {
		if o.Data != "R2" {
			t.Errorf("output %s data = %q, want R2", o.ID, o.Data)
		}
	}

	applyAll(t, store, &events.MultimediaDisplayOutputUpdated{DisplayID: "d", Representations: reps("text/plain", "R3")})
	outs = store.OutputsForCell("C")
	if len(outs) != 2 {
		t.Fatalf("update created a row: count = %d", len(outs))
	}
	for _, o := range outs {
		if o.Data != "R3" {
			t.Errorf("output %s data = %q, want R3", o.ID, o.Data)
		}
	}
}

func TestDisplayUpdateForUnknownDisplayIDIsNoop(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store, &events.MultimediaDisplayOutputUpdated{DisplayID: "ghost", Representations: reps("text/plain", "R")})
	if outs := store.OutputsByDisplayID("ghost"); len(outs) != 0 {
		t.Errorf("update materialized rows: %v", outs)
	}
}

func TestPrimaryRepresentationPriority(t *testing.T) {
	store := state.NewStore()
	representations := events.Representations{
		"text/plain": inline("plain"),
		"text/html":  inline("<b>html</b>"),
		"image/png":  inline("cGln"),
	}
	applyAll(t, store,
		createCell("C", "m"),
		&events.MultimediaDisplayOutputAdded{ID: "o1", CellID: "C", Position: 0, Representations: representations},
		&events.MultimediaResultOutputAdded{ID: "o2", CellID: "C", Position: 1, Representations: representations, ExecutionCount: 3},
	)
	o1, _ := store.GetOutput("o1")
	if o1.MimeType == nil || *o1.MimeType != "text/html" {
		t.Errorf("display primary mime = %v, want text/html", o1.MimeType)
	}
	o2, _ := store.GetOutput("o2")
	if o2.MimeType == nil || *o2.MimeType != "text/html" {
		t.Errorf("result primary mime = %v, want text/html", o2.MimeType)
	}
	if o2.ExecutionCount == nil || *o2.ExecutionCount != 3 {
		t.Errorf("result execution count = %v, want 3", o2.ExecutionCount)
	}
}

func TestArtifactRepresentationHasEmptyData(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store,
		createCell("C", "m"),
		&events.MultimediaDisplayOutputAdded{ID: "o1", CellID: "C", Position: 0, Representations: events.Representations{
			"image/png": events.ArtifactRef("art-1"),
		}},
	)
	out, _ := store.GetOutput("o1")
	if out.Data != "" {
		t.Errorf("artifact output data = %q, want empty", out.Data)
	}
	if out.ArtifactID == nil || *out.ArtifactID != "art-1" {
		t.Errorf("artifact id = %v, want art-1", out.ArtifactID)
	}
}

func TestTerminalDeltaReconstruction(t *testing.T) {
	// Property 12: final content = original data plus deltas in sequence
	// order, regardless of arrival order.
	store := state.NewStore()
	applyAll(t, store,
		createCell("C", "m"),
		&events.TerminalOutputAdded{ID: "o", CellID: "C", Position: 0, StreamName: "stdout", Content: inline("D0")},
		&events.TerminalOutputAppended{ID: "d2", OutputID: "o", Delta: "-two", SequenceNumber: 2},
		&events.TerminalOutputAppended{ID: "d1", OutputID: "o", Delta: "-one", SequenceNumber: 1},
	)
	out, _ := store.GetOutput("o")
	deltas := store.OutputDeltasForOutput("o")
	if got := state.ApplyDeltas(out.Data, deltas); got != "D0-one-two" {
		t.Errorf("ApplyDeltas = %q, want %q", got, "D0-one-two")
	}
}

func TestTerminalAppendV1Concatenates(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store,
		createCell("C", "m"),
		&events.TerminalOutputAdded{ID: "o", CellID: "C", Position: 0, StreamName: "stdout", Content: inline("a")},
		&events.TerminalOutputAppendedV1{OutputID: "o", Delta: "b"},
		&events.TerminalOutputAppendedV1{OutputID: "o", Delta: "c"},
	)
	out, _ := store.GetOutput("o")
	if out.Data != "abc" {
		t.Errorf("v1 append data = %q, want %q", out.Data, "abc")
	}
}

func TestAppendToUnknownOutputIsSkipped(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store,
		&events.TerminalOutputAppendedV1{OutputID: "ghost", Delta: "x"},
		&events.TerminalOutputAppended{ID: "d", OutputID: "ghost", Delta: "x", SequenceNumber: 1},
	)
	if deltas := store.OutputDeltasForOutput("ghost"); len(deltas) != 0 {
		t.Errorf("deltas for unknown output = %v, want none", deltas)
	}
}

func TestExecutionLifecycle(t *testing.T) {
	// S6: requested → assigned → started → completed.
	store := state.NewStore()
	applyAll(t, store,
		createCell("C", "m"),
		&events.ExecutionRequested{QueueID: "Q", CellID: "C", ExecutionCount: 1, RequestedBy: "u"},
		&events.ExecutionAssigned{QueueID: "Q", RuntimeSessionID: "S"},
		&events.ExecutionStarted{QueueID: "Q", CellID: "C", RuntimeSessionID: "S", StartedAt: "T1"},
		&events.ExecutionCompleted{QueueID: "Q", CellID: "C", Status: events.ExecutionOutcomeSuccess, CompletedAt: "T2", ExecutionDurationMs: 50},
	)

	entries := store.ExecutionQueueForCell("C")
	if len(entries) != 1 {
		t.Fatalf("queue entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Status != state.QueueStatusCompleted {
		t.Errorf("queue status = %q, want completed", entry.Status)
	}
	if entry.ExecutionDurationMs == nil || *entry.ExecutionDurationMs != 50 {
		t.Errorf("queue duration = %v, want 50", entry.ExecutionDurationMs)
	}
	if entry.AssignedRuntimeSession == nil || *entry.AssignedRuntimeSession != "S" {
		t.Errorf("queue session = %v, want S", entry.AssignedRuntimeSession)
	}

	cell, _ := store.GetCell("C")
	if cell.ExecutionState != state.ExecStateCompleted {
		t.Errorf("cell state = %q, want completed", cell.ExecutionState)
	}
	if cell.ExecutionCount == nil || *cell.ExecutionCount != 1 {
		t.Errorf("cell execution count = %v, want 1", cell.ExecutionCount)
	}
	if cell.LastExecutionDurationMs == nil || *cell.LastExecutionDurationMs != 50 {
		t.Errorf("cell duration = %v, want 50", cell.LastExecutionDurationMs)
	}
}

func TestExecutionFailureAndCancellation(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store,
		createCell("C", "m"),
		&events.ExecutionRequested{QueueID: "Q1", CellID: "C", ExecutionCount: 1, RequestedBy: "u"},
		&events.ExecutionCompleted{QueueID: "Q1", CellID: "C", Status: events.ExecutionOutcomeFailure, CompletedAt: "T", ExecutionDurationMs: 10},
	)
	cell, _ := store.GetCell("C")
	if cell.ExecutionState != state.ExecStateError {
		t.Errorf("cell state after failure = %q, want error", cell.ExecutionState)
	}

	applyAll(t, store,
		&events.ExecutionRequested{QueueID: "Q2", CellID: "C", ExecutionCount: 2, RequestedBy: "u"},
		&events.ExecutionCancelled{QueueID: "Q2", CellID: "C", CancelledBy: "u"},
	)
	cell, _ = store.GetCell("C")
	if cell.ExecutionState != state.ExecStateIdle {
		t.Errorf("cell state after cancel = %q, want idle", cell.ExecutionState)
	}
	entries := store.ExecutionQueueForCell("C")
	if entries[0].Status != state.QueueStatusCancelled {
		t.Errorf("latest queue status = %q, want cancelled", entries[0].Status)
	}
}

func TestRuntimeSessionLifecycle(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store,
		&events.RuntimeSessionStarted{SessionID: "s1", RuntimeID: "r1", CanExecuteCode: true},
		&events.RuntimeSessionStatusChanged{SessionID: "s1", Status: state.SessionStatusReady},
	)
	sessions := store.RuntimeSessions()
	if len(sessions) != 1 || sessions[0].Status != state.SessionStatusReady || !sessions[0].IsActive {
		t.Fatalf("session after start+ready = %+v", sessions)
	}
	if sessions[0].RuntimeType != "python3" {
		t.Errorf("default runtime type = %q, want python3", sessions[0].RuntimeType)
	}

	applyAll(t, store, &events.RuntimeSessionTerminated{SessionID: "s1"})
	sessions = store.RuntimeSessions()
	if sessions[0].Status != state.SessionStatusTerminated || sessions[0].IsActive {
		t.Errorf("session after terminate = %+v", sessions[0])
	}
}

func TestCellDeleteDoesNotCascadeToOutputs(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store,
		createCell("C", "m"),
		&events.TerminalOutputAdded{ID: "o", CellID: "C", Position: 0, StreamName: "stdout", Content: inline("x")},
		&events.CellDeleted{ID: "C", ActorID: "u"},
	)
	if _, ok := store.GetCell("C"); ok {
		t.Error("cell row survived delete")
	}
	if outs := store.OutputsForCell("C"); len(outs) != 1 {
		t.Errorf("orphaned outputs = %d, want 1", len(outs))
	}
}

func TestPresenceReplacedOnWrite(t *testing.T) {
	c1, c2 := "c1", "c2"
	store := state.NewStore()
	applyAll(t, store,
		&events.PresenceSet{UserID: "u", CellID: &c1},
		&events.PresenceSet{UserID: "u", CellID: &c2},
	)
	rows := store.Presence()
	if len(rows) != 1 || rows[0].CellID == nil || *rows[0].CellID != "c2" {
		t.Errorf("presence = %v, want single row at c2", rows)
	}
}

func TestMetadataAndActors(t *testing.T) {
	store := state.NewStore()
	applyAll(t, store,
		&events.NotebookTitleChanged{Title: "My Notebook"},
		&events.NotebookMetadataSet{Key: "isPublic", Value: "true"},
		&events.ActorProfileSet{ID: "a1", Type: "human", DisplayName: "Ada"},
		&events.ToolApprovalRequested{ToolCallID: "t1", CellID: "C", ToolName: "shell"},
		&events.ToolApprovalResponded{ToolCallID: "t1", Status: events.ToolApprovalApprovedOnce},
	)
	info := store.NotebookInfo()
	if info.Title != "My Notebook" || !info.IsPublic {
		t.Errorf("notebook info = %+v", info)
	}
	if info.OwnerID != "anonymous" || info.RuntimeType != "python3" {
		t.Errorf("defaults not applied: %+v", info)
	}
	approvals := store.ToolApprovals()
	if len(approvals) != 1 || approvals[0].Status != events.ToolApprovalApprovedOnce {
		t.Errorf("approvals = %v", approvals)
	}
}

func TestReplayEquivalenceAcrossBatching(t *testing.T) {
	// Property 9: the serialized log yields the same tables regardless of
	// how it is batched.
	log := []events.Event{
		createCell("c1", "m"),
		createCell("c2", "n"),
		&events.CellSourceChanged{ID: "c1", Source: "print(1)"},
		&events.TerminalOutputAdded{ID: "o1", CellID: "c1", Position: 0, StreamName: "stdout", Content: inline("1")},
		&events.CellOutputsCleared{CellID: "c1", Wait: true, ClearedBy: "u"},
		&events.TerminalOutputAdded{ID: "o2", CellID: "c1", Position: 1, StreamName: "stdout", Content: inline("2")},
		&events.ExecutionRequested{QueueID: "q", CellID: "c2", ExecutionCount: 1, RequestedBy: "u"},
		&events.CellMoved{ID: "c2", FractionalIndex: "l", ActorID: "u"},
	}

	oneShot := state.NewStore()
	ReduceAll(oneShot, log)

	batched := state.NewStore()
	for _, ev := range log {
		ReduceAll(batched, []events.Event{ev})
	}

	if !reflect.DeepEqual(oneShot.Cells(), batched.Cells()) {
		t.Errorf("cells diverge between batchings:\n%v\n%v", oneShot.Cells(), batched.Cells())
	}
	if !reflect.DeepEqual(oneShot.OutputsForCell("c1"), batched.OutputsForCell("c1")) {
		t.Errorf("outputs diverge between batchings")
	}
	if !reflect.DeepEqual(oneShot.Presence(), batched.Presence()) {
		t.Errorf("presence diverges between batchings")
	}
}

func TestEnvelopeRoundTripThroughMaterializer(t *testing.T) {
	// Events that traveled through the wire envelope reduce identically.
	original := []events.Event{
		createCell("c1", "m"),
		&events.CellSourceChanged{ID: "c1", Source: "x = 1"},
	}
	envs, err := events.EncodeAll(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded := make([]events.Event, len(envs))
	for i, env := range envs {
		decoded[i], err = events.Decode(env)
		if err != nil {
			t.Fatalf("decode %s: %v", env.Name, err)
		}
	}

	direct, wired := state.NewStore(), state.NewStore()
	ReduceAll(direct, original)
	ReduceAll(wired, decoded)
	if !reflect.DeepEqual(direct.Cells(), wired.Cells()) {
		t.Errorf("wire round trip changed materialization")
	}
}

func TestUnknownEventProducesNoOps(t *testing.T) {
	ev, err := events.Decode(events.Envelope{Name: "v9.SomethingNew", Args: []byte(`{"x":1}`)})
	if err != nil {
		t.Fatalf("decode unknown: %v", err)
	}
	if ops := Reduce(state.NewStore(), ev); len(ops) != 0 {
		t.Errorf("unknown event produced ops: %v", ops)
	}
	env, err := events.Encode(ev)
	if err != nil {
		t.Fatalf("re-encode unknown: %v", err)
	}
	if env.Name != "v9.SomethingNew" || string(env.Args) != `{"x":1}` {
		t.Errorf("unknown event did not round-trip: %+v", env)
	}
}
