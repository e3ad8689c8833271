package session

import (
	"context"
	"errors"
	"testing"

	"github.com/mfgops/wo-import-server/internal/importer"
)

func testTable() *importer.Table {
	return &importer.Table{
		Headers: []string{"order", "machine"},
		Rows: []importer.RawRow{
			{"order": "A1", "machine": "Laser-02"},
		},
	}
}

func testMapping() importer.FieldMapping {
	return importer.FieldMapping{
		importer.FieldOrderNo: "order",
		importer.FieldMachine: "machine",
	}
}

func validatedFixture() ([]importer.ValidatedRow, *importer.Plan) {
	rows := []importer.ValidatedRow{
		{RowNo: 1, Status: importer.RowValid, Values: map[string]any{importer.FieldOrderNo: "A1"}},
	}
	plan := &importer.Plan{
		ToCreate: []importer.CreateItem{{Data: map[string]any{importer.FieldOrderNo: "A1"}}},
	}
	return rows, plan
}

func newPreviewSession(t *testing.T, s *Store) *Session {
	t.Helper()
	sess := s.Create("/data/in/orders.csv", importer.ParseOptions{}, testTable(), testMapping())
	rows, plan := validatedFixture()
	if err := s.SetValidated(sess.ID, rows, plan); err != nil {
		t.Fatalf("SetValidated() error = %v", err)
	}
	return sess
}

func TestCreateStartsInMapping(t *testing.T) {
	s := NewStore()
	sess := s.Create("/data/in/orders.csv", importer.ParseOptions{}, testTable(), testMapping())

	if sess.ID == "" {
		t.Error("expected a session id")
	}
	if sess.State != StateMapping {
		t.Errorf("state = %s, want mapping", sess.State)
	}

	got, err := s.Get(sess.ID)
	if err != nil || got.ID != sess.ID {
		t.Errorf("Get() = %v, %v", got, err)
	}
}

func TestSetMappingStates(t *testing.T) {
	s := NewStore()
	sess := s.Create("/x", importer.ParseOptions{}, testTable(), testMapping())

	if err := s.SetMapping(sess.ID, importer.FieldMachine, "order"); err != nil {
		t.Errorf("SetMapping() in mapping state error = %v", err)
	}

	rows, plan := validatedFixture()
	if err := s.SetValidated(sess.ID, rows, plan); err != nil {
		t.Fatalf("SetValidated() error = %v", err)
	}
	// Editing in preview is allowed, a re-validation rebuilds the plan
	if err := s.SetMapping(sess.ID, importer.FieldMachine, "machine"); err != nil {
		t.Errorf("SetMapping() in preview state error = %v", err)
	}

	if err := s.BeginExecution(sess.ID); err != nil {
		t.Fatalf("BeginExecution() error = %v", err)
	}
	if err := s.SetMapping(sess.ID, importer.FieldMachine, "order"); err == nil {
		t.Error("SetMapping() should be rejected while processing")
	}
}

func TestValidationInputIsolatedFromMappingEdits(t *testing.T) {
	s := NewStore()
	sess := s.Create("/x", importer.ParseOptions{}, testTable(), testMapping())

	_, mapping, timings, err := s.ValidationInput(sess.ID)
	if err != nil {
		t.Fatalf("ValidationInput() error = %v", err)
	}
	if timings == nil {
		t.Fatal("expected the session's timings")
	}

	// A concurrent mapping edit must not leak into the copy in use
	if err := s.SetMapping(sess.ID, importer.FieldOrderNo, "machine"); err != nil {
		t.Fatalf("SetMapping() error = %v", err)
	}
	if mapping[importer.FieldOrderNo] != "order" {
		t.Errorf("mapping copy = %v, observed a later edit", mapping)
	}

	if _, _, _, err := s.ValidationInput("missing"); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestBeginExecutionRequiresEligibleRows(t *testing.T) {
	s := NewStore()
	sess := s.Create("/x", importer.ParseOptions{}, testTable(), testMapping())

	// Not validated yet
	if err := s.BeginExecution(sess.ID); !errors.Is(err, ErrBadTransition) {
		t.Errorf("expected ErrBadTransition, got %v", err)
	}

	// Validated, but the plan is empty
	if err := s.SetValidated(sess.ID, nil, &importer.Plan{}); err != nil {
		t.Fatalf("SetValidated() error = %v", err)
	}
	if err := s.BeginExecution(sess.ID); !errors.Is(err, ErrNothingToImport) {
		t.Errorf("expected ErrNothingToImport, got %v", err)
	}

	snap, _ := s.Snapshot(sess.ID)
	if snap.State != StatePreview {
		t.Errorf("state = %s, zero eligible rows must keep the preview", snap.State)
	}
	if len(snap.Log) == 0 {
		t.Error("expected a logged warning about the empty plan")
	}
}

func TestExecuteQueuesSession(t *testing.T) {
	s := NewStore()
	sess := newPreviewSession(t, s)

	if err := s.BeginExecution(sess.ID); err != nil {
		t.Fatalf("BeginExecution() error = %v", err)
	}
	snap, _ := s.Snapshot(sess.ID)
	if snap.State != StateProcessing {
		t.Errorf("state = %s, want processing", snap.State)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id, err := s.NextSession(ctx)
	if err != nil || id != sess.ID {
		t.Errorf("NextSession() = %q, %v", id, err)
	}
}

func TestBackBeforeStart(t *testing.T) {
	s := NewStore()
	sess := newPreviewSession(t, s)

	if err := s.Back(sess.ID); !errors.Is(err, ErrBadTransition) {
		t.Errorf("Back() from preview should be rejected, got %v", err)
	}

	if err := s.BeginExecution(sess.ID); err != nil {
		t.Fatalf("BeginExecution() error = %v", err)
	}
	if err := s.Back(sess.ID); err != nil {
		t.Fatalf("Back() before start error = %v", err)
	}
	snap, _ := s.Snapshot(sess.ID)
	if snap.State != StatePreview {
		t.Errorf("state = %s, want preview", snap.State)
	}

	// The stale queue entry must not be claimable
	if _, _, err := s.StartRun(context.Background(), sess.ID); err == nil {
		t.Error("StartRun() after back should fail")
	}
}

func TestBackAfterStart(t *testing.T) {
	s := NewStore()
	sess := newPreviewSession(t, s)

	if err := s.BeginExecution(sess.ID); err != nil {
		t.Fatalf("BeginExecution() error = %v", err)
	}
	if _, _, err := s.StartRun(context.Background(), sess.ID); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if err := s.Back(sess.ID); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestStartRunClaimsOnce(t *testing.T) {
	s := NewStore()
	sess := newPreviewSession(t, s)

	if err := s.BeginExecution(sess.ID); err != nil {
		t.Fatalf("BeginExecution() error = %v", err)
	}
	if _, _, err := s.StartRun(context.Background(), sess.ID); err != nil {
		t.Fatalf("first StartRun() error = %v", err)
	}
	if _, _, err := s.StartRun(context.Background(), sess.ID); err == nil {
		t.Error("second StartRun() should fail")
	}
}

func TestCancelRunningSession(t *testing.T) {
	s := NewStore()
	sess := newPreviewSession(t, s)

	if err := s.BeginExecution(sess.ID); err != nil {
		t.Fatalf("BeginExecution() error = %v", err)
	}
	_, runCtx, err := s.StartRun(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	if err := s.Cancel(sess.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	select {
	case <-runCtx.Done():
	default:
		t.Error("run context should be cancelled")
	}

	// The runner saw the cancellation and hands in what was committed
	s.FinishRun(sess.ID, importer.Summary{Created: 20})
	snap, _ := s.Snapshot(sess.ID)
	if snap.State != StateResult {
		t.Errorf("state = %s, want result", snap.State)
	}
	if snap.Summary.Created != 20 {
		t.Errorf("summary = %+v, committed work must be kept", snap.Summary)
	}
}

func TestCancelQueuedSessionDropsToPreview(t *testing.T) {
	s := NewStore()
	sess := newPreviewSession(t, s)

	if err := s.BeginExecution(sess.ID); err != nil {
		t.Fatalf("BeginExecution() error = %v", err)
	}
	if err := s.Cancel(sess.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	snap, _ := s.Snapshot(sess.ID)
	if snap.State != StatePreview {
		t.Errorf("state = %s, want preview", snap.State)
	}
}

func TestFailRunKeepsPartialSummary(t *testing.T) {
	s := NewStore()
	sess := newPreviewSession(t, s)

	if err := s.BeginExecution(sess.ID); err != nil {
		t.Fatalf("BeginExecution() error = %v", err)
	}
	if _, _, err := s.StartRun(context.Background(), sess.ID); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}

	s.FailRun(sess.ID, importer.Summary{Created: 5}, errors.New("store unreachable"))
	snap, _ := s.Snapshot(sess.ID)
	if snap.State != StateResult {
		t.Errorf("state = %s, want result", snap.State)
	}
	if snap.LastError == "" {
		t.Error("expected LastError to be set")
	}
	if snap.Summary.Created != 5 {
		t.Errorf("summary = %+v, want partial completion kept", snap.Summary)
	}
}

func TestResetFileClearsEverything(t *testing.T) {
	s := NewStore()
	sess := newPreviewSession(t, s)
	s.AppendLog(sess.ID, importer.SeverityInfo, "before reset")

	err := s.ResetFile(sess.ID, "/data/in/other.csv", importer.ParseOptions{}, testTable(), testMapping())
	if err != nil {
		t.Fatalf("ResetFile() error = %v", err)
	}

	snap, _ := s.Snapshot(sess.ID)
	if snap.State != StateMapping {
		t.Errorf("state = %s, want mapping", snap.State)
	}
	if snap.Rows != nil || snap.Plan != nil || len(snap.Log) != 0 {
		t.Error("reset must discard rows, plan and log")
	}
	if snap.InputPath != "/data/in/other.csv" {
		t.Errorf("inputPath = %s", snap.InputPath)
	}
}

func TestCloseRemovesSession(t *testing.T) {
	s := NewStore()
	sess := s.Create("/x", importer.ParseOptions{}, testTable(), testMapping())

	if err := s.Close(sess.ID); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := s.Get(sess.ID); err == nil {
		t.Error("closed session should be gone")
	}
	if err := s.Close(sess.ID); err == nil {
		t.Error("closing twice should fail")
	}
}

func TestReporterFeedsLogAndProgress(t *testing.T) {
	s := NewStore()
	sess := newPreviewSession(t, s)

	rep := s.Reporter(sess.ID)
	rep.Event(importer.SeveritySuccess, "created 20 work orders")
	rep.Progress(20, 27)

	snap, _ := s.Snapshot(sess.ID)
	if len(snap.Log) < 2 {
		t.Fatalf("log = %v", snap.Log)
	}
	if snap.Log[0].Severity != importer.SeveritySuccess {
		t.Errorf("severity = %s", snap.Log[0].Severity)
	}
	if snap.Log[0].Timestamp.IsZero() {
		t.Error("log entries must be timestamped")
	}
	if snap.Progress <= 0.7 || snap.Progress >= 0.8 {
		t.Errorf("progress = %g, want 20/27", snap.Progress)
	}
}
