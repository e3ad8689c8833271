package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfgops/wo-import-server/internal/importer"
)

var (
	// ErrQueueFull is returned when the execution queue is full
	ErrQueueFull = errors.New("execution queue is full")
	// ErrNothingToImport is returned when the plan holds no eligible rows
	ErrNothingToImport = errors.New("no valid rows to import")
	// ErrBadTransition is returned for a state change the machine forbids
	ErrBadTransition = errors.New("invalid state transition")
	// ErrAlreadyStarted is returned when the run has been picked up
	ErrAlreadyStarted = errors.New("execution already started")
)

// Store manages import sessions in memory and owns the execution queue.
// A single worker drains the queue, so at most one session writes to the
// record store at a time.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	queue    chan string
	cancels  map[string]context.CancelFunc
}

// NewStore creates a new session store
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		queue:    make(chan string, 100),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Create registers a freshly parsed session and moves it to the mapping
// stage. The proposed mapping comes from auto-detection over the headers.
func (s *Store) Create(inputPath string, opts importer.ParseOptions, table *importer.Table, mapping importer.FieldMapping) *Session {
	sess := &Session{
		ID:        uuid.New().String(),
		InputPath: inputPath,
		ParseOpts: opts,
		State:     StateMapping,
		Table:     table,
		Mapping:   mapping,
		Timings:   importer.NewTimings(),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get retrieves a session by id
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return sess, nil
}

// Snapshot returns a copy of the session for read-only use. Slices are
// shared but only ever appended to under the store lock.
func (s *Store) Snapshot(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("session not found: %s", id)
	}
	return *sess, nil
}

// ValidationInput returns the parsed table and a copy of the current mapping.
// Validation runs on the copy, so a concurrent mapping edit never touches the
// rows being validated. The table is replaced wholesale on file load, never
// mutated, so the pointer is safe to share.
func (s *Store) ValidationInput(id string) (*importer.Table, importer.FieldMapping, *importer.Timings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil, nil, fmt.Errorf("session not found: %s", id)
	}

	mapping := make(importer.FieldMapping, len(sess.Mapping))
	for k, v := range sess.Mapping {
		mapping[k] = v
	}
	return sess.Table, mapping, sess.Timings, nil
}

// ResetFile discards everything a session holds and starts over with a new
// parsed file. Loading a new file resets unconditionally, including during
// processing (any running execution is cancelled first).
func (s *Store) ResetFile(id, inputPath string, opts importer.ParseOptions, table *importer.Table, mapping importer.FieldMapping) error {
	s.cancelRun(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}

	sess.InputPath = inputPath
	sess.ParseOpts = opts
	sess.State = StateMapping
	sess.Table = table
	sess.Mapping = mapping
	sess.Rows = nil
	sess.Plan = nil
	sess.Log = nil
	sess.Summary = importer.Summary{}
	sess.Progress = 0
	sess.Timings = importer.NewTimings()
	sess.Started = false
	sess.LastError = ""
	sess.FinishedAt = nil
	return nil
}

// SetMapping adjusts one field assignment. Allowed while mapping or while
// previewing (a re-validation then rebuilds the plan).
func (s *Store) SetMapping(id, fieldKey, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	if sess.State != StateMapping && sess.State != StatePreview {
		return fmt.Errorf("%w: cannot edit mapping in state %s", ErrBadTransition, sess.State)
	}
	return sess.Mapping.Set(fieldKey, column, sess.Table.Headers)
}

// SetValidated stores validation and reconciliation output and moves the
// session to preview.
func (s *Store) SetValidated(id string, rows []importer.ValidatedRow, plan *importer.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	if sess.State != StateMapping && sess.State != StatePreview {
		return fmt.Errorf("%w: cannot validate in state %s", ErrBadTransition, sess.State)
	}

	sess.Rows = rows
	sess.Plan = plan
	sess.State = StatePreview
	return nil
}

// BeginExecution moves preview to processing and enqueues the run. A plan
// with zero eligible rows is rejected and the session stays in preview.
func (s *Store) BeginExecution(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	if sess.State != StatePreview {
		return fmt.Errorf("%w: cannot execute in state %s", ErrBadTransition, sess.State)
	}
	if sess.Plan == nil || sess.Plan.Size() == 0 {
		s.appendLogLocked(sess, importer.SeverityError, "nothing to import: no valid rows")
		return ErrNothingToImport
	}

	select {
	case s.queue <- id:
	default:
		return ErrQueueFull
	}

	sess.State = StateProcessing
	sess.Started = false
	return nil
}

// Back steps processing back to preview. Only possible while the worker has
// not picked the run up yet.
func (s *Store) Back(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	if sess.State != StateProcessing {
		return fmt.Errorf("%w: cannot go back in state %s", ErrBadTransition, sess.State)
	}
	if sess.Started {
		return ErrAlreadyStarted
	}

	sess.State = StatePreview
	return nil
}

// StartRun is called by the worker when it picks a queued session up. It
// atomically claims the run; a session that stepped back to preview in the
// meantime is not claimable. The returned context governs the run and is
// cancelled by Cancel.
func (s *Store) StartRun(parent context.Context, id string) (*Session, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil, fmt.Errorf("session not found: %s", id)
	}
	if sess.State != StateProcessing || sess.Started {
		return nil, nil, fmt.Errorf("%w: session %s is not awaiting execution", ErrBadTransition, id)
	}

	sess.Started = true
	ctx, cancel := context.WithCancel(parent)
	s.cancels[id] = cancel
	return sess, ctx, nil
}

// FinishRun records the final summary and moves the session to result.
// Used for natural completion and for cancellation alike.
func (s *Store) FinishRun(id string, sum importer.Summary) {
	s.cancelRun(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}

	sess.Summary = sum
	sess.State = StateResult
	now := time.Now()
	sess.FinishedAt = &now
}

// FailRun records a critical failure. The summary keeps whatever was
// committed before the failure.
func (s *Store) FailRun(id string, sum importer.Summary, err error) {
	s.cancelRun(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}

	sess.Summary = sum
	sess.LastError = err.Error()
	s.appendLogLocked(sess, importer.SeverityError, fmt.Sprintf("import aborted: %v", err))
	sess.State = StateResult
	now := time.Now()
	sess.FinishedAt = &now
}

// Cancel requests cooperative cancellation. A run in progress finishes its
// current unit and then stops; a queued, not yet started run drops back to
// preview.
func (s *Store) Cancel(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("session not found: %s", id)
	}
	if sess.State != StateProcessing {
		s.mu.Unlock()
		return fmt.Errorf("%w: nothing to cancel in state %s", ErrBadTransition, sess.State)
	}

	if !sess.Started {
		sess.State = StatePreview
		s.appendLogLocked(sess, importer.SeverityInfo, "execution cancelled before start")
		s.mu.Unlock()
		return nil
	}

	cancel := s.cancels[id]
	s.appendLogLocked(sess, importer.SeverityInfo, "cancellation requested")
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Close discards a session entirely, cancelling any run in flight
func (s *Store) Close(id string) error {
	s.cancelRun(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session not found: %s", id)
	}
	delete(s.sessions, id)
	return nil
}

// AppendLog adds a timestamped entry to the session's execution log
func (s *Store) AppendLog(id string, sev importer.Severity, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	s.appendLogLocked(sess, sev, msg)
}

func (s *Store) appendLogLocked(sess *Session, sev importer.Severity, msg string) {
	sess.Log = append(sess.Log, LogEntry{
		Timestamp: time.Now(),
		Severity:  sev,
		Message:   msg,
	})
}

// SetProgress updates the progress fraction after one processed unit
func (s *Store) SetProgress(id string, done, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	if total > 0 {
		sess.Progress = float64(done) / float64(total)
	}
}

// NextSession blocks until a session is queued for execution
func (s *Store) NextSession(ctx context.Context) (string, error) {
	select {
	case id := <-s.queue:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Store) cancelRun(id string) {
	s.mu.Lock()
	cancel := s.cancels[id]
	delete(s.cancels, id)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Reporter returns an importer.Reporter that feeds a session's log and
// progress fraction.
func (s *Store) Reporter(id string) importer.Reporter {
	return &storeReporter{store: s, id: id}
}

type storeReporter struct {
	store *Store
	id    string
}

func (r *storeReporter) Event(sev importer.Severity, msg string) {
	r.store.AppendLog(r.id, sev, msg)
}

func (r *storeReporter) Progress(done, total int) {
	r.store.SetProgress(r.id, done, total)
	r.store.AppendLog(r.id, importer.SeverityInfo,
		fmt.Sprintf("progress: %d/%d", done, total))
}
