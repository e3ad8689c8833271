package session

import (
	"time"

	"github.com/mfgops/wo-import-server/internal/importer"
)

// State of an import session. Linear flow upload -> mapping -> preview ->
// processing -> result; processing can step back to preview only before the
// run has started.
type State string

const (
	StateUpload     State = "upload"
	StateMapping    State = "mapping"
	StatePreview    State = "preview"
	StateProcessing State = "processing"
	StateResult     State = "result"
)

// LogEntry is one line of the append-only execution log
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Severity  importer.Severity `json:"severity"`
	Message   string            `json:"message"`
}

// Session holds everything one import owns, from file load to final summary.
// All of it is discarded when the session closes or a new file is loaded.
type Session struct {
	ID        string
	InputPath string
	ParseOpts importer.ParseOptions
	State     State

	Table   *importer.Table
	Mapping importer.FieldMapping
	Rows    []importer.ValidatedRow
	Plan    *importer.Plan

	Log      []LogEntry
	Summary  importer.Summary
	Progress float64
	Timings  *importer.Timings

	// Started flips once the worker has picked the run up; from then on
	// stepping back to preview is impossible.
	Started    bool
	LastError  string
	CreatedAt  time.Time
	FinishedAt *time.Time
}

// ValidCount returns the number of rows that passed validation
func (s *Session) ValidCount() int {
	n := 0
	for _, r := range s.Rows {
		if r.Status == importer.RowValid {
			n++
		}
	}
	return n
}

// ErrorCount returns the number of rows that failed validation
func (s *Session) ErrorCount() int {
	return len(s.Rows) - s.ValidCount()
}
