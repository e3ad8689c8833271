package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/mfgops/wo-import-server/internal/importer"
	"github.com/mfgops/wo-import-server/internal/session"
	"github.com/mfgops/wo-import-server/internal/version"
)

// Handler handles HTTP requests
type Handler struct {
	sessions       *session.Store
	records        importer.RecordStore
	serverTimings  *importer.Timings
	allowedBaseDir string
}

// NewHandler creates a new handler
func NewHandler(sessions *session.Store, records importer.RecordStore, serverTimings *importer.Timings, allowedBaseDir string) *Handler {
	absDir, err := filepath.Abs(allowedBaseDir)
	if err != nil {
		log.Fatalf("Invalid ALLOWED_BASE_DIR: %v", err)
	}

	return &Handler{
		sessions:       sessions,
		records:        records,
		serverTimings:  serverTimings,
		allowedBaseDir: absDir,
	}
}

type fileRequest struct {
	InputPath string `json:"inputPath"`
	Delimiter string `json:"delimiter"`
	Encoding  string `json:"encoding"`
}

func (h *Handler) parseFileRequest(w http.ResponseWriter, r *http.Request) (*importer.Table, fileRequest, importer.ParseOptions, bool) {
	var req fileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return nil, req, importer.ParseOptions{}, false
	}
	if req.InputPath == "" {
		http.Error(w, "inputPath is required", http.StatusBadRequest)
		return nil, req, importer.ParseOptions{}, false
	}

	opts := importer.ParseOptions{Delimiter: req.Delimiter, Encoding: req.Encoding}
	table, err := importer.ParseFile(req.InputPath, h.allowedBaseDir, opts)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse input: %v", err), http.StatusBadRequest)
		return nil, req, opts, false
	}
	return table, req, opts, true
}

// CreateSession handles POST /sessions: parses the file, proposes a mapping
// and opens a session in the mapping stage.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	table, req, opts, ok := h.parseFileRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	mapping := importer.AutoMap(table.Headers, importer.WorkOrderFields)
	sess := h.sessions.Create(req.InputPath, opts, table, mapping)
	sess.Timings.ObserveParse(time.Since(start))

	log.Printf("Session created: %s, inputPath: %s, rows: %d", sess.ID, req.InputPath, len(table.Rows))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"sessionId": sess.ID,
		"state":     sess.State,
		"headers":   table.Headers,
		"mapping":   mapping,
		"rowCount":  len(table.Rows),
	})
}

// LoadFile handles POST /sessions/{id}/file: loading a new file resets the
// session unconditionally.
func (h *Handler) LoadFile(w http.ResponseWriter, r *http.Request, id string) {
	table, req, opts, ok := h.parseFileRequest(w, r)
	if !ok {
		return
	}

	mapping := importer.AutoMap(table.Headers, importer.WorkOrderFields)
	if err := h.sessions.ResetFile(id, req.InputPath, opts, table, mapping); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	log.Printf("Session %s: new file loaded, session reset", id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"state":    session.StateMapping,
		"headers":  table.Headers,
		"mapping":  mapping,
		"rowCount": len(table.Rows),
	})
}

// GetSession handles GET /sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.sessions.Snapshot(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	response := map[string]any{
		"sessionId":  sess.ID,
		"state":      sess.State,
		"inputPath":  sess.InputPath,
		"headers":    sess.Table.Headers,
		"mapping":    sess.Mapping,
		"rowCount":   len(sess.Table.Rows),
		"validCount": sess.ValidCount(),
		"errorCount": sess.ErrorCount(),
		"progress":   sess.Progress,
		"summary":    sess.Summary,
		"log":        sess.Log,
		"timings":    sess.Timings.Snapshot(),
	}
	if sess.Plan != nil {
		response["toCreate"] = len(sess.Plan.ToCreate)
		response["toUpdate"] = len(sess.Plan.ToUpdate)
	}
	if sess.LastError != "" {
		response["lastError"] = sess.LastError
	}
	if sess.FinishedAt != nil {
		response["finishedAt"] = sess.FinishedAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// UpdateMapping handles PUT /sessions/{id}/mapping. The body is a partial
// field-to-column map; an empty column clears an assignment.
func (h *Handler) UpdateMapping(w http.ResponseWriter, r *http.Request, id string) {
	var assignments map[string]string
	if err := json.NewDecoder(r.Body).Decode(&assignments); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	for fieldKey, column := range assignments {
		if err := h.sessions.SetMapping(id, fieldKey, column); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	sess, err := h.sessions.Snapshot(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"mapping": sess.Mapping})
}

// Validate handles POST /sessions/{id}/validate: resolves references against
// the machine catalogue, classifies every row and builds the reconciliation
// plan against the current work orders.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request, id string) {
	table, mapping, timings, err := h.sessions.ValidationInput(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	machineRecords, err := h.records.List(r.Context(), importer.EntityMachines)
	if err != nil {
		log.Printf("Session %s: failed to fetch machine catalogue: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to fetch machine catalogue: %v", err), http.StatusBadGateway)
		return
	}
	existing, err := h.records.List(r.Context(), importer.EntityWorkOrders)
	if err != nil {
		log.Printf("Session %s: failed to fetch existing work orders: %v", id, err)
		http.Error(w, fmt.Sprintf("Failed to fetch existing work orders: %v", err), http.StatusBadGateway)
		return
	}

	catalog := importer.CatalogFromRecords(machineRecords)

	start := time.Now()
	rows := importer.ValidateRows(table, mapping, catalog)
	timings.ObserveValidate(time.Since(start))

	start = time.Now()
	plan := importer.BuildPlan(rows, existing)
	timings.ObservePlan(time.Since(start))

	if err := h.sessions.SetValidated(id, rows, plan); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	valid := 0
	for _, row := range rows {
		if row.Status == importer.RowValid {
			valid++
		}
	}
	log.Printf("Session %s: validated %d rows (%d valid), plan: %d create, %d update",
		id, len(rows), valid, len(plan.ToCreate), len(plan.ToUpdate))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"state":      session.StatePreview,
		"rowCount":   len(rows),
		"validCount": valid,
		"errorCount": len(rows) - valid,
		"toCreate":   len(plan.ToCreate),
		"toUpdate":   len(plan.ToUpdate),
	})
}

// GetRows handles GET /sessions/{id}/rows: the preview of every validated
// row with its errors and warnings.
func (h *Handler) GetRows(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.sessions.Snapshot(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"rows": sess.Rows})
}

// Execute handles POST /sessions/{id}/execute: enters processing and queues
// the run. Zero eligible rows blocks execution and keeps the preview.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.sessions.BeginExecution(id); err != nil {
		switch {
		case errors.Is(err, session.ErrNothingToImport):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, session.ErrQueueFull):
			http.Error(w, err.Error(), http.StatusTooManyRequests)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}

	log.Printf("Session %s: execution queued", id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"state": session.StateProcessing})
}

// Back handles POST /sessions/{id}/back: processing steps back to preview,
// only possible before the run has started.
func (h *Handler) Back(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.sessions.Back(id); err != nil {
		if errors.Is(err, session.ErrAlreadyStarted) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"state": session.StatePreview})
}

// Cancel handles POST /sessions/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.sessions.Cancel(id); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("Session %s: cancellation requested", id)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "cancelling"})
}

// GetReport handles GET /sessions/{id}/report: the final summary as a
// downloadable document.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request, id string) {
	sess, err := h.sessions.Snapshot(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	report := map[string]any{
		"sessionId": sess.ID,
		"inputPath": sess.InputPath,
		"created":   sess.Summary.Created,
		"updated":   sess.Summary.Updated,
		"failed":    sess.Summary.Failed,
	}
	if sess.FinishedAt != nil {
		report["finishedAt"] = sess.FinishedAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=import-report-%s.json", sess.ID))
	json.NewEncoder(w).Encode(report)
}

// CloseSession handles DELETE /sessions/{id}
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.sessions.Close(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	log.Printf("Session closed: %s", id)
	w.WriteHeader(http.StatusNoContent)
}

// Wipe handles POST /maintenance/wipe: best-effort deletion of every work
// order, in small paced chunks.
func (h *Handler) Wipe(w http.ResponseWriter, r *http.Request) {
	runner := importer.NewRunner(h.records, importer.EntityWorkOrders, h.serverTimings)
	deleted, failed, err := runner.Wipe(r.Context(), logReporter{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int{"deleted": deleted, "failed": failed})
}

// GetVersion handles GET /version
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(version.Info())
}

// GetMetrics handles GET /metrics: server-wide store call diagnostics
func (h *Handler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.serverTimings.Snapshot())
}

// logReporter forwards runner events to the server log
type logReporter struct{}

func (logReporter) Event(sev importer.Severity, msg string) {
	log.Printf("wipe [%s]: %s", sev, msg)
}

func (logReporter) Progress(done, total int) {}

// sessionID extracts the session id segment from a /sessions/{id}... path
func sessionID(path, suffix string) string {
	id := strings.TrimPrefix(path, "/sessions/")
	id = strings.TrimSuffix(id, suffix)
	return strings.Trim(id, "/")
}
