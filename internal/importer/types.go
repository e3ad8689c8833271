package importer

import "context"

// RowStatus classifies a validated row
type RowStatus string

const (
	RowValid RowStatus = "valid"
	RowError RowStatus = "error"
)

// RawRow is one data row of the input file, keyed by source column name
type RawRow map[string]string

// ValidatedRow is the result of validating one raw row.
// Status is RowError iff Errors is non-empty; warnings never affect status.
type ValidatedRow struct {
	RowNo     int            `json:"rowNo"`
	Status    RowStatus      `json:"status"`
	Errors    []string       `json:"errors,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Values    map[string]any `json:"values"`
	MachineID string         `json:"machineId,omitempty"`
}

// CreateItem is a payload with no matching existing record
type CreateItem struct {
	Data map[string]any `json:"data"`
}

// UpdateItem targets an existing record by id
type UpdateItem struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// Plan is the output of reconciliation: disjoint create and update lists.
// Every valid row lands in exactly one of the two.
type Plan struct {
	ToCreate []CreateItem `json:"toCreate"`
	ToUpdate []UpdateItem `json:"toUpdate"`
}

// Size returns the total number of planned mutations
func (p *Plan) Size() int {
	return len(p.ToCreate) + len(p.ToUpdate)
}

// Entity types of the record store the pipeline touches
const (
	EntityWorkOrders = "workorders"
	EntityMachines   = "machines"
)

// Record is a generic record of the external store
type Record struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// RecordStore is the external generic record store, one namespace per entity
// type. The pipeline assumes only eventual per-call success or failure; no
// transactional or batch-atomicity guarantees.
type RecordStore interface {
	List(ctx context.Context, entity string) ([]Record, error)
	Create(ctx context.Context, entity string, data map[string]any) (Record, error)
	BulkCreate(ctx context.Context, entity string, items []map[string]any) ([]Record, error)
	Update(ctx context.Context, entity, id string, data map[string]any) (Record, error)
	Delete(ctx context.Context, entity, id string) error
}

// Severity of an execution log event
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Summary holds the final import counts. Counters only ever grow.
type Summary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Reporter receives execution events and progress from the runner.
// Implementations must tolerate calls from the runner goroutine.
type Reporter interface {
	Event(sev Severity, msg string)
	Progress(done, total int)
}

// NopReporter discards all events
type NopReporter struct{}

func (NopReporter) Event(Severity, string) {}
func (NopReporter) Progress(int, int)      {}
