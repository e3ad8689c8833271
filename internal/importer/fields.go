package importer

// FieldType is the target type a cell is coerced to
type FieldType string

const (
	TypeText   FieldType = "text"
	TypeNumber FieldType = "number"
	TypeDate   FieldType = "date"
)

// FieldSpec describes one field of the work order schema
type FieldSpec struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Required    bool      `json:"required"`
	Type        FieldType `json:"type"`
	Description string    `json:"description"`
}

// Well-known field keys used by the pipeline itself
const (
	// FieldOrderNo is the natural key used for reconciliation
	FieldOrderNo = "orderNo"
	// FieldMachine is resolved against the machine catalogue
	FieldMachine = "machine"
	// FieldPriority defaults to PriorityLowest when absent
	FieldPriority = "priority"
	FieldQuantity = "quantity"
	FieldCadence  = "cadence"
	// FieldMachineID holds the resolved machine id, never mapped from input
	FieldMachineID = "machineId"
	// FieldStartDate is operator-owned scheduling state, never imported
	FieldStartDate = "startDate"
	// FieldEstimatedHours is derived as quantity/cadence during reconciliation
	FieldEstimatedHours = "estimatedHours"
)

// PriorityLowest and PriorityHighest bound the priority field (5 = least urgent)
const (
	PriorityHighest = 1.0
	PriorityLowest  = 5.0
)

// WorkOrderFields is the fixed import schema, in declaration order.
// Auto-mapping and validation iterate it in this order.
var WorkOrderFields = []FieldSpec{
	{Key: FieldOrderNo, Label: "Order number", Required: true, Type: TypeText, Description: "Unique work order number, reconciliation key"},
	{Key: FieldMachine, Label: "Machine", Required: true, Type: TypeText, Description: "Machine name or code, resolved against the machine catalogue"},
	{Key: FieldPriority, Label: "Priority", Required: false, Type: TypeNumber, Description: "Urgency 1 (highest) to 5 (lowest), defaults to 5"},
	{Key: "deliveryDate", Label: "Delivery date", Required: false, Type: TypeDate, Description: "Committed delivery date"},
	{Key: FieldQuantity, Label: "Quantity", Required: false, Type: TypeNumber, Description: "Ordered quantity in pieces"},
	{Key: FieldCadence, Label: "Cadence", Required: false, Type: TypeNumber, Description: "Production rate in pieces per hour"},
	{Key: "customer", Label: "Customer", Required: false, Type: TypeText, Description: "Customer name"},
	{Key: "article", Label: "Article", Required: false, Type: TypeText, Description: "Article or part number"},
	{Key: "articleName", Label: "Article name", Required: false, Type: TypeText, Description: "Human readable article description"},
	{Key: "material", Label: "Material", Required: false, Type: TypeText, Description: "Raw material designation"},
	{Key: "color", Label: "Color", Required: false, Type: TypeText, Description: "Color or finish"},
	{Key: "tooling", Label: "Tooling", Required: false, Type: TypeText, Description: "Tool or mold identifier"},
	{Key: "drawingNo", Label: "Drawing number", Required: false, Type: TypeText, Description: "Technical drawing reference"},
	{Key: "revision", Label: "Revision", Required: false, Type: TypeText, Description: "Drawing or article revision"},
	{Key: "batchNo", Label: "Batch number", Required: false, Type: TypeText, Description: "Production batch reference"},
	{Key: "packaging", Label: "Packaging", Required: false, Type: TypeText, Description: "Packaging instructions"},
	{Key: "surface", Label: "Surface", Required: false, Type: TypeText, Description: "Surface treatment"},
	{Key: "dimensions", Label: "Dimensions", Required: false, Type: TypeText, Description: "Part dimensions"},
	{Key: "costCenter", Label: "Cost center", Required: false, Type: TypeText, Description: "Accounting cost center"},
	{Key: "operatorNote", Label: "Operator note", Required: false, Type: TypeText, Description: "Free text note shown to the operator"},
	{Key: "remarks", Label: "Remarks", Required: false, Type: TypeText, Description: "General remarks"},
}

// FieldByKey returns the spec for a key, or false when unknown
func FieldByKey(key string) (FieldSpec, bool) {
	for _, f := range WorkOrderFields {
		if f.Key == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}
