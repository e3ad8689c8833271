package importer

// BuildPlan reconciles valid rows against the existing work orders by order
// number. Rows whose key matches an existing record become updates; the
// existing record's start date is carried forward so re-imports never clear
// operator-entered scheduling state. Rows with no match become creates with
// an empty start date. Invalid rows never enter the plan.
func BuildPlan(rows []ValidatedRow, existing []Record) *Plan {
	byKey := make(map[string]Record, len(existing))
	for _, r := range existing {
		if key, ok := r.Data[FieldOrderNo].(string); ok && key != "" {
			byKey[key] = r
		}
	}

	plan := &Plan{}
	for _, row := range rows {
		if row.Status != RowValid {
			continue
		}

		payload := make(map[string]any, len(row.Values)+2)
		for k, v := range row.Values {
			payload[k] = v
		}
		payload[FieldEstimatedHours] = estimatedHours(row.Values)

		key, _ := row.Values[FieldOrderNo].(string)
		if current, ok := byKey[key]; ok {
			payload[FieldStartDate] = current.Data[FieldStartDate]
			plan.ToUpdate = append(plan.ToUpdate, UpdateItem{ID: current.ID, Data: payload})
		} else {
			payload[FieldStartDate] = ""
			plan.ToCreate = append(plan.ToCreate, CreateItem{Data: payload})
		}
	}
	return plan
}

// estimatedHours derives quantity/cadence, zero when cadence is not positive
func estimatedHours(values map[string]any) float64 {
	quantity, _ := values[FieldQuantity].(float64)
	cadence, _ := values[FieldCadence].(float64)
	if cadence <= 0 {
		return 0
	}
	return quantity / cadence
}
