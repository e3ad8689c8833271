package importer

import "testing"

func validRow(orderNo string, values map[string]any) ValidatedRow {
	v := map[string]any{FieldOrderNo: orderNo}
	for k, val := range values {
		v[k] = val
	}
	return ValidatedRow{Status: RowValid, Values: v}
}

func TestBuildPlanSplitsByNaturalKey(t *testing.T) {
	rows := []ValidatedRow{
		validRow("A1", nil),
		validRow("A2", nil),
		{Status: RowError, Values: map[string]any{FieldOrderNo: "A3"}},
	}
	existing := []Record{
		{ID: "r2", Data: map[string]any{FieldOrderNo: "A2", FieldStartDate: "2024-01-10"}},
		{ID: "r9", Data: map[string]any{FieldOrderNo: "Z9"}},
	}

	plan := BuildPlan(rows, existing)

	if len(plan.ToCreate) != 1 || len(plan.ToUpdate) != 1 {
		t.Fatalf("plan = %d create / %d update, want 1/1", len(plan.ToCreate), len(plan.ToUpdate))
	}
	if plan.ToCreate[0].Data[FieldOrderNo] != "A1" {
		t.Errorf("create key = %v, want A1", plan.ToCreate[0].Data[FieldOrderNo])
	}
	if plan.ToUpdate[0].ID != "r2" {
		t.Errorf("update target = %s, want r2", plan.ToUpdate[0].ID)
	}
	// Invalid rows appear in neither list
	if plan.Size() != 2 {
		t.Errorf("Size() = %d, want 2", plan.Size())
	}
}

func TestBuildPlanCarriesForwardStartDate(t *testing.T) {
	rows := []ValidatedRow{validRow("A1", nil), validRow("A2", nil)}
	existing := []Record{
		{ID: "r1", Data: map[string]any{FieldOrderNo: "A1", FieldStartDate: "2024-01-10"}},
	}

	plan := BuildPlan(rows, existing)

	if got := plan.ToUpdate[0].Data[FieldStartDate]; got != "2024-01-10" {
		t.Errorf("update startDate = %v, operator-entered state must survive re-import", got)
	}
	if got := plan.ToCreate[0].Data[FieldStartDate]; got != "" {
		t.Errorf("create startDate = %v, want empty", got)
	}
}

func TestBuildPlanDerivedDuration(t *testing.T) {
	tests := []struct {
		name     string
		quantity any
		cadence  any
		want     float64
	}{
		{name: "quantity over cadence", quantity: 100.0, cadence: 25.0, want: 4},
		{name: "zero cadence yields zero", quantity: 100.0, cadence: 0.0, want: 0},
		{name: "negative cadence yields zero", quantity: 100.0, cadence: -5.0, want: 0},
		{name: "absent values yield zero", quantity: nil, cadence: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := map[string]any{}
			if tt.quantity != nil {
				values[FieldQuantity] = tt.quantity
			}
			if tt.cadence != nil {
				values[FieldCadence] = tt.cadence
			}
			plan := BuildPlan([]ValidatedRow{validRow("A1", values)}, nil)
			if got := plan.ToCreate[0].Data[FieldEstimatedHours]; got != tt.want {
				t.Errorf("estimatedHours = %v, want %g", got, tt.want)
			}
		})
	}
}

func TestBuildPlanIdempotence(t *testing.T) {
	rows := []ValidatedRow{validRow("A1", nil), validRow("A2", nil), validRow("A3", nil)}

	first := BuildPlan(rows, nil)
	if len(first.ToCreate) != 3 || len(first.ToUpdate) != 0 {
		t.Fatalf("first run: %d/%d, want 3/0", len(first.ToCreate), len(first.ToUpdate))
	}

	// Simulate the store after the first import
	existing := make([]Record, 0, len(first.ToCreate))
	for i, c := range first.ToCreate {
		existing = append(existing, Record{ID: string(rune('a' + i)), Data: c.Data})
	}

	second := BuildPlan(rows, existing)
	if len(second.ToCreate) != 0 {
		t.Errorf("second run toCreate = %d, want 0", len(second.ToCreate))
	}
	if len(second.ToUpdate) != len(rows) {
		t.Errorf("second run toUpdate = %d, want %d", len(second.ToUpdate), len(rows))
	}
}

func TestBuildPlanDoesNotMutateRowValues(t *testing.T) {
	row := validRow("A1", map[string]any{FieldQuantity: 10.0, FieldCadence: 2.0})
	BuildPlan([]ValidatedRow{row}, nil)

	if _, ok := row.Values[FieldEstimatedHours]; ok {
		t.Error("planner must not write derived fields back into the validated row")
	}
	if _, ok := row.Values[FieldStartDate]; ok {
		t.Error("planner must not write scheduling state back into the validated row")
	}
}
