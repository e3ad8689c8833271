package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValidateRows validates every raw row against the schema, resolving machine
// references through the catalogue. Output is order-preserving, one
// ValidatedRow per input row. A row is RowError iff it accumulated at least
// one error; warnings never change the status.
func ValidateRows(table *Table, mapping FieldMapping, catalog *Catalog) []ValidatedRow {
	out := make([]ValidatedRow, 0, len(table.Rows))
	seenKeys := make(map[string]int, len(table.Rows))

	for i, raw := range table.Rows {
		row := validateRow(i+1, raw, mapping, catalog)

		if key, ok := row.Values[FieldOrderNo].(string); ok && key != "" {
			if first, dup := seenKeys[key]; dup {
				row.Warnings = append(row.Warnings,
					fmt.Sprintf("duplicate order number %s, first seen at row %d", key, first))
			} else {
				seenKeys[key] = row.RowNo
			}
		}

		out = append(out, row)
	}
	return out
}

func validateRow(rowNo int, raw RawRow, mapping FieldMapping, catalog *Catalog) ValidatedRow {
	row := ValidatedRow{
		RowNo:  rowNo,
		Status: RowValid,
		Values: make(map[string]any, len(WorkOrderFields)),
	}

	for _, field := range WorkOrderFields {
		col := mapping.Column(field.Key)
		value := ""
		if col != "" {
			value = strings.TrimSpace(raw[col])
		}

		if value == "" {
			if field.Required {
				row.Errors = append(row.Errors,
					fmt.Sprintf("required field %s is empty", field.Key))
			}
			continue
		}

		switch field.Type {
		case TypeText:
			row.Values[field.Key] = value
		case TypeNumber:
			row.Values[field.Key] = coerceNumber(value)
		case TypeDate:
			if d, ok := coerceDate(value); ok {
				row.Values[field.Key] = d
			}
			// Unparseable dates become "no value", never raw text. This also
			// swallows numeric spreadsheet serials.
		}
	}

	if text, ok := row.Values[FieldMachine].(string); ok {
		machine, err := catalog.Resolve(text)
		if err != nil {
			row.Errors = append(row.Errors, err.Error())
		} else {
			row.MachineID = machine.ID
			row.Values[FieldMachineID] = machine.ID
		}
	}

	applyPriorityDefault(&row)

	if len(row.Errors) > 0 {
		row.Status = RowError
	}
	return row
}

// applyPriorityDefault runs after all coercion: absent priority falls back to
// the lowest urgency, out-of-range values are clamped with a warning.
func applyPriorityDefault(row *ValidatedRow) {
	v, ok := row.Values[FieldPriority].(float64)
	if !ok {
		row.Values[FieldPriority] = PriorityLowest
		return
	}
	if v < PriorityHighest || v > PriorityLowest {
		clamped := v
		if clamped < PriorityHighest {
			clamped = PriorityHighest
		}
		if clamped > PriorityLowest {
			clamped = PriorityLowest
		}
		row.Warnings = append(row.Warnings,
			fmt.Sprintf("priority %g out of range, clamped to %g", v, clamped))
		row.Values[FieldPriority] = clamped
	}
}

// coerceNumber parses a lenient decimal: comma is accepted as decimal
// separator, everything except digits, one separator and a leading sign is
// stripped. Unparseable input yields 0.
func coerceNumber(value string) float64 {
	s := strings.Replace(value, ",", ".", 1)

	var b strings.Builder
	seenDot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune(r)
		case (r == '-' || r == '+') && i == 0:
			b.WriteRune(r)
		}
	}

	n, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0
	}
	return n
}

// coerceDate recognizes day-first D/M/Y (one or two digit day and month, two
// or four digit year) and ISO YYYY-MM-DD. Two-digit years are promoted to the
// 2000s. Anything else, including numeric spreadsheet serials, yields no
// value. The result is an ISO date string.
func coerceDate(value string) (string, bool) {
	if t, ok := parseDateDMY(value); ok {
		return t.Format("2006-01-02"), true
	}
	if t, ok := parseDateISO(value); ok {
		return t.Format("2006-01-02"), true
	}
	return "", false
}

func parseDateDMY(value string) (time.Time, bool) {
	parts := strings.Split(value, "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	day, ok := parseDigits(parts[0], 1, 2)
	if !ok || day < 1 || day > 31 {
		return time.Time{}, false
	}
	month, ok := parseDigits(parts[1], 1, 2)
	if !ok || month < 1 || month > 12 {
		return time.Time{}, false
	}
	year, ok := parseDigits(parts[2], 1, 4)
	if !ok {
		return time.Time{}, false
	}
	if len(parts[2]) <= 2 {
		year += 2000
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes overflow (31/4 becomes 1/5), reject such input
	if t.Day() != day || t.Month() != time.Month(month) {
		return time.Time{}, false
	}
	return t, true
}

func parseDateISO(value string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseDigits(s string, minLen, maxLen int) (int, bool) {
	if len(s) < minLen || len(s) > maxLen {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}
