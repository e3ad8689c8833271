package importer

import (
	"fmt"
	"strings"
)

// FieldMapping maps a field key to a source column name. An absent or empty
// entry means the field is ignored. One mapping exists per import session;
// AutoMap proposes it, the operator may then edit it freely.
type FieldMapping map[string]string

// AutoMap proposes a mapping from headers for every field spec, in declaration
// order, first matching rule wins:
//  1. column name equals the field key (case-insensitive, trimmed)
//  2. column name equals the field label (case-insensitive)
//  3. column name contains the label or key as a substring, or the other way
//     around (case-insensitive)
//
// Fields with no matching column are left unmapped. A column claimed by an
// earlier field is not proposed again; the operator can still assign it to
// several fields by hand.
func AutoMap(headers []string, fields []FieldSpec) FieldMapping {
	m := make(FieldMapping, len(fields))
	used := make(map[string]bool, len(headers))

	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = strings.ToLower(strings.TrimSpace(h))
	}

	for _, f := range fields {
		key := strings.ToLower(f.Key)
		label := strings.ToLower(f.Label)

		col := matchColumn(headers, norm, used, func(h string) bool { return h == key })
		if col == "" {
			col = matchColumn(headers, norm, used, func(h string) bool { return h == label })
		}
		if col == "" {
			col = matchColumn(headers, norm, used, func(h string) bool {
				return h != "" &&
					(strings.Contains(h, label) || strings.Contains(label, h) ||
						strings.Contains(h, key) || strings.Contains(key, h))
			})
		}
		if col != "" {
			m[f.Key] = col
			used[col] = true
		}
	}

	return m
}

func matchColumn(headers, norm []string, used map[string]bool, match func(string) bool) string {
	for i, h := range norm {
		if !used[headers[i]] && match(h) {
			return headers[i]
		}
	}
	return ""
}

// Set assigns a source column to a field, or clears the assignment when
// column is empty. Unknown fields and unknown columns are rejected.
func (m FieldMapping) Set(fieldKey, column string, headers []string) error {
	if _, ok := FieldByKey(fieldKey); !ok {
		return fmt.Errorf("unknown field: %s", fieldKey)
	}
	if column == "" {
		delete(m, fieldKey)
		return nil
	}
	for _, h := range headers {
		if h == column {
			m[fieldKey] = column
			return nil
		}
	}
	return fmt.Errorf("unknown column: %s", column)
}

// Column returns the mapped source column for a field, or "" when ignored
func (m FieldMapping) Column(fieldKey string) string {
	return m[fieldKey]
}
