package importer

import (
	"fmt"
	"strings"
)

// Machine is one entry of the reference catalogue machine names are resolved
// against.
type Machine struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog holds the known machines for one import session
type Catalog struct {
	machines []Machine
}

// NewCatalog builds a catalogue from a fixed machine list
func NewCatalog(machines []Machine) *Catalog {
	return &Catalog{machines: machines}
}

// CatalogFromRecords builds a catalogue from generic machine records of the
// record store.
func CatalogFromRecords(records []Record) *Catalog {
	machines := make([]Machine, 0, len(records))
	for _, r := range records {
		machines = append(machines, Machine{
			ID:          r.ID,
			Code:        stringField(r.Data, "code"),
			Name:        stringField(r.Data, "name"),
			Description: stringField(r.Data, "description"),
		})
	}
	return &Catalog{machines: machines}
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// Resolve finds the machine named by free text. The cascade, first hit wins:
// case-insensitive exact match on code, exact match on name, exact match on
// description, then case-insensitive substring containment of the text within
// code, name or description, in that order.
func (c *Catalog) Resolve(text string) (Machine, error) {
	needle := strings.TrimSpace(text)
	if needle == "" {
		return Machine{}, fmt.Errorf("entity not found: %s", text)
	}
	lowered := strings.ToLower(needle)

	for _, m := range c.machines {
		if strings.EqualFold(m.Code, needle) {
			return m, nil
		}
	}
	for _, m := range c.machines {
		if m.Name == needle {
			return m, nil
		}
	}
	for _, m := range c.machines {
		if m.Description != "" && m.Description == needle {
			return m, nil
		}
	}
	for _, field := range []func(Machine) string{
		func(m Machine) string { return m.Code },
		func(m Machine) string { return m.Name },
		func(m Machine) string { return m.Description },
	} {
		for _, m := range c.machines {
			hay := strings.ToLower(field(m))
			if hay != "" && strings.Contains(hay, lowered) {
				return m, nil
			}
		}
	}

	return Machine{}, fmt.Errorf("entity not found: %s", needle)
}

// Len returns the number of catalogued machines
func (c *Catalog) Len() int {
	return len(c.machines)
}
