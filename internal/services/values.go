package services

import (
	"fmt"

	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
)

func u64At(values []any, i int) (uint64, error) {
	if i >= len(values) {
		return 0, fmt.Errorf("view returned %d values, want index %d", len(values), i)
	}
	return ledger.ParseU64(values[i])
}

func stringAt(values []any, i int) (string, error) {
	if i >= len(values) {
		return "", fmt.Errorf("view returned %d values, want index %d", len(values), i)
	}
	s, ok := values[i].(string)
	if !ok {
		return "", fmt.Errorf("value %d is %T, not a string", i, values[i])
	}
	return s, nil
}

func boolAt(values []any, i int) (bool, error) {
	if i >= len(values) {
		return false, fmt.Errorf("view returned %d values, want index %d", len(values), i)
	}
	b, ok := values[i].(bool)
	if !ok {
		return false, fmt.Errorf("value %d is %T, not a bool", i, values[i])
	}
	return b, nil
}

func stringsAt(values []any, i int) ([]string, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("view returned %d values, want index %d", len(values), i)
	}
	switch list := values[i].(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("list item is %T, not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value %d is %T, not a list", i, values[i])
	}
}

// eventU64 reads a u64 field from event data.
func eventU64(e ledger.Event, field string) (uint64, error) {
	v, ok := e.Data[field]
	if !ok {
		return 0, fmt.Errorf("event %s has no %s", e.Type, field)
	}
	return ledger.ParseU64(v)
}

func eventString(e ledger.Event, field string) string {
	s, _ := e.Data[field].(string)
	return s
}

// viewDecoder reads typed values out of view results and keeps the first error.
type viewDecoder struct {
	err error
}

func (d *viewDecoder) u64(values []any, i int) uint64 {
	if d.err != nil {
		return 0
	}
	v, err := u64At(values, i)
	d.err = err
	return v
}

func (d *viewDecoder) string(values []any, i int) string {
	if d.err != nil {
		return ""
	}
	v, err := stringAt(values, i)
	d.err = err
	return v
}

func (d *viewDecoder) bool(values []any, i int) bool {
	if d.err != nil {
		return false
	}
	v, err := boolAt(values, i)
	d.err = err
	return v
}

func (d *viewDecoder) strings(values []any, i int) []string {
	if d.err != nil {
		return nil
	}
	v, err := stringsAt(values, i)
	d.err = err
	return v
}
