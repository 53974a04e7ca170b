package core

import "github.com/thisai/billsync/internal/models"

// Sanitize returns a copy of v with nil map entries and nil slice elements
// removed, recursing through nested maps and slices. Scalar values pass
// through unchanged.
func Sanitize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = Sanitize(val)
		}
		return out
	case models.Record:
		return Sanitize(map[string]any(t))
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			if val == nil {
				continue
			}
			out = append(out, Sanitize(val))
		}
		return out
	default:
		return v
	}
}

// payloadFields extracts the fields to send to the backend for a record:
// the id and local bookkeeping metadata are stripped, then the remainder
// is sanitized.
func payloadFields(rec models.Record) map[string]any {
	fields := make(map[string]any, len(rec))
	for k, v := range rec {
		switch k {
		case "id", models.MetaOfflineCreated, models.MetaLastModified, models.MetaSyncStatus:
			continue
		}
		fields[k] = v
	}
	return Sanitize(fields).(map[string]any)
}
