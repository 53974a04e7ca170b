// Package models defines the types shared across the sync core: schemaless
// records, queued sync operations, and the process-wide sync status.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalIDPrefix marks identifiers minted on-device before the backend has
// acknowledged the record. Reconciliation replaces them with backend ids.
const LocalIDPrefix = "offline_"

// Core-owned metadata keys stamped onto stored records. They are stripped
// before a record is sent to the backend.
const (
	MetaOfflineCreated = "_offlineCreated"
	MetaLastModified   = "_lastModified"
	MetaSyncStatus     = "syncStatus"
)

// Record is a schemaless domain document (invoice, party, item, ...).
// Every record carries a string "id" unique within its collection.
type Record map[string]any

// ID returns the record's id, or "" when unset.
func (r Record) ID() string {
	id, _ := r["id"].(string)
	return id
}

// SetID sets the record's id.
func (r Record) SetID(id string) {
	r["id"] = id
}

// Clone returns a shallow copy of the record. Nested values are shared.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// OfflineCreated reports whether the record was created with a local-origin id.
func (r Record) OfflineCreated() bool {
	b, _ := r[MetaOfflineCreated].(bool)
	return b
}

// LastModified returns the record's modification stamp, or the zero time when
// absent. The stamp is stored as unix milliseconds; JSON round-trips decode
// numbers as float64, so both representations are accepted.
func (r Record) LastModified() time.Time {
	switch v := r[MetaLastModified].(type) {
	case int64:
		return time.UnixMilli(v)
	case float64:
		return time.UnixMilli(int64(v))
	}
	return time.Time{}
}

// NewLocalID mints a local-origin identifier for a record created before any
// backend acknowledgment.
func NewLocalID() string {
	return LocalIDPrefix + uuid.NewString()
}

// IsLocalID reports whether id was minted on-device and has not yet been
// reconciled to a backend-assigned id.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}
