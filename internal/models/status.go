package models

import "time"

// SyncStatus is the process-wide sync snapshot broadcast to observers.
// It is mutated only by the sync engine; everyone else reads it.
type SyncStatus struct {
	IsOnline     bool       `json:"isOnline"`
	IsSyncing    bool       `json:"isSyncing"`
	PendingCount int        `json:"pendingCount"`
	LastSyncTime *time.Time `json:"lastSyncTime"`
	Error        string     `json:"error,omitempty"`
}
