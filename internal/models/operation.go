package models

import "time"

// Action is the kind of mutation a SyncOperation carries.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// OpStatus is the lifecycle state of a queued operation.
type OpStatus string

const (
	OpPending   OpStatus = "pending"
	OpSyncing   OpStatus = "syncing"
	OpFailed    OpStatus = "failed"
	OpCompleted OpStatus = "completed"
)

// SyncOperation is one pending mutation awaiting confirmation by the backend.
// The Data payload is immutable after creation; only Status and RetryCount
// change over the operation's lifetime.
type SyncOperation struct {
	ID         string    `json:"id"`
	Store      string    `json:"store"`
	Action     Action    `json:"action"`
	Data       Record    `json:"data"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retryCount"`
	Status     OpStatus  `json:"status"`
}

// QueueCounts is a snapshot of the operation queue for status badges.
type QueueCounts struct {
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}
