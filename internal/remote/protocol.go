// Package remote defines the protocol types and client for the billsync
// backend: a document-style CRUD API with server-assigned ids.
package remote

import "github.com/thisai/billsync/internal/models"

// CreateResponse carries the backend-assigned id for a new document.
type CreateResponse struct {
	ID string `json:"id"`
}

// ListResponse is a full collection listing, ordered by creation time.
type ListResponse struct {
	Documents []models.Record `json:"documents"`
}

// ErrorResponse is the structured error format returned by the backend.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
