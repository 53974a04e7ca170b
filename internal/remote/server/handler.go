package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/thisai/billsync/internal/remote"
)

// ServerConfig holds configurable limits for the server.
type ServerConfig struct {
	MaxRequestBody    int64  // bytes, for JSON endpoints
	RequestsPerMinute int    // per-host rate limit
	APIToken          string // shared bearer token; empty disables auth
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody:    4 * 1024 * 1024, // 4MB
		RequestsPerMinute: 600,
	}
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(docs *DocStore, cfg *ServerConfig, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	rl := newRateLimiter(cfg.RequestsPerMinute)
	auth := authMiddleware(cfg.APIToken)

	// Execution order: auth -> rate limit -> handler
	withAuth := func(h http.HandlerFunc) http.Handler {
		return applyMiddleware(h, auth, rl.middleware)
	}

	mux := http.NewServeMux()

	// Health endpoint (no auth)
	mux.HandleFunc("GET /healthz", handleHealthz)

	// Document CRUD
	mux.Handle("POST /api/v1/collections/{resource}", withAuth(makeCreateHandler(docs, cfg, logger)))
	mux.Handle("GET /api/v1/collections/{resource}", withAuth(makeListHandler(docs, logger)))
	mux.Handle("GET /api/v1/collections/{resource}/{id}", withAuth(makeGetHandler(docs, logger)))
	mux.Handle("PATCH /api/v1/collections/{resource}/{id}", withAuth(makeUpdateHandler(docs, cfg, logger)))
	mux.Handle("DELETE /api/v1/collections/{resource}/{id}", withAuth(makeDeleteHandler(docs, logger)))

	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
	)

	cleanup := func() {
		rl.Stop()
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// resourceName validates the {resource} path segment.
func resourceName(r *http.Request) (string, error) {
	name := r.PathValue("resource")
	if name == "" || strings.ContainsAny(name, "/\\:") || name == "." || name == ".." {
		return "", fmt.Errorf("invalid resource name %q", name)
	}
	return name, nil
}

func makeCreateHandler(docs *DocStore, cfg *ServerConfig, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource, err := resourceName(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}

		var fields map[string]any
		if err := readJSON(r, cfg.MaxRequestBody, &fields); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}

		id, err := docs.Create(resource, fields)
		if err != nil {
			logger.Error("create document", "resource", resource, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}

		writeJSON(w, http.StatusCreated, &remote.CreateResponse{ID: id})
	}
}

func makeListHandler(docs *DocStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource, err := resourceName(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}

		list, err := docs.List(resource)
		if err != nil {
			logger.Error("list documents", "resource", resource, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, &remote.ListResponse{Documents: list})
	}
}

func makeGetHandler(docs *DocStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource, err := resourceName(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}

		doc, err := docs.Get(resource, r.PathValue("id"))
		if errors.Is(err, ErrDocNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": "document not found"})
			return
		}
		if err != nil {
			logger.Error("get document", "resource", resource, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, doc)
	}
}

func makeUpdateHandler(docs *DocStore, cfg *ServerConfig, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource, err := resourceName(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}

		var fields map[string]any
		if err := readJSON(r, cfg.MaxRequestBody, &fields); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}

		id := r.PathValue("id")
		err = docs.Update(resource, id, fields)
		if errors.Is(err, ErrDocNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found", "message": fmt.Sprintf("document '%s' not found", id)})
			return
		}
		if err != nil {
			logger.Error("update document", "resource", resource, "id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"id": id})
	}
}

func makeDeleteHandler(docs *DocStore, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource, err := resourceName(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}

		id := r.PathValue("id")
		if err := docs.Delete(resource, id); err != nil {
			logger.Error("delete document", "resource", resource, "id", id, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"id": id})
	}
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	body := http.MaxBytesReader(nil, r.Body, maxSize)
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
