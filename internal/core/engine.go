// Package core drains the durable operation queue against the backend and
// reconciles locally minted ids with the ids the backend assigns.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/thisai/billsync/internal/models"
	"github.com/thisai/billsync/internal/netmon"
	"github.com/thisai/billsync/internal/remote"
	"github.com/thisai/billsync/internal/status"
	"github.com/thisai/billsync/internal/store"
)

const (
	// DefaultInterval is how often a running engine checks for queued work.
	DefaultInterval = time.Minute
	// DefaultMaxRetries is the per-operation attempt ceiling. Operations at
	// the ceiling are reported as errors but stay in the queue.
	DefaultMaxRetries = 5
)

// ErrSyncBusy reports that a queue drain or resync already holds the
// single-pass guard.
var ErrSyncBusy = errors.New("sync already in progress")

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	Mapping    map[string]string // local collection -> backend resource
	Interval   time.Duration
	MaxRetries int
	Logger     *slog.Logger
}

// Engine replays queued operations in timestamp order whenever the network
// is available. At most one pass runs at a time.
type Engine struct {
	store   *store.Store
	backend remote.Backend
	monitor *netmon.Monitor
	status  *status.Broadcaster

	mapping    map[string]string
	interval   time.Duration
	maxRetries int
	logger     *slog.Logger

	syncing atomic.Bool
	kick    chan struct{}
}

// NewEngine wires an engine over the local store, backend client, network
// monitor and status broadcaster.
func NewEngine(st *store.Store, backend remote.Backend, mon *netmon.Monitor, bc *status.Broadcaster, opts Options) *Engine {
	if opts.Mapping == nil {
		opts.Mapping = DefaultMapping()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		store:      st,
		backend:    backend,
		monitor:    mon,
		status:     bc,
		mapping:    opts.Mapping,
		interval:   opts.Interval,
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
		kick:       make(chan struct{}, 1),
	}
}

// Kick requests a sync pass without blocking. Duplicate kicks while a pass
// is pending coalesce into one.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Start runs the engine until ctx is cancelled: it watches network
// transitions, wakes up every interval, and honors Kick requests.
func (e *Engine) Start(ctx context.Context) error {
	unsubscribe := e.monitor.OnTransition(func(online bool) {
		e.status.Update(status.Patch{IsOnline: status.Bool(online)})
		if online {
			e.Kick()
		}
	})
	defer unsubscribe()

	e.status.Update(status.Patch{IsOnline: status.Bool(e.monitor.IsOnline())})
	if counts, err := e.store.OperationCounts(); err == nil {
		e.status.Update(status.Patch{PendingCount: status.Int(counts.Total)})
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.kick:
			if err := e.SyncNow(ctx); err != nil {
				e.logger.Error("sync pass failed", "err", err)
			}
		case <-ticker.C:
			counts, err := e.store.OperationCounts()
			if err != nil {
				e.logger.Error("queue inspection failed", "err", err)
				continue
			}
			if counts.Total == 0 {
				continue
			}
			if err := e.SyncNow(ctx); err != nil {
				e.logger.Error("sync pass failed", "err", err)
			}
		}
	}
}

// SyncNow runs one pass over the queue. It returns immediately when offline
// or when another pass is already running.
func (e *Engine) SyncNow(ctx context.Context) error {
	if !e.monitor.IsOnline() {
		return nil
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer e.syncing.Store(false)
	return e.runPass(ctx)
}

func (e *Engine) runPass(ctx context.Context) error {
	e.status.Update(status.Patch{IsSyncing: status.Bool(true)})

	ops, err := e.store.PendingOperations()
	if err != nil {
		e.status.Update(status.Patch{IsSyncing: status.Bool(false)})
		return fmt.Errorf("load pending operations: %w", err)
	}
	if len(ops) == 0 {
		e.status.Update(status.Patch{
			IsSyncing:    status.Bool(false),
			PendingCount: status.Int(0),
			LastSyncTime: status.Time(time.Now()),
		})
		return nil
	}

	e.logger.Info("sync pass started", "operations", len(ops))

	// Operations stay pending or failed through an attempt so a crash
	// mid-pass leaves them retryable. Operations at or past the retry
	// ceiling are still retried every pass, they just surface a persistent
	// error while they keep failing.
	exhausted := 0
	for _, op := range ops {
		if ctx.Err() != nil {
			break
		}
		if err := e.applyOperation(ctx, op); err != nil {
			e.logger.Warn("operation failed",
				"op", op.ID, "collection", op.Store, "action", op.Action,
				"attempt", op.RetryCount+1, "err", err)
			if uerr := e.store.UpdateOperationStatus(op.ID, models.OpFailed, op.RetryCount+1); uerr != nil {
				e.logger.Error("mark operation failed", "op", op.ID, "err", uerr)
			}
			if op.RetryCount+1 >= e.maxRetries {
				exhausted++
			}
			continue
		}
		if err := e.store.UpdateOperationStatus(op.ID, models.OpCompleted, -1); err != nil {
			e.logger.Error("mark operation completed", "op", op.ID, "err", err)
		}
	}

	purged, err := e.store.ClearCompletedOperations()
	if err != nil {
		e.logger.Error("purge completed operations", "err", err)
	}

	counts, err := e.store.OperationCounts()
	if err != nil {
		return fmt.Errorf("count operations: %w", err)
	}

	errMsg := ""
	switch {
	case exhausted > 0:
		errMsg = fmt.Sprintf("%d changes could not be synced after repeated attempts", exhausted)
	case counts.Failed > 0:
		errMsg = fmt.Sprintf("%d operations failed", counts.Failed)
	}
	now := time.Now()
	e.status.Update(status.Patch{
		IsSyncing:    status.Bool(false),
		PendingCount: status.Int(counts.Total),
		LastSyncTime: status.Time(now),
		Error:        status.Str(errMsg),
	})
	e.logger.Info("sync pass finished", "completed", purged, "remaining", counts.Total, "exhausted", exhausted)
	return nil
}

// applyOperation replays one queued operation against the backend.
// Collections without a mapped resource are local-only; their operations
// succeed without a network call.
func (e *Engine) applyOperation(ctx context.Context, op *models.SyncOperation) error {
	resource, ok := e.mapping[op.Store]
	if !ok {
		e.logger.Warn("no backend resource for collection, completing locally", "collection", op.Store)
		return nil
	}

	id := op.Data.ID()
	switch op.Action {
	case models.ActionCreate:
		if !models.IsLocalID(id) {
			// Already created on the backend by an earlier pass; replay
			// as an update.
			return e.backend.Update(ctx, resource, id, payloadFields(op.Data))
		}
		// Push the record as it exists now, not the enqueued snapshot, so
		// edits made offline after the create are carried along.
		rec, found, err := e.store.Get(op.Store, id)
		if err != nil {
			return err
		}
		if !found {
			// Created and deleted before ever reaching the backend.
			return nil
		}
		backendID, err := e.backend.Create(ctx, resource, payloadFields(rec))
		if err != nil {
			return err
		}
		return e.adoptBackendID(op.Store, rec, backendID)
	case models.ActionUpdate:
		return e.backend.Update(ctx, resource, id, payloadFields(op.Data))
	case models.ActionDelete:
		return e.backend.Delete(ctx, resource, id)
	default:
		return fmt.Errorf("unknown action %q", op.Action)
	}
}

// adoptBackendID rewrites a locally created record under the id the backend
// assigned, removing the locally minted one.
func (e *Engine) adoptBackendID(collection string, rec models.Record, backendID string) error {
	if err := e.store.Delete(collection, rec.ID()); err != nil {
		return err
	}
	adopted := rec.Clone()
	adopted.SetID(backendID)
	adopted[models.MetaSyncStatus] = "synced"
	if _, err := e.store.Put(collection, adopted); err != nil {
		return fmt.Errorf("store record under backend id %s: %w", backendID, err)
	}
	return nil
}
