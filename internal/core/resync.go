package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thisai/billsync/internal/models"
	"github.com/thisai/billsync/internal/status"
	"github.com/thisai/billsync/internal/store"
)

// resyncConcurrency bounds parallel collection downloads during a full
// resync.
const resyncConcurrency = 4

// RefreshCollection replaces the local copy of one collection with the
// backend's documents. Records created locally and not yet synced survive
// the replacement. Collections without a mapped resource refresh to their
// current local contents, so the call is a no-op for them.
//
// The refresh shares the single-pass guard with SyncNow and FullResync;
// while either is running it returns ErrSyncBusy. Otherwise a queue drain
// could adopt a backend id for a fresh create after this refresh listed the
// collection, and the replacement would drop the just-adopted record.
func (e *Engine) RefreshCollection(ctx context.Context, collection string) error {
	if !e.syncing.CompareAndSwap(false, true) {
		return ErrSyncBusy
	}
	defer e.syncing.Store(false)
	return e.refreshCollection(ctx, collection)
}

func (e *Engine) refreshCollection(ctx context.Context, collection string) error {
	resource, ok := e.mapping[collection]
	if !ok {
		return nil
	}

	docs, err := e.backend.List(ctx, resource)
	if err != nil {
		return fmt.Errorf("list %s: %w", resource, err)
	}

	locals, err := e.store.GetAll(collection)
	if err != nil {
		return err
	}

	merged := make([]models.Record, 0, len(docs)+len(locals))
	for _, doc := range docs {
		if doc.ID() == "" {
			e.logger.Warn("backend document without id, skipping", "resource", resource)
			continue
		}
		merged = append(merged, doc)
	}
	for _, rec := range locals {
		if models.IsLocalID(rec.ID()) {
			merged = append(merged, rec)
		}
	}

	if err := e.store.ReplaceAll(collection, merged); err != nil {
		return err
	}
	meta := store.CacheMeta{
		Collection: collection,
		LastSync:   time.Now(),
		ItemCount:  len(merged),
	}
	if err := e.store.SetCacheMeta(meta); err != nil {
		e.logger.Error("record cache metadata", "collection", collection, "err", err)
	}
	e.logger.Info("collection refreshed", "collection", collection, "remote", len(docs), "kept_local", len(merged)-len(docs))
	return nil
}

// FullResync refreshes every mapped collection from the backend. It shares
// the single-pass guard with SyncNow so a resync and a queue drain never
// overlap.
func (e *Engine) FullResync(ctx context.Context) error {
	if !e.monitor.IsOnline() {
		return fmt.Errorf("cannot resync while offline")
	}
	if !e.syncing.CompareAndSwap(false, true) {
		return ErrSyncBusy
	}
	defer e.syncing.Store(false)

	e.status.Update(status.Patch{IsSyncing: status.Bool(true)})

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(resyncConcurrency)
	for collection := range e.mapping {
		g.Go(func() error {
			return e.refreshCollection(ctx, collection)
		})
	}
	err := g.Wait()

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	now := time.Now()
	e.status.Update(status.Patch{
		IsSyncing:    status.Bool(false),
		LastSyncTime: status.Time(now),
		Error:        status.Str(errMsg),
	})
	if err != nil {
		return fmt.Errorf("full resync: %w", err)
	}
	return nil
}
