// Package offline is the write path applications use: every mutation lands
// in the local store first and is queued for the sync engine, so the app
// behaves the same with or without a network.
package offline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/thisai/billsync/internal/models"
	"github.com/thisai/billsync/internal/netmon"
	"github.com/thisai/billsync/internal/store"
)

// Syncer is the part of the sync engine the façade needs: an immediate
// wake-up and on-demand collection refresh.
type Syncer interface {
	Kick()
	RefreshCollection(ctx context.Context, collection string) error
}

// Facade exposes offline-first CRUD over the local store.
type Facade struct {
	store   *store.Store
	monitor *netmon.Monitor
	syncer  Syncer
	logger  *slog.Logger
}

// New builds a façade. syncer may be nil when no engine is running, for
// example in one-shot CLI commands that only touch local data.
func New(st *store.Store, mon *netmon.Monitor, syncer Syncer, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{store: st, monitor: mon, syncer: syncer, logger: logger}
}

// Create stores a new record. When the record carries no id a local one is
// minted; it is replaced by the backend's id once the create syncs. The
// stored record is returned.
func (f *Facade) Create(collection string, rec models.Record) (models.Record, error) {
	draft := rec.Clone()
	if draft.ID() == "" {
		draft.SetID(models.NewLocalID())
	}
	if models.IsLocalID(draft.ID()) {
		draft[models.MetaSyncStatus] = "pending"
	}

	stored, err := f.store.Put(collection, draft)
	if err != nil {
		return nil, err
	}
	if _, err := f.store.AddOperation(collection, models.ActionCreate, stored); err != nil {
		return nil, fmt.Errorf("queue create: %w", err)
	}
	f.kick()
	return stored, nil
}

// Update rewrites a record in place. Updates to records that have never
// reached the backend are not queued separately; the pending create carries
// the latest state when it syncs.
func (f *Facade) Update(collection string, rec models.Record) (models.Record, error) {
	id := rec.ID()
	if id == "" {
		return nil, fmt.Errorf("offline: update %s: record has no id", collection)
	}

	stored, err := f.store.Put(collection, rec)
	if err != nil {
		return nil, err
	}
	if !models.IsLocalID(id) {
		if _, err := f.store.AddOperation(collection, models.ActionUpdate, stored); err != nil {
			return nil, fmt.Errorf("queue update: %w", err)
		}
		f.kick()
	}
	return stored, nil
}

// Delete removes a record locally and queues the backend delete when the
// record has a backend id. Deleting a record that only ever existed locally
// needs no network call.
func (f *Facade) Delete(collection, id string) error {
	if err := f.store.Delete(collection, id); err != nil {
		return err
	}
	if !models.IsLocalID(id) {
		if _, err := f.store.AddOperation(collection, models.ActionDelete, models.Record{"id": id}); err != nil {
			return fmt.Errorf("queue delete: %w", err)
		}
		f.kick()
	}
	return nil
}

// Get reads one record from the local store.
func (f *Facade) Get(collection, id string) (models.Record, bool, error) {
	return f.store.Get(collection, id)
}

// GetAll lists the local copy of a collection. With refresh set and the
// network up it first pulls the collection from the backend; a failed
// refresh is logged and the local copy served as-is.
func (f *Facade) GetAll(ctx context.Context, collection string, refresh bool) ([]models.Record, error) {
	if refresh && f.syncer != nil && f.monitor.IsOnline() {
		if err := f.syncer.RefreshCollection(ctx, collection); err != nil {
			f.logger.Warn("refresh failed, serving local data", "collection", collection, "err", err)
		}
	}
	return f.store.GetAll(collection)
}

// GetByIndex queries the local store through a secondary index.
func (f *Facade) GetByIndex(collection, field string, value any) ([]models.Record, error) {
	return f.store.GetByIndex(collection, field, value)
}

func (f *Facade) kick() {
	if f.syncer != nil && f.monitor.IsOnline() {
		f.syncer.Kick()
	}
}
