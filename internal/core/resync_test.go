package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisai/billsync/internal/models"
)

func TestRefreshCollection_ReplacesWithBackendDocuments(t *testing.T) {
	rig := newTestRig(t, true)

	// A previously synced record that the backend no longer has.
	_, err := rig.store.Put("invoices", models.Record{"id": "srv-old", "number": "INV-0"})
	require.NoError(t, err)

	rig.backend.lists["invoices"] = []models.Record{
		{"id": "srv-1", "number": "INV-1"},
		{"id": "srv-2", "number": "INV-2"},
	}

	require.NoError(t, rig.engine.RefreshCollection(context.Background(), "invoices"))

	all, err := rig.store.GetAll("invoices")
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, rec := range all {
		ids = append(ids, rec.ID())
	}
	assert.ElementsMatch(t, []string{"srv-1", "srv-2"}, ids)

	meta, found, err := rig.store.GetCacheMeta("invoices")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, meta.ItemCount)
	assert.WithinDuration(t, time.Now(), meta.LastSync, 5*time.Second)
}

func TestRefreshCollection_KeepsUnsyncedLocalRecords(t *testing.T) {
	rig := newTestRig(t, true)
	localID := models.NewLocalID()
	_, err := rig.store.Put("parties", models.Record{"id": localID, "name": "draft"})
	require.NoError(t, err)

	rig.backend.lists["parties"] = []models.Record{{"id": "srv-1", "name": "acme"}}

	require.NoError(t, rig.engine.RefreshCollection(context.Background(), "parties"))

	_, found, err := rig.store.Get("parties", localID)
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = rig.store.Get("parties", "srv-1")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRefreshCollection_UnmappedIsNoop(t *testing.T) {
	rig := newTestRig(t, true)
	eng := NewEngine(rig.store, rig.backend, rig.monitor, rig.status, Options{
		Mapping: map[string]string{"invoices": "invoices"},
	})
	require.NoError(t, eng.RefreshCollection(context.Background(), "expenses"))
	assert.Empty(t, rig.backend.callLog())
}

func TestRefreshCollection_RejectedWhileAnotherPassRuns(t *testing.T) {
	rig := newTestRig(t, true)
	require.True(t, rig.engine.syncing.CompareAndSwap(false, true))
	defer rig.engine.syncing.Store(false)

	err := rig.engine.RefreshCollection(context.Background(), "invoices")
	require.ErrorIs(t, err, ErrSyncBusy)
	assert.Empty(t, rig.backend.callLog())
}

func TestRefreshCollection_ListErrorKeepsLocalData(t *testing.T) {
	rig := newTestRig(t, true)
	_, err := rig.store.Put("items", models.Record{"id": "srv-1", "name": "bolt"})
	require.NoError(t, err)
	rig.backend.fail["list items "] = fmt.Errorf("boom")

	err = rig.engine.RefreshCollection(context.Background(), "items")
	require.Error(t, err)

	all, err := rig.store.GetAll("items")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFullResync_RefreshesEveryMappedCollection(t *testing.T) {
	rig := newTestRig(t, true)
	mapping := map[string]string{"invoices": "invoices", "parties": "parties"}
	eng := NewEngine(rig.store, rig.backend, rig.monitor, rig.status, Options{Mapping: mapping})
	rig.backend.lists["invoices"] = []models.Record{{"id": "srv-1", "number": "INV-1"}}
	rig.backend.lists["parties"] = []models.Record{{"id": "srv-2", "name": "acme"}}

	require.NoError(t, eng.FullResync(context.Background()))

	assert.ElementsMatch(t, []string{"list invoices ", "list parties "}, rig.backend.callLog())
	cur := rig.status.Current()
	assert.False(t, cur.IsSyncing)
	assert.NotNil(t, cur.LastSyncTime)
	assert.Empty(t, cur.Error)
}

func TestFullResync_OfflineFails(t *testing.T) {
	rig := newTestRig(t, false)
	err := rig.engine.FullResync(context.Background())
	require.Error(t, err)
	assert.Empty(t, rig.backend.callLog())
}

func TestFullResync_SurfacesCollectionError(t *testing.T) {
	rig := newTestRig(t, true)
	eng := NewEngine(rig.store, rig.backend, rig.monitor, rig.status, Options{
		Mapping: map[string]string{"invoices": "invoices"},
	})
	rig.backend.fail["list invoices "] = fmt.Errorf("boom")

	err := eng.FullResync(context.Background())
	require.Error(t, err)
	assert.NotEmpty(t, rig.status.Current().Error)
	assert.False(t, rig.status.Current().IsSyncing)
}
