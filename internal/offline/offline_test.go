package offline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisai/billsync/internal/models"
	"github.com/thisai/billsync/internal/netmon"
	"github.com/thisai/billsync/internal/store"
)

type fakeSyncer struct {
	kicks      int
	refreshed  []string
	refreshErr error
}

func (s *fakeSyncer) Kick() { s.kicks++ }

func (s *fakeSyncer) RefreshCollection(_ context.Context, collection string) error {
	s.refreshed = append(s.refreshed, collection)
	return s.refreshErr
}

func newTestFacade(t *testing.T, online bool) (*Facade, *store.Store, *fakeSyncer, *netmon.Monitor) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "billsync.db"), store.DefaultCollections())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	syncer := &fakeSyncer{}
	mon := netmon.New(online)
	return New(st, mon, syncer, nil), st, syncer, mon
}

func TestCreate_MintsLocalIDAndQueues(t *testing.T) {
	f, st, syncer, _ := newTestFacade(t, true)

	stored, err := f.Create("invoices", models.Record{"number": "INV-1"})
	require.NoError(t, err)

	assert.True(t, models.IsLocalID(stored.ID()))
	assert.Equal(t, "pending", stored[models.MetaSyncStatus])
	assert.Equal(t, true, stored[models.MetaOfflineCreated])

	ops, err := st.PendingOperations()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, models.ActionCreate, ops[0].Action)
	assert.Equal(t, "invoices", ops[0].Store)
	assert.Equal(t, 1, syncer.kicks)
}

func TestCreate_KeepsCallerProvidedID(t *testing.T) {
	f, _, _, _ := newTestFacade(t, true)

	stored, err := f.Create("parties", models.Record{"id": "srv-7", "name": "acme"})
	require.NoError(t, err)
	assert.Equal(t, "srv-7", stored.ID())
	assert.NotContains(t, stored, models.MetaSyncStatus)
}

func TestCreate_OfflineDoesNotKick(t *testing.T) {
	f, st, syncer, _ := newTestFacade(t, false)

	_, err := f.Create("invoices", models.Record{"number": "INV-2"})
	require.NoError(t, err)

	assert.Zero(t, syncer.kicks)
	counts, err := st.OperationCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
}

func TestCreate_DoesNotMutateCallerRecord(t *testing.T) {
	f, _, _, _ := newTestFacade(t, true)
	rec := models.Record{"number": "INV-3"}

	_, err := f.Create("invoices", rec)
	require.NoError(t, err)
	assert.NotContains(t, rec, "id")
}

func TestUpdate_SyncedRecordQueuesUpdate(t *testing.T) {
	f, st, syncer, _ := newTestFacade(t, true)

	_, err := f.Update("items", models.Record{"id": "srv-1", "name": "bolt", "price": 3})
	require.NoError(t, err)

	ops, err := st.PendingOperations()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, models.ActionUpdate, ops[0].Action)
	assert.Equal(t, 1, syncer.kicks)
}

func TestUpdate_LocalRecordIsNotQueued(t *testing.T) {
	f, st, syncer, _ := newTestFacade(t, true)

	stored, err := f.Create("items", models.Record{"name": "bolt", "price": 2})
	require.NoError(t, err)

	edited := stored.Clone()
	edited["price"] = 3
	_, err = f.Update("items", edited)
	require.NoError(t, err)

	// Only the original create sits in the queue; it will carry the edit.
	ops, err := st.PendingOperations()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, models.ActionCreate, ops[0].Action)
	assert.Equal(t, 1, syncer.kicks)

	got, found, err := f.Get("items", stored.ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.EqualValues(t, 3, got["price"])
}

func TestUpdate_RequiresID(t *testing.T) {
	f, _, _, _ := newTestFacade(t, true)
	_, err := f.Update("items", models.Record{"name": "bolt"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no id"))
}

func TestDelete_SyncedRecordQueuesDelete(t *testing.T) {
	f, st, _, _ := newTestFacade(t, true)
	_, err := st.Put("parties", models.Record{"id": "srv-2", "name": "acme"})
	require.NoError(t, err)

	require.NoError(t, f.Delete("parties", "srv-2"))

	_, found, err := st.Get("parties", "srv-2")
	require.NoError(t, err)
	assert.False(t, found)

	ops, err := st.PendingOperations()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, models.ActionDelete, ops[0].Action)
	assert.Equal(t, "srv-2", ops[0].Data.ID())
}

func TestDelete_LocalRecordIsNotQueuedAsDelete(t *testing.T) {
	f, st, _, _ := newTestFacade(t, true)
	stored, err := f.Create("parties", models.Record{"name": "draft"})
	require.NoError(t, err)

	require.NoError(t, f.Delete("parties", stored.ID()))

	ops, err := st.PendingOperations()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, models.ActionCreate, ops[0].Action)
}

func TestGetAll_RefreshPullsWhenOnline(t *testing.T) {
	f, _, syncer, _ := newTestFacade(t, true)

	_, err := f.GetAll(context.Background(), "invoices", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"invoices"}, syncer.refreshed)
}

func TestGetAll_RefreshSkippedOffline(t *testing.T) {
	f, _, syncer, _ := newTestFacade(t, false)

	_, err := f.GetAll(context.Background(), "invoices", true)
	require.NoError(t, err)
	assert.Empty(t, syncer.refreshed)
}

func TestGetAll_RefreshFailureServesLocalData(t *testing.T) {
	f, st, syncer, _ := newTestFacade(t, true)
	syncer.refreshErr = fmt.Errorf("boom")
	_, err := st.Put("invoices", models.Record{"id": "srv-1", "number": "INV-1"})
	require.NoError(t, err)

	all, err := f.GetAll(context.Background(), "invoices", true)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetByIndex_PassesThrough(t *testing.T) {
	f, _, _, _ := newTestFacade(t, true)
	_, err := f.Create("invoices", models.Record{"number": "INV-9", "partyId": "p1"})
	require.NoError(t, err)

	recs, err := f.GetByIndex("invoices", "partyId", "p1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
