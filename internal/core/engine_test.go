package core

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thisai/billsync/internal/models"
	"github.com/thisai/billsync/internal/netmon"
	"github.com/thisai/billsync/internal/status"
	"github.com/thisai/billsync/internal/store"
)

// fakeBackend records calls and lets tests script failures per resource/id.
type fakeBackend struct {
	mu     sync.Mutex
	calls  []string
	nextID int
	fail   map[string]error           // keyed "action resource id"
	lists  map[string][]models.Record // keyed by resource
	fields []map[string]any           // payloads seen by Create/Update
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{fail: map[string]error{}, lists: map[string][]models.Record{}}
}

func (f *fakeBackend) record(action, resource, id string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s %s %s", action, resource, id))
	if fields != nil {
		f.fields = append(f.fields, fields)
	}
	return f.fail[fmt.Sprintf("%s %s %s", action, resource, id)]
}

func (f *fakeBackend) Create(_ context.Context, resource string, fields map[string]any) (string, error) {
	if err := f.record("create", resource, "", fields); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("srv-%d", f.nextID), nil
}

func (f *fakeBackend) Update(_ context.Context, resource, id string, fields map[string]any) error {
	return f.record("update", resource, id, fields)
}

func (f *fakeBackend) Delete(_ context.Context, resource, id string) error {
	return f.record("delete", resource, id, nil)
}

func (f *fakeBackend) List(_ context.Context, resource string) ([]models.Record, error) {
	if err := f.record("list", resource, "", nil); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lists[resource], nil
}

func (f *fakeBackend) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

type testRig struct {
	store   *store.Store
	backend *fakeBackend
	monitor *netmon.Monitor
	status  *status.Broadcaster
	engine  *Engine
}

func newTestRig(t *testing.T, online bool) *testRig {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "billsync.db"), store.DefaultCollections())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	backend := newFakeBackend()
	mon := netmon.New(online)
	bc := status.NewBroadcaster(models.SyncStatus{IsOnline: online})
	eng := NewEngine(st, backend, mon, bc, Options{})
	return &testRig{store: st, backend: backend, monitor: mon, status: bc, engine: eng}
}

func (r *testRig) enqueueCreate(t *testing.T, collection string, rec models.Record) models.Record {
	t.Helper()
	stored, err := r.store.Put(collection, rec)
	require.NoError(t, err)
	_, err = r.store.AddOperation(collection, models.ActionCreate, stored)
	require.NoError(t, err)
	return stored
}

func TestSyncNow_CreateAdoptsBackendID(t *testing.T) {
	rig := newTestRig(t, true)
	localID := models.NewLocalID()
	rig.enqueueCreate(t, "invoices", models.Record{
		"id": localID, "number": "INV-1", "total": 120.5, "notes": nil,
	})

	require.NoError(t, rig.engine.SyncNow(context.Background()))

	assert.Equal(t, []string{"create invoices "}, rig.backend.callLog())
	// The payload carries business fields only.
	payload := rig.backend.fields[0]
	assert.Equal(t, "INV-1", payload["number"])
	assert.NotContains(t, payload, "id")
	assert.NotContains(t, payload, "notes")
	assert.NotContains(t, payload, models.MetaLastModified)
	assert.NotContains(t, payload, models.MetaOfflineCreated)

	// Local record now lives under the backend id.
	_, found, err := rig.store.Get("invoices", localID)
	require.NoError(t, err)
	assert.False(t, found)

	adopted, found, err := rig.store.Get("invoices", "srv-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "INV-1", adopted["number"])
	assert.Equal(t, false, adopted[models.MetaOfflineCreated])
	assert.Equal(t, "synced", adopted[models.MetaSyncStatus])

	counts, err := rig.store.OperationCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
}

func TestSyncNow_CreatePushesCurrentRecordNotSnapshot(t *testing.T) {
	rig := newTestRig(t, true)
	stored := rig.enqueueCreate(t, "items", models.Record{
		"id": models.NewLocalID(), "name": "bolt", "price": 2,
	})

	edited := stored.Clone()
	edited["price"] = 3
	_, err := rig.store.Put("items", edited)
	require.NoError(t, err)

	require.NoError(t, rig.engine.SyncNow(context.Background()))
	assert.EqualValues(t, 3, rig.backend.fields[0]["price"])
}

func TestSyncNow_CreateOfRecordDeletedOfflineCompletes(t *testing.T) {
	rig := newTestRig(t, true)
	stored := rig.enqueueCreate(t, "parties", models.Record{
		"id": models.NewLocalID(), "name": "acme",
	})
	require.NoError(t, rig.store.Delete("parties", stored.ID()))

	require.NoError(t, rig.engine.SyncNow(context.Background()))

	assert.Empty(t, rig.backend.callLog())
	counts, err := rig.store.OperationCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
}

func TestSyncNow_OrderedByTimestamp(t *testing.T) {
	rig := newTestRig(t, true)
	_, err := rig.store.AddOperation("invoices", models.ActionUpdate, models.Record{"id": "srv-9", "total": 1})
	require.NoError(t, err)
	_, err = rig.store.AddOperation("invoices", models.ActionDelete, models.Record{"id": "srv-8"})
	require.NoError(t, err)
	_, err = rig.store.AddOperation("parties", models.ActionUpdate, models.Record{"id": "srv-7", "name": "b"})
	require.NoError(t, err)

	require.NoError(t, rig.engine.SyncNow(context.Background()))
	assert.Equal(t, []string{
		"update invoices srv-9",
		"delete invoices srv-8",
		"update parties srv-7",
	}, rig.backend.callLog())
}

func TestSyncNow_OfflineIsNoop(t *testing.T) {
	rig := newTestRig(t, false)
	rig.enqueueCreate(t, "invoices", models.Record{"id": models.NewLocalID(), "number": "INV-2"})

	require.NoError(t, rig.engine.SyncNow(context.Background()))

	assert.Empty(t, rig.backend.callLog())
	counts, err := rig.store.OperationCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
}

func TestSyncNow_FailureLeavesOthersUntouched(t *testing.T) {
	rig := newTestRig(t, true)
	_, err := rig.store.AddOperation("invoices", models.ActionUpdate, models.Record{"id": "srv-1", "total": 5})
	require.NoError(t, err)
	_, err = rig.store.AddOperation("parties", models.ActionUpdate, models.Record{"id": "srv-2", "name": "x"})
	require.NoError(t, err)
	rig.backend.fail["update invoices srv-1"] = fmt.Errorf("boom")

	require.NoError(t, rig.engine.SyncNow(context.Background()))

	ops, err := rig.store.PendingOperations()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, models.OpFailed, ops[0].Status)
	assert.Equal(t, 1, ops[0].RetryCount)
	assert.Equal(t, "invoices", ops[0].Store)

	// The failure shows up in the status error until a later pass drains it.
	assert.Equal(t, "1 operations failed", rig.status.Current().Error)
	assert.Equal(t, 1, rig.status.Current().PendingCount)
}

func TestSyncNow_ErrorSetWhileFailedOperationsRemain(t *testing.T) {
	rig := newTestRig(t, true)
	_, err := rig.store.AddOperation("invoices", models.ActionUpdate, models.Record{"id": "srv-1", "total": 5})
	require.NoError(t, err)
	rig.backend.fail["update invoices srv-1"] = fmt.Errorf("boom")

	require.NoError(t, rig.engine.SyncNow(context.Background()))

	counts, err := rig.store.OperationCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, "1 operations failed", rig.status.Current().Error)

	// A pass that drains the failure clears the error again.
	delete(rig.backend.fail, "update invoices srv-1")
	require.NoError(t, rig.engine.SyncNow(context.Background()))
	assert.Empty(t, rig.status.Current().Error)
}

func TestSyncNow_OperationInterruptedMidPassIsRetried(t *testing.T) {
	rig := newTestRig(t, true)
	op, err := rig.store.AddOperation("invoices", models.ActionUpdate, models.Record{"id": "srv-1", "total": 5})
	require.NoError(t, err)
	// A process killed mid-attempt may leave a syncing marker behind; the
	// next pass must still pick the operation up.
	require.NoError(t, rig.store.UpdateOperationStatus(op.ID, models.OpSyncing, -1))

	require.NoError(t, rig.engine.SyncNow(context.Background()))

	assert.Equal(t, []string{"update invoices srv-1"}, rig.backend.callLog())
	counts, err := rig.store.OperationCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
}

func TestSyncNow_RetryCeilingReportsPersistentError(t *testing.T) {
	rig := newTestRig(t, true)
	op, err := rig.store.AddOperation("invoices", models.ActionUpdate, models.Record{"id": "srv-1", "total": 5})
	require.NoError(t, err)
	require.NoError(t, rig.store.UpdateOperationStatus(op.ID, models.OpFailed, DefaultMaxRetries))
	_, err = rig.store.AddOperation("parties", models.ActionUpdate, models.Record{"id": "srv-2", "name": "x"})
	require.NoError(t, err)
	rig.backend.fail["update invoices srv-1"] = fmt.Errorf("boom")

	require.NoError(t, rig.engine.SyncNow(context.Background()))

	// The exhausted operation is still attempted, and its continued failure
	// does not stop the healthy one.
	assert.Equal(t, []string{"update invoices srv-1", "update parties srv-2"}, rig.backend.callLog())
	assert.Contains(t, rig.status.Current().Error, "could not be synced")

	ops, err := rig.store.PendingOperations()
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, DefaultMaxRetries+1, ops[0].RetryCount)
}

func TestSyncNow_ExhaustedOperationCanStillSucceed(t *testing.T) {
	rig := newTestRig(t, true)
	op, err := rig.store.AddOperation("invoices", models.ActionUpdate, models.Record{"id": "srv-1", "total": 5})
	require.NoError(t, err)
	require.NoError(t, rig.store.UpdateOperationStatus(op.ID, models.OpFailed, DefaultMaxRetries+2))

	require.NoError(t, rig.engine.SyncNow(context.Background()))

	counts, err := rig.store.OperationCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
	assert.Empty(t, rig.status.Current().Error)
}

func TestSyncNow_EmptyQueueUpdatesStatus(t *testing.T) {
	rig := newTestRig(t, true)
	rig.status.Update(status.Patch{PendingCount: status.Int(7)})

	var syncingSeen []bool
	unsubscribe := rig.status.Subscribe(func(s models.SyncStatus) {
		syncingSeen = append(syncingSeen, s.IsSyncing)
	})
	defer unsubscribe()

	require.NoError(t, rig.engine.SyncNow(context.Background()))

	cur := rig.status.Current()
	require.NotNil(t, cur.LastSyncTime)
	assert.False(t, cur.IsSyncing)
	assert.Zero(t, cur.PendingCount)
	assert.Contains(t, syncingSeen, true)
	assert.Empty(t, rig.backend.callLog())
}

func TestSyncNow_UnmappedCollectionCompletesLocally(t *testing.T) {
	rig := newTestRig(t, true)
	eng := NewEngine(rig.store, rig.backend, rig.monitor, rig.status, Options{
		Mapping: map[string]string{"invoices": "invoices"},
	})
	_, err := rig.store.AddOperation("expenses", models.ActionUpdate, models.Record{"id": "srv-1", "amount": 9})
	require.NoError(t, err)

	require.NoError(t, eng.SyncNow(context.Background()))

	assert.Empty(t, rig.backend.callLog())
	counts, err := rig.store.OperationCounts()
	require.NoError(t, err)
	assert.Zero(t, counts.Total)
}

func TestSyncNow_ResourceNameMapping(t *testing.T) {
	rig := newTestRig(t, true)
	_, err := rig.store.AddOperation("delivery_challans", models.ActionDelete, models.Record{"id": "srv-3"})
	require.NoError(t, err)

	require.NoError(t, rig.engine.SyncNow(context.Background()))
	assert.Equal(t, []string{"delete delivery-challans srv-3"}, rig.backend.callLog())
}

func TestSyncNow_SecondPassIsRejectedWhileRunning(t *testing.T) {
	rig := newTestRig(t, true)
	require.True(t, rig.engine.syncing.CompareAndSwap(false, true))
	defer rig.engine.syncing.Store(false)

	rig.enqueueCreate(t, "invoices", models.Record{"id": models.NewLocalID(), "number": "INV-3"})
	require.NoError(t, rig.engine.SyncNow(context.Background()))
	assert.Empty(t, rig.backend.callLog())
}

func TestSyncNow_StatusLifecycle(t *testing.T) {
	rig := newTestRig(t, true)
	rig.enqueueCreate(t, "invoices", models.Record{"id": models.NewLocalID(), "number": "INV-4"})

	var syncingSeen []bool
	unsubscribe := rig.status.Subscribe(func(s models.SyncStatus) {
		syncingSeen = append(syncingSeen, s.IsSyncing)
	})
	defer unsubscribe()

	require.NoError(t, rig.engine.SyncNow(context.Background()))

	// Immediate snapshot, then syncing on, then syncing off.
	require.GreaterOrEqual(t, len(syncingSeen), 3)
	assert.False(t, syncingSeen[0])
	assert.True(t, syncingSeen[1])
	assert.False(t, syncingSeen[len(syncingSeen)-1])

	cur := rig.status.Current()
	require.NotNil(t, cur.LastSyncTime)
	assert.WithinDuration(t, time.Now(), *cur.LastSyncTime, 5*time.Second)
	assert.Zero(t, cur.PendingCount)
}

func TestStart_OnlineTransitionTriggersPass(t *testing.T) {
	rig := newTestRig(t, false)
	rig.enqueueCreate(t, "invoices", models.Record{"id": models.NewLocalID(), "number": "INV-5"})

	// A short interval lets the ticker pick up the queue even if the online
	// transition races the subscription.
	eng := NewEngine(rig.store, rig.backend, rig.monitor, rig.status, Options{Interval: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Start(ctx)
	}()

	rig.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		counts, err := rig.store.OperationCounts()
		return err == nil && counts.Total == 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, []string{"create invoices "}, rig.backend.callLog())
}
