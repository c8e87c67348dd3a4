package record_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rpggio/farmsync/internal/connectivity"
	"github.com/rpggio/farmsync/internal/domain/kind"
	"github.com/rpggio/farmsync/internal/domain/record"
	"github.com/rpggio/farmsync/internal/localstore"
	"github.com/rpggio/farmsync/internal/outbox"
	"github.com/rpggio/farmsync/internal/remote"
	"github.com/rpggio/farmsync/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store  *localstore.Store
	remote *remote.Memory
	box    *outbox.Outbox
	conn   *connectivity.Manual
	tasks  *record.Tasks
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := localstore.New(localstore.Options{
		Preferred: localstore.SQLiteOpener(":memory:"),
		Fallback:  localstore.FlatOpener(t.TempDir()),
	})
	t.Cleanup(func() { _ = store.Close() })
	return &fixture{
		store:  store,
		remote: remote.NewMemory(),
		box:    outbox.New(store, outbox.Options{}),
		conn:   connectivity.NewManual(true),
		tasks:  &record.Tasks{},
	}
}

func (f *fixture) repo(t *testing.T, name string, client record.RemoteClient) *record.Repository {
	t.Helper()
	k, ok := kind.Lookup(name)
	require.True(t, ok)
	validator, err := kind.NewValidator()
	require.NoError(t, err)
	if client == nil {
		client = f.remote
	}
	var policy record.SyncPolicy = record.DeferredPolicy{}
	if k.Policy == kind.PolicyOutbox {
		policy = record.OutboxPolicy{Outbox: f.box}
	}
	return record.NewRepository(record.Options{
		Entity:       k.Entity,
		Store:        f.store,
		Remote:       client,
		Policy:       policy,
		Connectivity: f.conn,
		Validator:    validator,
		Tasks:        f.tasks,
	})
}

func owner(id string) context.Context {
	return record.WithOwner(context.Background(), id)
}

func TestRepository_AddOnlineSyncs(t *testing.T) {
	f := newFixture(t)
	leads := f.repo(t, kind.Lead, nil)
	ctx := owner("u1")

	rec, err := leads.Add(ctx, map[string]any{"name": "Hill Farm", "stage": "new"})
	require.NoError(t, err)
	require.True(t, record.IsLocalID(rec.ID))
	require.Equal(t, "u1", rec.OwnerID)
	require.False(t, rec.Synced, "add returns before the remote confirms")

	stored, err := leads.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.Equal(t, "Hill Farm", stored.Fields["name"])

	f.tasks.Wait()
	stored, err = leads.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, stored.Synced)

	doc, ok := f.remote.Doc("leads", rec.ID)
	require.True(t, ok)
	require.Equal(t, "u1", doc.OwnerID)
}

func TestRepository_RequiresOwner(t *testing.T) {
	f := newFixture(t)
	leads := f.repo(t, kind.Lead, nil)
	ctx := context.Background()

	_, err := leads.Add(ctx, map[string]any{"name": "x"})
	require.ErrorIs(t, err, record.ErrNoOwner)
	_, err = leads.Update(ctx, "any", map[string]any{"name": "x"})
	require.ErrorIs(t, err, record.ErrNoOwner)

	list, err := leads.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
	_, err = leads.Get(ctx, "any")
	require.ErrorIs(t, err, record.ErrRecordNotFound)
	merged, err := leads.Reconcile(ctx)
	require.NoError(t, err)
	require.Empty(t, merged)
}

func TestRepository_OwnerScoping(t *testing.T) {
	f := newFixture(t)
	clients := f.repo(t, kind.Client, nil)

	mine, err := clients.Add(owner("u1"), map[string]any{"name": "Mine"})
	require.NoError(t, err)
	_, err = clients.Add(owner("u2"), map[string]any{"name": "Theirs"})
	require.NoError(t, err)
	_, err = f.store.Put(context.Background(), localstore.PartitionClient, record.Record{ID: "orphan", Fields: map[string]any{"name": "no owner"}})
	require.NoError(t, err)
	f.tasks.Wait()

	list, err := clients.List(owner("u1"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, mine.ID, list[0].ID)

	_, err = clients.Get(owner("u2"), mine.ID)
	require.ErrorIs(t, err, record.ErrRecordNotFound)
	_, err = clients.Update(owner("u2"), mine.ID, map[string]any{"name": "stolen"})
	require.ErrorIs(t, err, record.ErrRecordNotFound)
	_, err = clients.Get(owner("u1"), "orphan")
	require.ErrorIs(t, err, record.ErrRecordNotFound)
}

func TestRepository_ValidationRejectsBeforeStoring(t *testing.T) {
	f := newFixture(t)
	sales := f.repo(t, kind.Sale, nil)
	ctx := owner("u1")

	_, err := sales.Add(ctx, map[string]any{"clientId": "c1", "amount": -5})
	require.ErrorIs(t, err, record.ErrInvalidInput)

	rec, err := sales.Add(ctx, map[string]any{"clientId": "c1", "amount": 10})
	require.NoError(t, err)
	_, err = sales.Update(ctx, rec.ID, map[string]any{"amount": "ten"})
	require.ErrorIs(t, err, record.ErrInvalidInput)
	f.tasks.Wait()

	list, err := sales.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.EqualValues(t, 10, list[0].Fields["amount"])
}

func TestRepository_OfflineAddQueuesOutboxItem(t *testing.T) {
	f := newFixture(t)
	leads := f.repo(t, kind.Lead, nil)
	ctx := owner("u1")
	f.conn.Set(false)

	rec, err := leads.Add(ctx, map[string]any{"name": "Valley"})
	require.NoError(t, err)
	f.tasks.Wait()

	require.Empty(t, f.remote.Calls(), "no remote call is attempted while offline")
	pending, err := f.box.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "lead.create", pending[0].Type)

	var queued record.Record
	require.NoError(t, json.Unmarshal(pending[0].Payload, &queued))
	require.Equal(t, rec.ID, queued.ID)

	f.conn.Set(true)
	report, err := f.box.Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Replayed)

	stored, err := leads.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, stored.Synced)
	require.Equal(t, 1, f.remote.CountCalls("Upsert", "leads"))
}

func TestRepository_OfflineUpdateQueuesPatchOnly(t *testing.T) {
	f := newFixture(t)
	visits := f.repo(t, kind.Visit, nil)
	ctx := owner("u1")

	rec, err := visits.Add(ctx, map[string]any{"clientId": "c1", "date": "2026-03-01", "notes": "first"})
	require.NoError(t, err)
	f.tasks.Wait()

	f.conn.Set(false)
	updated, err := visits.Update(ctx, rec.ID, map[string]any{"outcome": "ordered"})
	require.NoError(t, err)
	require.Equal(t, "first", updated.Fields["notes"], "changes merge into existing fields")
	require.Equal(t, "ordered", updated.Fields["outcome"])
	require.False(t, updated.Synced)
	require.True(t, updated.UpdatedAt.After(rec.UpdatedAt))
	f.tasks.Wait()

	pending, err := f.box.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "visit.update", pending[0].Type)
	require.JSONEq(t, `{"outcome":"ordered"}`, string(mustField(t, pending[0].Payload, "patch", "fields")))

	f.conn.Set(true)
	_, err = f.box.Process(context.Background())
	require.NoError(t, err)
	doc, _ := f.remote.Doc("visits", rec.ID)
	require.Equal(t, "ordered", doc.Fields["outcome"])
	require.Equal(t, "first", doc.Fields["notes"])

	stored, err := visits.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, stored.Synced)
}

func TestRepository_DeferredPolicyPickedUpByReconcile(t *testing.T) {
	f := newFixture(t)
	scheduled := f.repo(t, kind.Scheduled, nil)
	ctx := owner("u1")

	f.remote.SetOffline(true)
	rec, err := scheduled.Add(ctx, map[string]any{"title": "Call back", "dueAt": "2026-03-02"})
	require.NoError(t, err)
	f.tasks.Wait()

	pending, err := f.box.Pending(context.Background())
	require.NoError(t, err)
	require.Empty(t, pending, "deferred kinds never use the outbox")
	unsynced, err := scheduled.Unsynced(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)

	f.remote.SetOffline(false)
	merged, err := scheduled.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Equal(t, rec.ID, merged[0].ID)
	require.True(t, merged[0].Synced)

	unsynced, err = scheduled.Unsynced(ctx)
	require.NoError(t, err)
	require.Empty(t, unsynced)
}

func TestRepository_ReconcileLocalOnlySurvives(t *testing.T) {
	f := newFixture(t)
	leads := f.repo(t, kind.Lead, nil)
	ctx := owner("u1")

	local := record.Record{ID: "L1", OwnerID: "u1", Synced: true, Fields: map[string]any{"name": "local only"}}
	_, err := f.store.Put(context.Background(), localstore.PartitionLead, local)
	require.NoError(t, err)
	f.remote.Put("leads", record.Record{ID: "R9", OwnerID: "u1", Fields: map[string]any{"name": "remote"}})
	f.remote.Put("leads", record.Record{ID: "R0", OwnerID: "u2", Fields: map[string]any{"name": "other owner"}})

	merged, err := leads.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 2)
	require.Equal(t, "L1", merged[0].ID)
	require.Equal(t, "R9", merged[1].ID)
	require.Equal(t, local.Fields, merged[0].Fields)
	require.Zero(t, f.remote.CountCalls("Upsert", "leads"), "synced records are not pushed")
}

func TestRepository_ReconcileRemoteOverwrites(t *testing.T) {
	f := newFixture(t)
	leads := f.repo(t, kind.Lead, nil)
	ctx := owner("u1")

	_, err := f.store.Put(context.Background(), localstore.PartitionLead, record.Record{
		ID: "R1", OwnerID: "u1", Synced: true, Fields: map[string]any{"name": "local", "stage": "won", "notes": "x"},
	})
	require.NoError(t, err)
	remoteValue := record.Record{ID: "R1", OwnerID: "u1", Fields: map[string]any{"name": "remote", "stage": "new"}}
	f.remote.Put("leads", remoteValue)

	merged, err := leads.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Equal(t, remoteValue.Fields, merged[0].Fields, "no field-wise merge")
	require.True(t, merged[0].Synced)

	stored, err := leads.Get(ctx, "R1")
	require.NoError(t, err)
	require.Equal(t, remoteValue.Fields, stored.Fields, "merged set is persisted")
}

func TestRepository_ReconcilePullFailureKeepsLocalState(t *testing.T) {
	f := newFixture(t)
	client := &mocks.RemoteClient{}
	client.On("Upsert", mock.Anything, "clients", mock.Anything, mock.Anything).Return(nil)
	client.On("QueryByOwner", mock.Anything, "clients", "u1").Return(nil, errors.New("timeout"))
	clients := f.repo(t, kind.Client, client)
	ctx := owner("u1")

	rec, err := clients.Add(ctx, map[string]any{"name": "Kept"})
	require.NoError(t, err)
	f.tasks.Wait()

	merged, err := clients.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Equal(t, rec.ID, merged[0].ID)
	require.Equal(t, "Kept", merged[0].Fields["name"])
	client.AssertExpectations(t)
}

func TestRepository_ReconcilePushFailureKeepsRecordUnsynced(t *testing.T) {
	f := newFixture(t)
	client := &mocks.RemoteClient{}
	client.On("Upsert", mock.Anything, "leads", "L1", mock.Anything).Return(errors.New("connection reset"))
	client.On("QueryByOwner", mock.Anything, "leads", "u1").Return([]record.Record{}, nil)
	leads := f.repo(t, kind.Lead, client)
	ctx := owner("u1")

	_, err := f.store.Put(context.Background(), localstore.PartitionLead, record.Record{
		ID: "L1", OwnerID: "u1", Fields: map[string]any{"name": "not yet pushed"},
	})
	require.NoError(t, err)

	merged, err := leads.Reconcile(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.Equal(t, "L1", merged[0].ID)
	require.False(t, merged[0].Synced)

	unsynced, err := leads.Unsynced(ctx)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	client.AssertExpectations(t)
}

func TestRepository_StaleAckLeavesNewerEditUnsynced(t *testing.T) {
	f := newFixture(t)
	client := &mocks.RemoteClient{}
	client.On("Upsert", mock.Anything, "leads", mock.Anything, mock.Anything).Return(nil)
	client.On("PartialUpdate", mock.Anything, "leads", mock.Anything, mock.Anything).Return(errors.New("rejected"))
	leads := f.repo(t, kind.Lead, client)
	ctx := owner("u1")

	f.conn.Set(false)
	rec, err := leads.Add(ctx, map[string]any{"name": "v1"})
	require.NoError(t, err)
	f.tasks.Wait()
	_, err = leads.Update(ctx, rec.ID, map[string]any{"name": "v2"})
	require.NoError(t, err)
	f.tasks.Wait()

	f.conn.Set(true)
	report, err := f.box.Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Replayed)
	require.True(t, report.Blocked)

	stored, err := leads.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.False(t, stored.Synced, "ack for v1 must not mark v2 synced")
	require.Equal(t, "v2", stored.Fields["name"])
}

func TestRepository_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	sales := f.repo(t, kind.Sale, nil)
	ctx := owner("u1")

	f.conn.Set(false)
	rec, err := sales.Add(ctx, map[string]any{"clientId": "c1", "amount": 300})
	require.NoError(t, err)
	f.tasks.Wait()
	pending, err := f.box.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)

	f.conn.Set(true)
	_, err = f.box.Process(context.Background())
	require.NoError(t, err)
	once, ok := f.remote.Doc("sales", rec.ID)
	require.True(t, ok)

	// Simulate a crash between the remote write and dequeue.
	var payload record.Record
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	_, err = f.box.Enqueue(context.Background(), pending[0].Type, payload)
	require.NoError(t, err)
	_, err = f.box.Process(context.Background())
	require.NoError(t, err)

	twice, _ := f.remote.Doc("sales", rec.ID)
	require.Equal(t, once, twice)
	stored, err := sales.Get(ctx, rec.ID)
	require.NoError(t, err)
	require.True(t, stored.Synced)
}

func mustField(t *testing.T, raw json.RawMessage, path ...string) json.RawMessage {
	t.Helper()
	for _, key := range path {
		var obj map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(raw, &obj))
		raw = obj[key]
	}
	return raw
}
