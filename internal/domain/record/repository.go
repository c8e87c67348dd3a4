package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/rpggio/farmsync/internal/domain/activity"
	"github.com/rpggio/farmsync/internal/outbox"
	"github.com/rpggio/farmsync/internal/repository"
)

// DefaultRemoteTimeout bounds each detached remote call.
const DefaultRemoteTimeout = 15 * time.Second

// Options configures a Repository.
type Options struct {
	Entity Entity
	Store  LocalStore
	Remote RemoteClient
	Policy SyncPolicy

	// Optional collaborators.
	Connectivity  Connectivity
	Validator     Validator
	Activity      ActivityLogger
	Tasks         *Tasks
	Logger        *slog.Logger
	RemoteTimeout time.Duration
}

// Repository is the local-first store for one entity kind. Writes land
// locally first and are pushed to the remote by detached tasks.
type Repository struct {
	entity    Entity
	store     LocalStore
	remote    RemoteClient
	policy    SyncPolicy
	conn      Connectivity
	validator Validator
	activity  ActivityLogger
	tasks     *Tasks
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time

	// mu serializes read-modify-write sequences on single records.
	mu sync.Mutex
}

// NewRepository creates a repository and attaches its sync policy.
func NewRepository(opts Options) *Repository {
	policy := opts.Policy
	if policy == nil {
		policy = DeferredPolicy{}
	}
	tasks := opts.Tasks
	if tasks == nil {
		tasks = &Tasks{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := opts.RemoteTimeout
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	r := &Repository{
		entity:    opts.Entity,
		store:     opts.Store,
		remote:    opts.Remote,
		policy:    policy,
		conn:      opts.Connectivity,
		validator: opts.Validator,
		activity:  opts.Activity,
		tasks:     tasks,
		logger:    logger.With("kind", opts.Entity.Name),
		timeout:   timeout,
		now:       time.Now,
	}
	policy.Attach(r)
	return r
}

// Entity returns the kind this repository serves.
func (r *Repository) Entity() Entity {
	return r.entity
}

// Policy returns the name of the sync policy in use.
func (r *Repository) Policy() string {
	return r.policy.Name()
}

// Add stores a new record for the context's owner and starts pushing it.
func (r *Repository) Add(ctx context.Context, fields map[string]any) (*Record, error) {
	owner, ok := OwnerFromContext(ctx)
	if !ok {
		return nil, ErrNoOwner
	}
	fields = maps.Clone(fields)
	if fields == nil {
		fields = map[string]any{}
	}
	if err := r.validate(fields); err != nil {
		return nil, err
	}

	id, err := NewLocalID()
	if err != nil {
		return nil, fmt.Errorf("issuing id: %w", err)
	}
	now := r.stamp(time.Time{})
	rec := &Record{
		ID:        id,
		OwnerID:   owner,
		CreatedAt: now,
		UpdatedAt: now,
		Synced:    false,
		Fields:    fields,
	}
	if err := r.put(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating %s: %w", r.entity.Name, err)
	}
	r.logActivity(ctx, owner, activity.TypeRecordCreated, rec.ID, "created "+r.entity.Name)

	r.detach(ctx, Mutation{Op: outbox.OpCreate, Record: rec.Clone()})
	return rec, nil
}

// Update merges changes into an owned record and starts pushing the patch.
func (r *Repository) Update(ctx context.Context, id string, changes map[string]any) (*Record, error) {
	owner, ok := OwnerFromContext(ctx)
	if !ok {
		return nil, ErrNoOwner
	}

	r.mu.Lock()
	rec, err := r.getOwned(ctx, owner, id)
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	merged := maps.Clone(rec.Fields)
	if merged == nil {
		merged = map[string]any{}
	}
	maps.Copy(merged, changes)
	if err := r.validate(merged); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	rec.Fields = merged
	rec.UpdatedAt = r.stamp(rec.UpdatedAt)
	rec.Synced = false
	err = r.put(ctx, rec)
	r.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("updating %s: %w", r.entity.Name, err)
	}
	r.logActivity(ctx, owner, activity.TypeRecordUpdated, rec.ID, "updated "+r.entity.Name)

	patch := Patch{Fields: maps.Clone(changes), UpdatedAt: rec.UpdatedAt}
	r.detach(ctx, Mutation{Op: outbox.OpUpdate, ID: rec.ID, OwnerID: owner, Patch: patch})
	return rec, nil
}

// Get returns an owned record from local storage.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	owner, ok := OwnerFromContext(ctx)
	if !ok {
		return nil, ErrRecordNotFound
	}
	return r.getOwned(ctx, owner, id)
}

// List returns the owner's local records sorted by id.
func (r *Repository) List(ctx context.Context) ([]Record, error) {
	owner, ok := OwnerFromContext(ctx)
	if !ok {
		return []Record{}, nil
	}
	return r.listOwned(ctx, owner)
}

// Unsynced returns the owner's records not yet acknowledged by the remote.
func (r *Repository) Unsynced(ctx context.Context) ([]Record, error) {
	recs, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	pending := recs[:0]
	for _, rec := range recs {
		if !rec.Synced {
			pending = append(pending, rec)
		}
	}
	return pending, nil
}

// Reconcile pushes the owner's unsynced records, then replaces local copies
// with everything the remote holds for the owner. Remote failures are logged
// and leave local state as it was; only local storage errors are returned.
func (r *Repository) Reconcile(ctx context.Context) ([]Record, error) {
	owner, ok := OwnerFromContext(ctx)
	if !ok {
		return []Record{}, nil
	}
	local, err := r.listOwned(ctx, owner)
	if err != nil {
		return nil, err
	}
	if r.offline() {
		r.logger.Debug("reconcile skipped while offline", "owner", owner)
		return local, nil
	}

	pushed, failed := 0, 0
	for i := range local {
		rec := &local[i]
		if rec.Synced {
			continue
		}
		if err := r.pushCreate(ctx, rec); err != nil {
			if isLocalErr(err) {
				return nil, err
			}
			failed++
			r.logger.Warn("reconcile push failed", "id", rec.ID, "error", err)
			continue
		}
		pushed++
	}

	remote, err := r.queryRemote(ctx, owner)
	if err != nil {
		r.logger.Warn("reconcile pull failed", "owner", owner, "error", err)
		return r.listOwned(ctx, owner)
	}

	current, err := r.listOwned(ctx, owner)
	if err != nil {
		return nil, err
	}
	owned := make([]Record, 0, len(remote))
	for _, rec := range remote {
		if rec.OwnerID == "" {
			rec.OwnerID = owner
		}
		if rec.OwnerID == owner && rec.ID != "" {
			owned = append(owned, rec)
		}
	}
	merged := Merge(owned, current)

	r.mu.Lock()
	for i := range merged {
		if !merged[i].Synced {
			continue
		}
		if err := r.put(ctx, &merged[i]); err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("storing reconciled %s: %w", r.entity.Name, err)
		}
	}
	r.mu.Unlock()

	r.logActivity(ctx, owner, activity.TypeReconcileCompleted, "",
		fmt.Sprintf("reconciled %d %s records (pushed %d, push failures %d)", len(merged), r.entity.Name, pushed, failed))
	return merged, nil
}

// detach pushes m on a goroutine that outlives the caller's context. Pushes
// for the same record run in call order.
func (r *Repository) detach(ctx context.Context, m Mutation) {
	base := context.WithoutCancel(ctx)
	owner, _ := OwnerFromContext(ctx)
	r.tasks.Go(r.entity.Name+"/"+m.RecordID(), func() {
		var err error
		switch m.Op {
		case outbox.OpCreate:
			err = r.pushCreate(base, m.Record)
		case outbox.OpUpdate:
			err = r.pushUpdate(base, m.ID, m.Patch)
		}
		if err == nil {
			r.logActivity(base, owner, activity.TypeRecordPushed, m.RecordID(), "pushed "+r.entity.Name)
			return
		}
		if isLocalErr(err) {
			r.logger.Error("marking record synced failed", "id", m.RecordID(), "error", err)
			return
		}
		if !errors.Is(err, ErrOffline) {
			r.logger.Warn("remote push failed", "id", m.RecordID(), "error", err)
			r.logActivity(base, owner, activity.TypePushFailed, m.RecordID(), err.Error())
		}
		if perr := r.policy.PushFailed(base, r, m, err); perr != nil {
			r.logger.Error("sync policy failed", "policy", r.policy.Name(), "id", m.RecordID(), "error", perr)
		}
	})
}

// pushCreate upserts rec remotely and marks the pushed version synced.
func (r *Repository) pushCreate(ctx context.Context, rec *Record) error {
	if r.offline() {
		return ErrOffline
	}
	pushed := rec.Clone()
	pushed.Synced = true
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	err := r.remote.Upsert(rctx, r.entity.Collection, rec.ID, *pushed)
	cancel()
	if err != nil {
		return err
	}
	return r.markSynced(ctx, rec.ID, rec.UpdatedAt)
}

// pushUpdate applies patch remotely and marks the patched version synced.
func (r *Repository) pushUpdate(ctx context.Context, id string, patch Patch) error {
	if r.offline() {
		return ErrOffline
	}
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	err := r.remote.PartialUpdate(rctx, r.entity.Collection, id, patch)
	cancel()
	if err != nil {
		return err
	}
	return r.markSynced(ctx, id, patch.UpdatedAt)
}

// markSynced flips the synced flag only if the local record is still at
// version. A newer local edit or a reconcile overwrite is left alone.
func (r *Repository) markSynced(ctx context.Context, id string, version time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rec Record
	if err := r.store.Get(ctx, r.entity.Partition, id, &rec); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return localErr{err}
	}
	if rec.Synced || !rec.UpdatedAt.Equal(version) {
		return nil
	}
	rec.Synced = true
	if err := r.put(ctx, &rec); err != nil {
		return localErr{err}
	}
	return nil
}

func (r *Repository) queryRemote(ctx context.Context, owner string) ([]Record, error) {
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.remote.QueryByOwner(rctx, r.entity.Collection, owner)
}

func (r *Repository) getOwned(ctx context.Context, owner, id string) (*Record, error) {
	var rec Record
	if err := r.store.Get(ctx, r.entity.Partition, id, &rec); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting %s: %w", r.entity.Name, err)
	}
	if rec.OwnerID != owner {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

func (r *Repository) listOwned(ctx context.Context, owner string) ([]Record, error) {
	docs, err := r.store.GetAllByOwner(ctx, r.entity.Partition, owner)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.entity.Name, err)
	}
	recs := make([]Record, 0, len(docs))
	for _, doc := range docs {
		var rec Record
		if err := json.Unmarshal(doc, &rec); err != nil {
			r.logger.Warn("skipping undecodable record", "error", err)
			continue
		}
		if rec.OwnerID == owner {
			recs = append(recs, rec)
		}
	}
	sortByID(recs)
	return recs, nil
}

func (r *Repository) put(ctx context.Context, rec *Record) error {
	_, err := r.store.Put(ctx, r.entity.Partition, rec)
	return err
}

func (r *Repository) validate(fields map[string]any) error {
	if r.validator == nil {
		return nil
	}
	if err := r.validator.Validate(r.entity.Name, fields); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (r *Repository) offline() bool {
	return r.conn != nil && !r.conn.Online()
}

// stamp returns a millisecond timestamp strictly after prev so every local
// write produces a distinct version.
func (r *Repository) stamp(prev time.Time) time.Time {
	t := r.now().UTC().Truncate(time.Millisecond)
	if !t.After(prev) {
		t = prev.Add(time.Millisecond)
	}
	return t
}

func (r *Repository) logActivity(ctx context.Context, owner string, typ activity.Type, recordID, summary string) {
	if r.activity == nil || owner == "" {
		return
	}
	entry := &activity.Entry{
		OwnerID:  owner,
		Kind:     r.entity.Name,
		RecordID: recordID,
		Type:     typ,
		Summary:  summary,
	}
	if err := r.activity.LogActivity(ctx, owner, entry); err != nil {
		r.logger.Warn("logging activity failed", "type", typ, "error", err)
	}
}

// localErr marks local storage failures that happen after a successful remote
// call so they are not mistaken for remote errors.
type localErr struct{ err error }

func (e localErr) Error() string { return "local store: " + e.err.Error() }
func (e localErr) Unwrap() error { return e.err }

func isLocalErr(err error) bool {
	var le localErr
	return errors.As(err, &le)
}
