package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpggio/farmsync/internal/outbox"
)

// Mutation is one local write that still has to reach the remote.
type Mutation struct {
	// Op is outbox.OpCreate or outbox.OpUpdate.
	Op string
	// Record is set for creates.
	Record *Record
	// ID, OwnerID and Patch are set for updates.
	ID      string
	OwnerID string
	Patch   Patch
}

// RecordID returns the id of the record the mutation touches.
func (m Mutation) RecordID() string {
	if m.Record != nil {
		return m.Record.ID
	}
	return m.ID
}

// SyncPolicy decides what happens to a mutation whose immediate push failed.
type SyncPolicy interface {
	Name() string
	// Attach is called once when a repository is built with the policy.
	Attach(repo *Repository)
	PushFailed(ctx context.Context, repo *Repository, m Mutation, cause error) error
}

// DeferredPolicy leaves failed records unsynced for the next reconcile push.
type DeferredPolicy struct{}

func (DeferredPolicy) Name() string { return "deferred" }

func (DeferredPolicy) Attach(*Repository) {}

func (DeferredPolicy) PushFailed(context.Context, *Repository, Mutation, error) error {
	return nil
}

// OutboxPolicy queues failed mutations for ordered replay.
type OutboxPolicy struct {
	Outbox *outbox.Outbox
}

type updatePayload struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Patch   Patch  `json:"patch"`
}

func (p OutboxPolicy) Name() string { return "outbox" }

// Attach registers the replay handlers for the repository's kind.
func (p OutboxPolicy) Attach(repo *Repository) {
	kind := repo.entity.Name
	p.Outbox.Handle(outbox.Type(kind, outbox.OpCreate), func(ctx context.Context, payload json.RawMessage) error {
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return deferOffline(repo.pushCreate(ctx, &rec))
	})
	p.Outbox.Handle(outbox.Type(kind, outbox.OpUpdate), func(ctx context.Context, payload json.RawMessage) error {
		var u updatePayload
		if err := json.Unmarshal(payload, &u); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return deferOffline(repo.pushUpdate(ctx, u.ID, u.Patch))
	})
}

func (p OutboxPolicy) PushFailed(ctx context.Context, repo *Repository, m Mutation, cause error) error {
	kind := repo.entity.Name
	switch m.Op {
	case outbox.OpCreate:
		_, err := p.Outbox.Enqueue(ctx, outbox.Type(kind, outbox.OpCreate), m.Record)
		return err
	case outbox.OpUpdate:
		_, err := p.Outbox.Enqueue(ctx, outbox.Type(kind, outbox.OpUpdate), updatePayload{ID: m.ID, OwnerID: m.OwnerID, Patch: m.Patch})
		return err
	default:
		return fmt.Errorf("%w: unknown mutation op %q", ErrInvalidInput, m.Op)
	}
}

func deferOffline(err error) error {
	if errors.Is(err, ErrOffline) {
		return fmt.Errorf("%w: %w", outbox.ErrDeferred, err)
	}
	return err
}
