package app

import (
	"context"

	"github.com/rpggio/farmsync/internal/domain/kind"
	"github.com/rpggio/farmsync/internal/domain/record"
)

// KindStatus describes one kind for one owner.
type KindStatus struct {
	Kind     string `json:"kind"`
	Policy   string `json:"policy"`
	Records  int    `json:"records"`
	Unsynced int    `json:"unsynced"`
}

// Status is a snapshot of sync health.
type Status struct {
	Backend     string       `json:"backend"`
	Online      bool         `json:"online"`
	OutboxDepth int          `json:"outboxDepth"`
	Failed      int          `json:"failed"`
	Kinds       []KindStatus `json:"kinds"`
}

// Status reports backend, queue depth and per-kind unsynced counts for an owner.
func (a *App) Status(ctx context.Context, ownerID string) (Status, error) {
	backend, err := a.store.Backend(ctx)
	if err != nil {
		return Status{}, err
	}
	pending, err := a.outbox.Pending(ctx)
	if err != nil {
		return Status{}, err
	}
	failed, err := a.outbox.Failed(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Backend:     backend,
		Online:      a.signal.Online(),
		OutboxDepth: len(pending),
		Failed:      len(failed),
	}

	ctx = record.WithOwner(ctx, ownerID)
	for _, name := range kind.Names() {
		repo := a.repos[name]
		recs, err := repo.List(ctx)
		if err != nil {
			return Status{}, err
		}
		unsynced := 0
		for _, rec := range recs {
			if !rec.Synced {
				unsynced++
			}
		}
		st.Kinds = append(st.Kinds, KindStatus{
			Kind:     name,
			Policy:   repo.Policy(),
			Records:  len(recs),
			Unsynced: unsynced,
		})
	}
	return st, nil
}
