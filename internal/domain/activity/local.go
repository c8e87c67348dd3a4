package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// LocalRepository keeps activity entries in a local auto-increment partition.
type LocalRepository struct {
	store     Store
	partition string
}

// NewLocalRepository creates a repository writing to partition.
func NewLocalRepository(store Store, partition string) *LocalRepository {
	return &LocalRepository{store: store, partition: partition}
}

func (r *LocalRepository) Log(ctx context.Context, ownerID string, entry *Entry) error {
	entry.OwnerID = ownerID
	entry.ID = 0
	key, err := r.store.Put(ctx, r.partition, entry)
	if err != nil {
		return err
	}
	entry.ID, _ = strconv.ParseInt(key, 10, 64)
	return nil
}

// List returns matching entries newest first.
func (r *LocalRepository) List(ctx context.Context, ownerID string, opts ListOptions) ([]Entry, error) {
	docs, err := r.store.GetAllByOwner(ctx, r.partition, ownerID)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		var e Entry
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("decode activity entry: %w", err)
		}
		if opts.matches(e) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID > entries[j].ID })

	if opts.Offset > 0 {
		if opts.Offset >= len(entries) {
			return []Entry{}, nil
		}
		entries = entries[opts.Offset:]
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
