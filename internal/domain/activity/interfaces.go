package activity

import (
	"context"
	"encoding/json"
)

// Repository provides persistence operations for activity entries.
type Repository interface {
	Log(ctx context.Context, ownerID string, entry *Entry) error
	List(ctx context.Context, ownerID string, opts ListOptions) ([]Entry, error)
}

// Store is the local persistence LocalRepository writes through.
type Store interface {
	GetAllByOwner(ctx context.Context, partition, ownerID string) ([]json.RawMessage, error)
	Put(ctx context.Context, partition string, value any) (string, error)
}
