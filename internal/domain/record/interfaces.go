package record

import (
	"context"
	"encoding/json"

	"github.com/rpggio/farmsync/internal/domain/activity"
)

// LocalStore is the local persistence records are cached in.
type LocalStore interface {
	Get(ctx context.Context, partition, key string, out any) error
	GetAllByOwner(ctx context.Context, partition, ownerID string) ([]json.RawMessage, error)
	Put(ctx context.Context, partition string, value any) (string, error)
}

// RemoteClient is the authoritative document store.
type RemoteClient interface {
	Upsert(ctx context.Context, collection, id string, rec Record) error
	PartialUpdate(ctx context.Context, collection, id string, patch Patch) error
	QueryByOwner(ctx context.Context, collection, ownerID string) ([]Record, error)
}

// Connectivity reports whether the remote is believed reachable.
type Connectivity interface {
	Online() bool
}

// Validator checks a kind's payload fields.
type Validator interface {
	Validate(kind string, fields map[string]any) error
}

// ActivityLogger records sync activity.
type ActivityLogger interface {
	LogActivity(ctx context.Context, ownerID string, entry *activity.Entry) error
}
