package repository

import "context"

// Partition names one keyed collection inside a local backend.
type Partition struct {
	Name string
	// AutoIncrement partitions are keyed by a monotonically increasing
	// sequence number assigned on insertion.
	AutoIncrement bool
}

// Schema is the fixed set of partitions created when a backend is opened.
type Schema []Partition

// Lookup returns the partition with the given name.
func (s Schema) Lookup(name string) (Partition, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return Partition{}, false
}

// Backend is a persistent partitioned key-value store holding JSON documents.
type Backend interface {
	Name() string
	Get(ctx context.Context, partition, key string) ([]byte, error)
	GetAll(ctx context.Context, partition string) ([][]byte, error)
	Put(ctx context.Context, partition, key string, doc []byte) error
	Delete(ctx context.Context, partition, key string) error
	NextSequence(ctx context.Context, partition string) (int64, error)
	Close() error
}

// OwnerIndex is implemented by backends that index documents by owner.
type OwnerIndex interface {
	GetAllByOwner(ctx context.Context, partition, ownerID string) ([][]byte, error)
}
