package record

import (
	"maps"
	"time"
)

// Record is one locally cached domain entity.
type Record struct {
	ID        string         `json:"id"`
	OwnerID   string         `json:"ownerId"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Synced    bool           `json:"synced"`
	Fields    map[string]any `json:"fields"`
}

// Clone returns a copy whose top-level field map can be modified independently.
func (r *Record) Clone() *Record {
	c := *r
	c.Fields = maps.Clone(r.Fields)
	return &c
}

// Patch carries the changed fields of an update and the version they produce.
type Patch struct {
	Fields    map[string]any `json:"fields"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Entity names where records of one kind live locally and remotely.
type Entity struct {
	// Name is the kind name used in outbox item types and logs.
	Name       string
	Collection string
	Partition  string
}
