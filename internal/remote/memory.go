package remote

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/rpggio/farmsync/internal/domain/record"
)

// Call is one request observed by Memory.
type Call struct {
	Method     string
	Collection string
	ID         string
}

// Memory is an in-process remote store.
type Memory struct {
	mu      sync.Mutex
	docs    map[string]map[string]record.Record
	calls   []Call
	offline bool
	failErr error
}

func NewMemory() *Memory {
	return &Memory{docs: map[string]map[string]record.Record{}}
}

// SetOffline makes every call fail with ErrOffline until cleared.
func (m *Memory) SetOffline(offline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = offline
}

// SetError makes every call fail with err until cleared with nil.
func (m *Memory) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *Memory) Upsert(ctx context.Context, collection, id string, rec record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("Upsert", collection, id); err != nil {
		return err
	}
	rec.ID = id
	rec.Fields = maps.Clone(rec.Fields)
	m.collection(collection)[id] = rec
	return nil
}

func (m *Memory) PartialUpdate(ctx context.Context, collection, id string, patch record.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("PartialUpdate", collection, id); err != nil {
		return err
	}
	rec, ok := m.collection(collection)[id]
	if !ok {
		return ErrNotFound
	}
	rec.Fields = maps.Clone(rec.Fields)
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	maps.Copy(rec.Fields, patch.Fields)
	rec.UpdatedAt = patch.UpdatedAt
	m.docs[collection][id] = rec
	return nil
}

func (m *Memory) QueryByOwner(ctx context.Context, collection, ownerID string) ([]record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("QueryByOwner", collection, ""); err != nil {
		return nil, err
	}
	var out []record.Record
	for _, rec := range m.docs[collection] {
		if rec.OwnerID == ownerID {
			c := rec
			c.Fields = maps.Clone(rec.Fields)
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put seeds a document without recording a call.
func (m *Memory) Put(collection string, rec record.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Fields = maps.Clone(rec.Fields)
	m.collection(collection)[rec.ID] = rec
}

// Doc returns a stored document.
func (m *Memory) Doc(collection, id string) (record.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.docs[collection][id]
	if ok {
		rec.Fields = maps.Clone(rec.Fields)
	}
	return rec, ok
}

// Calls returns every request seen so far, including failed ones.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CountCalls counts requests of one method against collection.
func (m *Memory) CountCalls(method, collection string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method && c.Collection == collection {
			n++
		}
	}
	return n
}

func (m *Memory) Close() error {
	return nil
}

func (m *Memory) enter(method, collection, id string) error {
	m.calls = append(m.calls, Call{Method: method, Collection: collection, ID: id})
	if m.offline {
		return ErrOffline
	}
	return m.failErr
}

func (m *Memory) collection(name string) map[string]record.Record {
	c, ok := m.docs[name]
	if !ok {
		c = map[string]record.Record{}
		m.docs[name] = c
	}
	return c
}
