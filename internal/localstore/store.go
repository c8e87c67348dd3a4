// Package localstore selects and fronts the local persistence backend.
package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/rpggio/farmsync/internal/flatfile"
	"github.com/rpggio/farmsync/internal/repository"
	"github.com/rpggio/farmsync/internal/sqlite"
)

// Partition names used by the data layer.
const (
	PartitionLead         = "lead"
	PartitionClient       = "client"
	PartitionVisit        = "visit"
	PartitionScheduled    = "scheduled"
	PartitionSale         = "sale"
	PartitionOutbox       = "outbox"
	PartitionOutboxFailed = "outbox_failed"
	PartitionActivity     = "activity"
)

// DefaultSchema is the partition layout every backend is opened with.
func DefaultSchema() repository.Schema {
	return repository.Schema{
		{Name: PartitionLead},
		{Name: PartitionClient},
		{Name: PartitionVisit},
		{Name: PartitionScheduled},
		{Name: PartitionSale},
		{Name: PartitionOutbox, AutoIncrement: true},
		{Name: PartitionOutboxFailed},
		{Name: PartitionActivity, AutoIncrement: true},
	}
}

// Opener opens a backend for the given schema.
type Opener func(ctx context.Context, schema repository.Schema) (repository.Backend, error)

// SQLiteOpener opens the structured backend at dsn, creating its directory.
func SQLiteOpener(dsn string) Opener {
	return func(ctx context.Context, schema repository.Schema) (repository.Backend, error) {
		if err := ensureDBDir(dsn); err != nil {
			return nil, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
		}
		backend, err := sqlite.Open(dsn, schema)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
		}
		return backend, nil
	}
}

// FlatOpener opens the flat container backend rooted at dir.
func FlatOpener(dir string) Opener {
	return func(ctx context.Context, schema repository.Schema) (repository.Backend, error) {
		backend, err := flatfile.Open(dir, schema)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
		}
		return backend, nil
	}
}

// Store is the LocalRecordStore. The backend is chosen on first use and kept
// for the lifetime of the Store.
type Store struct {
	preferred Opener
	fallback  Opener
	schema    repository.Schema
	logger    *slog.Logger

	once    sync.Once
	backend repository.Backend
	initErr error
}

// Options configures a Store.
type Options struct {
	// Preferred is tried first. Nil skips straight to Fallback.
	Preferred Opener
	Fallback  Opener
	Schema    repository.Schema
	Logger    *slog.Logger
}

// New creates a Store. Nothing is opened until the first operation.
func New(opts Options) *Store {
	schema := opts.Schema
	if len(schema) == 0 {
		schema = DefaultSchema()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		preferred: opts.Preferred,
		fallback:  opts.Fallback,
		schema:    schema,
		logger:    logger,
	}
}

func (s *Store) init(ctx context.Context) (repository.Backend, error) {
	s.once.Do(func() {
		ctx := context.WithoutCancel(ctx)
		if s.preferred != nil {
			backend, err := safeOpen(ctx, s.preferred, s.schema)
			if err == nil {
				s.backend = backend
				return
			}
			s.logger.Warn("preferred local backend unavailable, using fallback", "error", err)
		}
		if s.fallback == nil {
			s.initErr = fmt.Errorf("%w: no fallback configured", repository.ErrUnavailable)
			return
		}
		backend, err := safeOpen(ctx, s.fallback, s.schema)
		if err != nil {
			s.initErr = err
			return
		}
		s.backend = backend
	})
	return s.backend, s.initErr
}

func safeOpen(ctx context.Context, open Opener, schema repository.Schema) (backend repository.Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			backend = nil
			err = fmt.Errorf("%w: open panicked: %v", repository.ErrUnavailable, r)
		}
	}()
	return open(ctx, schema)
}

// Backend reports the name of the active backend, opening it if needed.
func (s *Store) Backend(ctx context.Context) (string, error) {
	backend, err := s.init(ctx)
	if err != nil {
		return "", err
	}
	return backend.Name(), nil
}

// Get decodes the document stored under key into out.
func (s *Store) Get(ctx context.Context, partition, key string, out any) error {
	backend, err := s.init(ctx)
	if err != nil {
		return err
	}
	doc, err := backend.Get(ctx, partition, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(doc, out); err != nil {
		return fmt.Errorf("%w: decode %s/%s: %v", repository.ErrInvalidInput, partition, key, err)
	}
	return nil
}

// GetAll returns every document in partition.
func (s *Store) GetAll(ctx context.Context, partition string) ([]json.RawMessage, error) {
	backend, err := s.init(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := backend.GetAll(ctx, partition)
	if err != nil {
		return nil, err
	}
	return raw(docs), nil
}

// GetAllByOwner returns the documents in partition whose ownerId matches.
func (s *Store) GetAllByOwner(ctx context.Context, partition, ownerID string) ([]json.RawMessage, error) {
	backend, err := s.init(ctx)
	if err != nil {
		return nil, err
	}
	if idx, ok := backend.(repository.OwnerIndex); ok {
		docs, err := idx.GetAllByOwner(ctx, partition, ownerID)
		if err != nil {
			return nil, err
		}
		return raw(docs), nil
	}

	docs, err := backend.GetAll(ctx, partition)
	if err != nil {
		return nil, err
	}
	var owned []json.RawMessage
	for _, doc := range docs {
		var head struct {
			OwnerID string `json:"ownerId"`
		}
		if err := json.Unmarshal(doc, &head); err != nil {
			continue
		}
		if head.OwnerID == ownerID {
			owned = append(owned, doc)
		}
	}
	return owned, nil
}

// Put stores value keyed by its id field and returns the key. Values written
// to auto-increment partitions without an id get the next sequence number.
func (s *Store) Put(ctx context.Context, partition string, value any) (string, error) {
	backend, err := s.init(ctx)
	if err != nil {
		return "", err
	}
	p, ok := s.schema.Lookup(partition)
	if !ok {
		return "", fmt.Errorf("%w: %s", repository.ErrUnknownPartition, partition)
	}

	doc, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	fields := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return "", fmt.Errorf("%w: value must encode to a JSON object", repository.ErrInvalidInput)
	}

	key, err := keyOf(fields["id"], p.AutoIncrement)
	if err != nil {
		return "", err
	}
	if key == "" {
		seq, err := backend.NextSequence(ctx, partition)
		if err != nil {
			return "", err
		}
		fields["id"] = seq
		key = strconv.FormatInt(seq, 10)
		if doc, err = json.Marshal(fields); err != nil {
			return "", err
		}
	}

	if err := backend.Put(ctx, partition, key, doc); err != nil {
		return "", err
	}
	return key, nil
}

// Delete removes key from partition.
func (s *Store) Delete(ctx context.Context, partition, key string) error {
	backend, err := s.init(ctx)
	if err != nil {
		return err
	}
	return backend.Delete(ctx, partition, key)
}

// Close releases the backend if one was opened. A Store closed before first
// use stays unavailable.
func (s *Store) Close() error {
	s.once.Do(func() {
		s.initErr = fmt.Errorf("%w: store closed", repository.ErrUnavailable)
	})
	if s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// keyOf returns the storage key for an id value. An empty result means a
// sequence number must be assigned.
func keyOf(id any, autoIncrement bool) (string, error) {
	switch v := id.(type) {
	case nil:
		if autoIncrement {
			return "", nil
		}
	case string:
		if v != "" {
			return v, nil
		}
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return "", fmt.Errorf("%w: id %s is not an integer", repository.ErrInvalidInput, v)
		}
		if n == 0 && autoIncrement {
			return "", nil
		}
		return strconv.FormatInt(n, 10), nil
	}
	return "", fmt.Errorf("%w: value has no usable id", repository.ErrInvalidInput)
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func raw(docs [][]byte) []json.RawMessage {
	out := make([]json.RawMessage, len(docs))
	for i, doc := range docs {
		out[i] = doc
	}
	return out
}

// IsNotFound reports whether err means the key was absent.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
