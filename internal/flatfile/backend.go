package flatfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rpggio/farmsync/internal/repository"
)

// Backend implements repository.Backend with one JSON container file per
// partition. Every call reads or rewrites the whole container.
type Backend struct {
	dir    string
	schema repository.Schema
	mu     sync.Mutex
}

type container struct {
	Next  int64                      `json:"next"`
	Items map[string]json.RawMessage `json:"items"`
}

// Open prepares dir for the schema's containers.
func Open(dir string, schema repository.Schema) (*Backend, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, repository.ErrInvalidInput
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Backend{dir: dir, schema: schema}, nil
}

func (b *Backend) Name() string {
	return "flatfile"
}

func (b *Backend) Get(ctx context.Context, partition, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, _, err := b.loadLocked(partition)
	if err != nil {
		return nil, err
	}
	doc, ok := c.Items[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

func (b *Backend) GetAll(ctx context.Context, partition string) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, p, err := b.loadLocked(partition)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(c.Items))
	for key := range c.Items {
		keys = append(keys, key)
	}
	sortKeys(p, keys)
	docs := make([][]byte, 0, len(keys))
	for _, key := range keys {
		docs = append(docs, append([]byte(nil), c.Items[key]...))
	}
	return docs, nil
}

func (b *Backend) Put(ctx context.Context, partition, key string, doc []byte) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", repository.ErrInvalidInput)
	}
	if !json.Valid(doc) {
		return fmt.Errorf("%w: document is not valid JSON", repository.ErrInvalidInput)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c, p, err := b.loadLocked(partition)
	if err != nil {
		return err
	}
	if p.AutoIncrement {
		if _, err := strconv.ParseInt(key, 10, 64); err != nil {
			return fmt.Errorf("%w: key %q is not a sequence number", repository.ErrInvalidInput, key)
		}
	}
	c.Items[key] = append(json.RawMessage(nil), doc...)
	return b.saveLocked(partition, c)
}

func (b *Backend) Delete(ctx context.Context, partition, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, _, err := b.loadLocked(partition)
	if err != nil {
		return err
	}
	if _, ok := c.Items[key]; !ok {
		return nil
	}
	delete(c.Items, key)
	return b.saveLocked(partition, c)
}

func (b *Backend) NextSequence(ctx context.Context, partition string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, _, err := b.loadLocked(partition)
	if err != nil {
		return 0, err
	}
	c.Next++
	if err := b.saveLocked(partition, c); err != nil {
		return 0, err
	}
	return c.Next, nil
}

func (b *Backend) Close() error {
	return nil
}

func (b *Backend) path(partition string) string {
	return filepath.Join(b.dir, partition+".json")
}

func (b *Backend) loadLocked(partition string) (*container, repository.Partition, error) {
	p, ok := b.schema.Lookup(partition)
	if !ok {
		return nil, repository.Partition{}, fmt.Errorf("%w: %s", repository.ErrUnknownPartition, partition)
	}
	c := &container{Items: map[string]json.RawMessage{}}
	data, err := os.ReadFile(b.path(partition))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return c, p, nil
		}
		return nil, p, err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, p, fmt.Errorf("decode %s container: %w", partition, err)
	}
	if c.Items == nil {
		c.Items = map[string]json.RawMessage{}
	}
	return c, p, nil
}

func (b *Backend) saveLocked(partition string, c *container) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	target := b.path(partition)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

func sortKeys(p repository.Partition, keys []string) {
	if !p.AutoIncrement {
		sort.Strings(keys)
		return
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.ParseInt(keys[i], 10, 64)
		c, _ := strconv.ParseInt(keys[j], 10, 64)
		return a < c
	})
}
