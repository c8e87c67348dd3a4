package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rpggio/farmsync/internal/repository"
)

// Backend implements repository.Backend on SQLite tables, one per partition.
// Record partitions carry an indexed owner_id column.
type Backend struct {
	db     *DB
	schema repository.Schema
}

// Open opens the database at dsn and creates the schema's tables.
func Open(dsn string, schema repository.Schema) (*Backend, error) {
	db, err := New(dsn)
	if err != nil {
		return nil, err
	}
	if err := db.RunMigrations(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Backend{db: db, schema: schema}, nil
}

// NewBackend wraps an already migrated database.
func NewBackend(db *DB, schema repository.Schema) *Backend {
	return &Backend{db: db, schema: schema}
}

func (b *Backend) Name() string {
	return "sqlite"
}

// Get returns the document stored under key.
func (b *Backend) Get(ctx context.Context, partition, key string) ([]byte, error) {
	p, err := b.partition(partition)
	if err != nil {
		return nil, err
	}
	id, err := rowKey(p, key)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT body FROM %s WHERE id = ?`, tableName(p.Name))
	var body string
	err = b.db.QueryRowContext(ctx, query, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%s: %w", partition, key, err)
	}
	return []byte(body), nil
}

// GetAll returns every document in the partition ordered by key.
func (b *Backend) GetAll(ctx context.Context, partition string) ([][]byte, error) {
	p, err := b.partition(partition)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT body FROM %s ORDER BY id ASC`, tableName(p.Name))
	return b.queryBodies(ctx, query)
}

// GetAllByOwner uses the owner_id index of a record partition. Auto-increment
// partitions have no owner column and are filtered on the document body.
func (b *Backend) GetAllByOwner(ctx context.Context, partition, ownerID string) ([][]byte, error) {
	p, err := b.partition(partition)
	if err != nil {
		return nil, err
	}
	if p.AutoIncrement {
		query := fmt.Sprintf(`SELECT body FROM %s WHERE json_extract(body, '$.ownerId') = ? ORDER BY id ASC`, tableName(p.Name))
		return b.queryBodies(ctx, query, ownerID)
	}
	query := fmt.Sprintf(`SELECT body FROM %s WHERE owner_id = ? ORDER BY id ASC`, tableName(p.Name))
	return b.queryBodies(ctx, query, ownerID)
}

// Put inserts or replaces the document stored under key.
func (b *Backend) Put(ctx context.Context, partition, key string, doc []byte) error {
	p, err := b.partition(partition)
	if err != nil {
		return err
	}
	id, err := rowKey(p, key)
	if err != nil {
		return err
	}

	if p.AutoIncrement {
		query := fmt.Sprintf(`
			INSERT INTO %s (id, body) VALUES (?, ?)
			ON CONFLICT(id) DO UPDATE SET body = excluded.body`, tableName(p.Name))
		if _, err := b.db.ExecContext(ctx, query, id, string(doc)); err != nil {
			return fmt.Errorf("failed to put %s/%s: %w", partition, key, err)
		}
		return nil
	}

	var owner struct {
		OwnerID string `json:"ownerId"`
	}
	if err := json.Unmarshal(doc, &owner); err != nil {
		return fmt.Errorf("%w: %v", repository.ErrInvalidInput, err)
	}
	var ownerID any
	if owner.OwnerID != "" {
		ownerID = owner.OwnerID
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, owner_id, body) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET owner_id = excluded.owner_id, body = excluded.body`, tableName(p.Name))
	if _, err := b.db.ExecContext(ctx, query, id, ownerID, string(doc)); err != nil {
		return fmt.Errorf("failed to put %s/%s: %w", partition, key, err)
	}
	return nil
}

// Delete removes key from the partition. Deleting a missing key is not an error.
func (b *Backend) Delete(ctx context.Context, partition, key string) error {
	p, err := b.partition(partition)
	if err != nil {
		return err
	}
	id, err := rowKey(p, key)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, tableName(p.Name))
	if _, err := b.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", partition, key, err)
	}
	return nil
}

// NextSequence atomically increments and returns the partition's counter.
func (b *Backend) NextSequence(ctx context.Context, partition string) (int64, error) {
	if _, err := b.partition(partition); err != nil {
		return 0, err
	}
	var value int64
	err := b.db.QueryRowContext(ctx, `
		INSERT INTO sequences (partition, value) VALUES (?, 1)
		ON CONFLICT(partition) DO UPDATE SET value = value + 1
		RETURNING value`, partition).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", partition, err)
	}
	return value, nil
}

// Close closes the underlying database.
func (b *Backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *Backend) partition(name string) (repository.Partition, error) {
	p, ok := b.schema.Lookup(name)
	if !ok {
		return repository.Partition{}, fmt.Errorf("%w: %s", repository.ErrUnknownPartition, name)
	}
	return p, nil
}

func (b *Backend) queryBodies(ctx context.Context, query string, args ...any) ([][]byte, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		if isNoSuchTable(err) {
			return nil, fmt.Errorf("%w: %v", repository.ErrUnknownPartition, err)
		}
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs [][]byte
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, []byte(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return docs, nil
}

func rowKey(p repository.Partition, key string) (any, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", repository.ErrInvalidInput)
	}
	if !p.AutoIncrement {
		return key, nil
	}
	seq, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: key %q is not a sequence number", repository.ErrInvalidInput, key)
	}
	return seq, nil
}
