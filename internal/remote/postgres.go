package remote

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/rpggio/farmsync/internal/domain/record"
)

const (
	postgresDocumentsTable = "farmsync_documents"
	postgresInitTimeout    = 5 * time.Second
)

type sqlOpenFunc func(driverName, dsn string) (*sql.DB, error)

// Postgres stores every collection in one JSONB document table.
type Postgres struct {
	dsn       string
	tableName string
	openDB    sqlOpenFunc

	// mu guards db. Only a successful init is kept; a failed one is retried
	// on the next call.
	mu sync.Mutex
	db *sql.DB
}

// NewPostgres returns a client that connects on first use.
func NewPostgres(dsn string) (*Postgres, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrInvalidInput
	}
	return &Postgres{
		dsn:       dsn,
		tableName: postgresDocumentsTable,
		openDB:    sql.Open,
	}, nil
}

func (p *Postgres) Upsert(ctx context.Context, collection, id string, rec record.Record) error {
	db, err := p.ensureReady(ctx)
	if err != nil {
		return err
	}
	rec.ID = id
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (collection, id, owner_id, body, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, NOW())
		ON CONFLICT (collection, id)
		DO UPDATE SET owner_id = EXCLUDED.owner_id, body = EXCLUDED.body, updated_at = NOW()`,
		quoteIdentifier(p.tableName))
	_, err = db.ExecContext(ctx, query, collection, id, rec.OwnerID, string(body))
	return classify(err)
}

func (p *Postgres) PartialUpdate(ctx context.Context, collection, id string, patch record.Patch) error {
	db, err := p.ensureReady(ctx)
	if err != nil {
		return err
	}
	fields, err := json.Marshal(patch.Fields)
	if err != nil {
		return err
	}
	if patch.Fields == nil {
		fields = []byte("{}")
	}
	query := fmt.Sprintf(`
		UPDATE %s SET
			body = jsonb_set(
				jsonb_set(body, '{fields}', COALESCE(body->'fields', '{}'::jsonb) || $3::jsonb),
				'{updatedAt}', to_jsonb($4::text)),
			updated_at = NOW()
		WHERE collection = $1 AND id = $2`, quoteIdentifier(p.tableName))
	res, err := db.ExecContext(ctx, query, collection, id, string(fields), patch.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) QueryByOwner(ctx context.Context, collection, ownerID string) ([]record.Record, error) {
	db, err := p.ensureReady(ctx)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT body FROM %s WHERE collection = $1 AND owner_id = $2 ORDER BY id",
		quoteIdentifier(p.tableName))
	rows, err := db.QueryContext(ctx, query, collection, ownerID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []record.Record
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec record.Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", collection, err)
		}
		out = append(out, rec)
	}
	return out, classify(rows.Err())
}

func (p *Postgres) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	return err
}

// ensureReady opens the database and creates the document table on first
// successful use. Failures are returned without being cached.
func (p *Postgres) ensureReady(ctx context.Context) (*sql.DB, error) {
	if p == nil {
		return nil, ErrInvalidInput
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db != nil {
		return p.db, nil
	}

	db, err := p.openDB("postgres", p.dsn)
	if err != nil {
		return nil, classify(err)
	}
	initCtx, cancel := context.WithTimeout(ctx, postgresInitTimeout)
	defer cancel()

	table := quoteIdentifier(p.tableName)
	statements := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				collection TEXT NOT NULL,
				id TEXT NOT NULL,
				owner_id TEXT NOT NULL DEFAULT '',
				body JSONB NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				PRIMARY KEY (collection, id)
			)`, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (collection, owner_id)",
			quoteIdentifier(p.tableName+"_owner_idx"), table),
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(initCtx, stmt); err != nil {
			_ = db.Close()
			return nil, classify(err)
		}
	}
	p.db = db
	return db, nil
}

// classify marks connection-level failures as ErrOffline.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrOffline) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return fmt.Errorf("%w: %w", ErrOffline, err)
	}
	return err
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
