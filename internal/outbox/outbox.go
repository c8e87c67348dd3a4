// Package outbox is a durable FIFO of mutations waiting to reach the remote.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxAttempts is the number of failed replays after which an item is
// moved to the failed partition.
const DefaultMaxAttempts = 5

// Operation suffixes for item types.
const (
	OpCreate = "create"
	OpUpdate = "update"
)

var (
	// ErrNoHandler is recorded on items whose type has no registered handler.
	ErrNoHandler = errors.New("no handler registered")
	// ErrDeferred is returned by handlers that cannot run yet, e.g. while
	// offline. The pass stops without counting an attempt.
	ErrDeferred = errors.New("replay deferred")
)

// Item is one queued mutation.
type Item struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"lastError,omitempty"`
}

// Handler replays a payload against the remote.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Store is the local persistence the outbox writes through.
type Store interface {
	Get(ctx context.Context, partition, key string, out any) error
	GetAll(ctx context.Context, partition string) ([]json.RawMessage, error)
	Put(ctx context.Context, partition string, value any) (string, error)
	Delete(ctx context.Context, partition, key string) error
}

// Report summarizes one Process pass.
type Report struct {
	// Skipped is set when another pass was already running.
	Skipped      bool
	Replayed     int
	DeadLettered int
	// Blocked is set when the pass stopped at a failing item.
	Blocked   bool
	Remaining int
}

// Options configures an Outbox.
type Options struct {
	Partition       string
	FailedPartition string
	// MaxAttempts of 0 keeps failing items at the head of the queue forever.
	MaxAttempts    int
	Logger         *slog.Logger
	OnReplayed     func(ctx context.Context, item Item)
	OnDeadLettered func(ctx context.Context, item Item)
}

// Outbox is the MutationOutbox.
type Outbox struct {
	store           Store
	partition       string
	failedPartition string
	maxAttempts     int
	logger          *slog.Logger
	onReplayed      func(ctx context.Context, item Item)
	onDeadLettered  func(ctx context.Context, item Item)

	mu       sync.RWMutex
	handlers map[string]Handler
	running  atomic.Bool
	now      func() time.Time
}

// New creates an Outbox over store.
func New(store Store, opts Options) *Outbox {
	if opts.Partition == "" {
		opts.Partition = "outbox"
	}
	if opts.FailedPartition == "" {
		opts.FailedPartition = "outbox_failed"
	}
	if opts.MaxAttempts < 0 {
		opts.MaxAttempts = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Outbox{
		store:           store,
		partition:       opts.Partition,
		failedPartition: opts.FailedPartition,
		maxAttempts:     opts.MaxAttempts,
		logger:          logger,
		onReplayed:      opts.OnReplayed,
		onDeadLettered:  opts.OnDeadLettered,
		handlers:        map[string]Handler{},
		now:             time.Now,
	}
}

// Type builds the item type for a kind and operation, e.g. "lead.create".
func Type(kind, op string) string {
	return kind + "." + op
}

// Handle registers the replay handler for an item type.
func (o *Outbox) Handle(itemType string, h Handler) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handlers[itemType] = h
}

// Enqueue persists a mutation at the tail of the queue.
func (o *Outbox) Enqueue(ctx context.Context, itemType string, payload any) (Item, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Item{}, fmt.Errorf("encoding %s payload: %w", itemType, err)
	}
	item := Item{Type: itemType, Payload: body, EnqueuedAt: o.now().UTC()}
	key, err := o.store.Put(ctx, o.partition, item)
	if err != nil {
		return Item{}, fmt.Errorf("enqueue %s: %w", itemType, err)
	}
	item.ID, _ = strconv.ParseInt(key, 10, 64)
	o.logger.Debug("outbox item enqueued", "id", item.ID, "type", itemType)
	return item, nil
}

// Pending lists queued items in replay order.
func (o *Outbox) Pending(ctx context.Context) ([]Item, error) {
	return o.list(ctx, o.partition)
}

// Failed lists dead-lettered items.
func (o *Outbox) Failed(ctx context.Context) ([]Item, error) {
	return o.list(ctx, o.failedPartition)
}

// Requeue moves a dead-lettered item back to the tail of the queue with its
// attempt count reset.
func (o *Outbox) Requeue(ctx context.Context, id int64) (Item, error) {
	key := strconv.FormatInt(id, 10)
	var item Item
	if err := o.store.Get(ctx, o.failedPartition, key, &item); err != nil {
		return Item{}, err
	}
	requeued := Item{Type: item.Type, Payload: item.Payload, EnqueuedAt: o.now().UTC()}
	newKey, err := o.store.Put(ctx, o.partition, requeued)
	if err != nil {
		return Item{}, err
	}
	requeued.ID, _ = strconv.ParseInt(newKey, 10, 64)
	if err := o.store.Delete(ctx, o.failedPartition, key); err != nil {
		return Item{}, err
	}
	o.logger.Info("outbox item requeued", "failed_id", id, "id", requeued.ID, "type", item.Type)
	return requeued, nil
}

// Process replays queued items in ascending id order, one at a time. Only one
// pass runs at a time; a concurrent call returns immediately with Skipped set.
// The returned error is non-nil only when local storage fails.
func (o *Outbox) Process(ctx context.Context) (Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		return Report{Skipped: true}, nil
	}
	defer o.running.Store(false)

	var report Report
	items, err := o.Pending(ctx)
	if err != nil {
		return report, err
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			report.Remaining = len(items) - i
			return report, err
		}

		replayErr := o.replay(ctx, item)
		if replayErr == nil {
			if err := o.store.Delete(ctx, o.partition, strconv.FormatInt(item.ID, 10)); err != nil {
				return report, err
			}
			report.Replayed++
			if o.onReplayed != nil {
				o.onReplayed(ctx, item)
			}
			continue
		}

		if errors.Is(replayErr, ErrDeferred) {
			o.logger.Debug("outbox replay deferred", "id", item.ID, "type", item.Type, "error", replayErr)
			report.Blocked = true
			report.Remaining = len(items) - i
			return report, nil
		}

		item.Attempts++
		item.LastError = replayErr.Error()
		if o.maxAttempts > 0 && item.Attempts >= o.maxAttempts {
			if err := o.deadLetter(ctx, item); err != nil {
				return report, err
			}
			report.DeadLettered++
			continue
		}

		if _, err := o.store.Put(ctx, o.partition, item); err != nil {
			return report, err
		}
		o.logger.Warn("outbox replay failed",
			"id", item.ID, "type", item.Type, "attempts", item.Attempts, "error", replayErr)
		report.Blocked = true
		report.Remaining = len(items) - i
		return report, nil
	}
	return report, nil
}

func (o *Outbox) replay(ctx context.Context, item Item) error {
	o.mu.RLock()
	h, ok := o.handlers[item.Type]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, item.Type)
	}
	return h(ctx, item.Payload)
}

func (o *Outbox) deadLetter(ctx context.Context, item Item) error {
	if _, err := o.store.Put(ctx, o.failedPartition, item); err != nil {
		return err
	}
	if err := o.store.Delete(ctx, o.partition, strconv.FormatInt(item.ID, 10)); err != nil {
		return err
	}
	o.logger.Error("outbox item dead-lettered",
		"id", item.ID, "type", item.Type, "attempts", item.Attempts, "error", item.LastError)
	if o.onDeadLettered != nil {
		o.onDeadLettered(ctx, item)
	}
	return nil
}

func (o *Outbox) list(ctx context.Context, partition string) ([]Item, error) {
	docs, err := o.store.GetAll(ctx, partition)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(docs))
	for _, doc := range docs {
		var item Item
		if err := json.Unmarshal(doc, &item); err != nil {
			return nil, fmt.Errorf("decode %s item: %w", partition, err)
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}
