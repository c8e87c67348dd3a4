// Package app wires the local-first data layer together.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rpggio/farmsync/internal/config"
	"github.com/rpggio/farmsync/internal/connectivity"
	"github.com/rpggio/farmsync/internal/domain/activity"
	"github.com/rpggio/farmsync/internal/domain/kind"
	"github.com/rpggio/farmsync/internal/domain/record"
	"github.com/rpggio/farmsync/internal/localstore"
	"github.com/rpggio/farmsync/internal/outbox"
	"github.com/rpggio/farmsync/internal/remote"
)

var (
	// ErrUnknownKind is returned for kind names outside kind.All.
	ErrUnknownKind = errors.New("unknown kind")
	// ErrSignalReadOnly is returned by SetOnline when connectivity follows a status file.
	ErrSignalReadOnly = errors.New("connectivity is driven by a status file")
)

// App owns every long-lived component.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store    *localstore.Store
	outbox   *outbox.Outbox
	remote   remote.Client
	activity *activity.Service
	signal   connectivity.Signal
	manual   *connectivity.Manual
	file     *connectivity.FileSignal
	reactor  *connectivity.Reactor
	tasks    *record.Tasks
	repos    map[string]*record.Repository
}

// Option overrides a collaborator, mainly for tests.
type Option func(*options)

type options struct {
	remote remote.Client
}

// WithRemote uses client instead of building one from the configured DSN.
func WithRemote(client remote.Client) Option {
	return func(o *options) { o.remote = client }
}

// New builds the application from configuration. Nothing touches the network
// or the local store until first use.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		tasks:  &record.Tasks{},
		repos:  map[string]*record.Repository{},
	}

	store, err := newStore(cfg.Local, logger)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.activity = activity.NewService(activity.NewLocalRepository(store, localstore.PartitionActivity), logger)

	a.outbox = outbox.New(store, outbox.Options{
		MaxAttempts:    cfg.Outbox.MaxAttempts,
		Logger:         logger,
		OnReplayed:     a.outboxActivity(activity.TypeOutboxReplayed),
		OnDeadLettered: a.outboxActivity(activity.TypeOutboxDeadLettered),
	})

	a.remote = o.remote
	if a.remote == nil {
		client, err := remote.BuildFromDSN(cfg.Remote.DSN)
		if err != nil {
			return nil, fmt.Errorf("building remote client: %w", err)
		}
		a.remote = client
	}

	if path := strings.TrimSpace(cfg.Connectivity.StatusFile); path != "" {
		file, err := connectivity.NewFileSignal(path, cfg.Connectivity.StartOnline, logger)
		if err != nil {
			return nil, fmt.Errorf("watching status file: %w", err)
		}
		a.file = file
		a.signal = file
	} else {
		a.manual = connectivity.NewManual(cfg.Connectivity.StartOnline)
		a.signal = a.manual
	}

	validator, err := kind.NewValidator()
	if err != nil {
		return nil, err
	}
	var reconcilers []connectivity.Reconciler
	for _, k := range kind.All() {
		var policy record.SyncPolicy = record.DeferredPolicy{}
		if k.Policy == kind.PolicyOutbox {
			policy = record.OutboxPolicy{Outbox: a.outbox}
		}
		repo := record.NewRepository(record.Options{
			Entity:        k.Entity,
			Store:         store,
			Remote:        a.remote,
			Policy:        policy,
			Connectivity:  a.signal,
			Validator:     validator,
			Activity:      a.activity,
			Tasks:         a.tasks,
			Logger:        logger,
			RemoteTimeout: cfg.Remote.TimeoutDuration(),
		})
		a.repos[k.Name] = repo
		reconcilers = append(reconcilers, repo)
	}

	a.reactor = connectivity.NewReactor(a.signal, connectivity.Options{
		Drainers:    []connectivity.Drainer{a.outbox},
		Reconcilers: reconcilers,
		Owners:      cfg.Auth.Owners,
		Logger:      logger,
	})
	return a, nil
}

func newStore(cfg config.LocalConfig, logger *slog.Logger) (*localstore.Store, error) {
	opts := localstore.Options{Logger: logger}
	switch cfg.Backend {
	case "", "auto":
		opts.Preferred = localstore.SQLiteOpener(cfg.Path)
		opts.Fallback = localstore.FlatOpener(cfg.FlatDir)
	case "sqlite":
		opts.Preferred = localstore.SQLiteOpener(cfg.Path)
	case "flat":
		opts.Fallback = localstore.FlatOpener(cfg.FlatDir)
	default:
		return nil, fmt.Errorf("invalid local backend %q", cfg.Backend)
	}
	return localstore.New(opts), nil
}

// Repository returns the repository for a kind name.
func (a *App) Repository(name string) (*record.Repository, error) {
	repo, ok := a.repos[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return repo, nil
}

// Kinds returns every kind name.
func (a *App) Kinds() []string {
	return kind.Names()
}

// Run drives connectivity until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.file != nil {
		g.Go(func() error { return a.file.Run(gctx) })
	}
	g.Go(func() error { return a.reactor.Run(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// SyncNow drains the outbox and reconciles every kind for every known owner.
func (a *App) SyncNow(ctx context.Context) connectivity.SyncReport {
	return a.reactor.SyncNow(ctx)
}

// SyncOwner is SyncNow for a single owner.
func (a *App) SyncOwner(ctx context.Context, ownerID string) connectivity.SyncReport {
	return a.reactor.SyncFor(ctx, []string{ownerID})
}

// SetOnline flips the manual connectivity signal.
func (a *App) SetOnline(online bool) error {
	if a.manual == nil {
		return ErrSignalReadOnly
	}
	a.manual.Set(online)
	return nil
}

func (a *App) Online() bool {
	return a.signal.Online()
}

// RecentActivity lists the owner's sync activity.
func (a *App) RecentActivity(ctx context.Context, ownerID string, opts activity.ListOptions) ([]activity.Entry, error) {
	return a.activity.GetRecentActivity(ctx, ownerID, opts)
}

// FailedMutations lists dead-lettered outbox items.
func (a *App) FailedMutations(ctx context.Context) ([]outbox.Item, error) {
	return a.outbox.Failed(ctx)
}

// Requeue returns a dead-lettered item to the outbox.
func (a *App) Requeue(ctx context.Context, id int64) (outbox.Item, error) {
	return a.outbox.Requeue(ctx, id)
}

// WaitForTasks blocks until detached remote writes have finished.
func (a *App) WaitForTasks() {
	a.tasks.Wait()
}

// Close waits for detached tasks and releases every resource.
func (a *App) Close() error {
	a.tasks.Wait()
	var errs []error
	if a.file != nil {
		errs = append(errs, a.file.Close())
	}
	errs = append(errs, a.remote.Close(), a.store.Close())
	return errors.Join(errs...)
}

func (a *App) outboxActivity(typ activity.Type) func(context.Context, outbox.Item) {
	return func(ctx context.Context, item outbox.Item) {
		var ref struct {
			ID      string `json:"id"`
			OwnerID string `json:"ownerId"`
		}
		if err := json.Unmarshal(item.Payload, &ref); err != nil || ref.OwnerID == "" {
			return
		}
		kindName, _, _ := strings.Cut(item.Type, ".")
		summary := fmt.Sprintf("%s after %d failed attempts", item.Type, item.Attempts)
		if typ == activity.TypeOutboxReplayed {
			summary = "replayed " + item.Type
		}
		entry := &activity.Entry{Kind: kindName, RecordID: ref.ID, Type: typ, Summary: summary}
		if err := a.activity.LogActivity(ctx, ref.OwnerID, entry); err != nil {
			a.logger.Warn("logging outbox activity failed", "error", err)
		}
	}
}
