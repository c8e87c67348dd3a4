package connectivity

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rpggio/farmsync/internal/domain/record"
	"github.com/rpggio/farmsync/internal/outbox"
)

// Drainer replays a queue of pending mutations.
type Drainer interface {
	Process(ctx context.Context) (outbox.Report, error)
}

// Reconciler runs a reconcile pass for the owner carried by ctx.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]record.Record, error)
}

// Options configures a Reactor.
type Options struct {
	Drainers    []Drainer
	Reconcilers []Reconciler
	// Owners lists the identities reconciled on each pass.
	Owners func() []string
	// MaxParallel bounds concurrent reconcile passes. Zero means unbounded.
	MaxParallel int
	Logger      *slog.Logger
}

// SyncReport summarizes one SyncNow pass.
type SyncReport struct {
	Drains     []outbox.Report
	Reconciled int
	Failed     int
}

// Reactor drains outboxes and reconciles every repository whenever the
// signal goes from offline to online.
type Reactor struct {
	signal      Signal
	drainers    []Drainer
	reconcilers []Reconciler
	owners      func() []string
	maxParallel int
	logger      *slog.Logger

	// online is the last state seen by Run, starting from the signal's
	// state at construction.
	online bool
	syncMu sync.Mutex
}

func NewReactor(signal Signal, opts Options) *Reactor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	owners := opts.Owners
	if owners == nil {
		owners = func() []string { return nil }
	}
	return &Reactor{
		signal:      signal,
		drainers:    opts.Drainers,
		reconcilers: opts.Reconcilers,
		owners:      owners,
		maxParallel: opts.MaxParallel,
		logger:      logger,
		online:      signal.Online(),
	}
}

// Online reports the current connectivity state.
func (r *Reactor) Online() bool {
	return r.signal.Online()
}

// Run consumes connectivity events until ctx is done.
func (r *Reactor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case next, ok := <-r.signal.Events():
			if !ok {
				return nil
			}
			wasOnline := r.online
			r.online = next
			if !next {
				r.logger.Info("connectivity lost")
				continue
			}
			if wasOnline {
				continue
			}
			r.logger.Info("connectivity regained, syncing")
			r.SyncNow(ctx)
		}
	}
}

// SyncNow drains every outbox in order, then reconciles all repositories for
// every known owner concurrently. Failures are logged, never returned.
func (r *Reactor) SyncNow(ctx context.Context) SyncReport {
	return r.SyncFor(ctx, r.owners())
}

// SyncFor is SyncNow restricted to the given owners.
func (r *Reactor) SyncFor(ctx context.Context, owners []string) SyncReport {
	r.syncMu.Lock()
	defer r.syncMu.Unlock()

	var report SyncReport
	for _, d := range r.drainers {
		drain, err := d.Process(ctx)
		if err != nil {
			r.logger.Error("outbox drain failed", "error", err)
		}
		report.Drains = append(report.Drains, drain)
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	if r.maxParallel > 0 {
		g.SetLimit(r.maxParallel)
	}
	for _, owner := range owners {
		ownerCtx := record.WithOwner(ctx, owner)
		for _, rec := range r.reconcilers {
			g.Go(func() error {
				_, err := rec.Reconcile(ownerCtx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Failed++
					r.logger.Error("reconcile failed", "owner", owner, "error", err)
					return err
				}
				report.Reconciled++
				return nil
			})
		}
	}
	_ = g.Wait()
	return report
}
