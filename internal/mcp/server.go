package mcp

import (
	"context"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/farmsync/internal/app"
	"github.com/rpggio/farmsync/internal/connectivity"
	"github.com/rpggio/farmsync/internal/domain/activity"
	"github.com/rpggio/farmsync/internal/domain/record"
	"github.com/rpggio/farmsync/internal/outbox"
)

// Backend is the slice of the application the tools operate on.
type Backend interface {
	Kinds() []string
	Repository(kind string) (*record.Repository, error)
	SyncOwner(ctx context.Context, ownerID string) connectivity.SyncReport
	SetOnline(online bool) error
	Online() bool
	Status(ctx context.Context, ownerID string) (app.Status, error)
	RecentActivity(ctx context.Context, ownerID string, opts activity.ListOptions) ([]activity.Entry, error)
	FailedMutations(ctx context.Context) ([]outbox.Item, error)
	Requeue(ctx context.Context, id int64) (outbox.Item, error)
}

// Config contains server configuration.
type Config struct {
	Backend       Backend
	Resolver      OwnerResolver
	AuthEnabled   bool
	DefaultOwner  string
	TransportMode string // "stdio" or "http"
	Version       string
	Logger        *slog.Logger
}

// NewServer creates an MCP server exposing the record tools.
func NewServer(cfg Config) *sdkmcp.Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "farmsync",
		Version: cfg.Version,
	}, &sdkmcp.ServerOptions{
		Instructions: serverInstructions,
		Logger:       cfg.Logger,
	})

	registerDocResources(server)

	// Stdio is a local, single-user transport and never authenticates.
	if cfg.TransportMode != "stdio" && cfg.AuthEnabled {
		server.AddReceivingMiddleware(authMiddleware(cfg.Resolver))
	} else {
		server.AddReceivingMiddleware(noAuthMiddleware(cfg.DefaultOwner))
	}
	server.AddReceivingMiddleware(trafficLoggingMiddleware(cfg.Logger, "inbound"))
	server.AddSendingMiddleware(trafficLoggingMiddleware(cfg.Logger, "outbound"))

	registerTools(server, cfg.Backend)

	return server
}
