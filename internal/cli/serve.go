package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rpggio/farmsync/internal/config"
	"github.com/rpggio/farmsync/internal/mcp"
)

// Version is reported to MCP clients.
var Version = "dev"

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Transport string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server and the connectivity reactor",
		Long: `Serve the record tools over MCP (stdio or streamable HTTP) while watching
connectivity. Every offline-to-online transition drains the outbox and
reconciles all kinds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Transport, "transport", "", "override the configured transport (stdio|http)")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command) error {
	switch opts.Transport {
	case "", "stdio", "http":
		opts.transport = opts.Transport
	default:
		return fmt.Errorf("invalid transport %q: must be stdio or http", opts.Transport)
	}
	cfg, logger, a, closeApp, err := opts.openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	server := mcp.NewServer(mcp.Config{
		Backend:       a,
		Resolver:      mcp.TokenResolver(cfg.Auth.Tokens),
		AuthEnabled:   cfg.Auth.Enabled,
		DefaultOwner:  cfg.Auth.DefaultOwner,
		TransportMode: cfg.Transport.Mode,
		Version:       Version,
		Logger:        logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Run(gctx) })
	g.Go(func() error {
		// The reactor goroutine only stops with gctx, so a finished transport
		// must end the group.
		var err error
		if cfg.Transport.Mode == "stdio" {
			err = runStdioMode(gctx, logger, server)
		} else {
			err = runHTTPMode(gctx, logger, server, cfg.Server)
		}
		if err == nil {
			err = errServeDone
		}
		return err
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errServeDone) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

var errServeDone = errors.New("transport finished")

func runStdioMode(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server) error {
	logger.Info("starting stdio transport", "auth", "disabled")
	// Run returns when stdin closes or ctx is canceled.
	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stdio server: %w", err)
	}
	return nil
}

func runHTTPMode(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server, cfg config.ServerConfig) error {
	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: newHTTPHandler(server),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newHTTPHandler(server *sdkmcp.Server) http.Handler {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return server },
		&sdkmcp.StreamableHTTPOptions{
			Stateless:      false,
			SessionTimeout: 30 * time.Minute,
		},
	)

	router := http.NewServeMux()
	router.Handle("/mcp", mcpHandler)
	router.Handle("/mcp/", mcpHandler)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return router
}
