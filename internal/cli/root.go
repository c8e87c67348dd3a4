// Package cli implements the farmsync command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/rpggio/farmsync/internal/app"
	"github.com/rpggio/farmsync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	Format     string // "json" | "text"

	transport string

	// appOptions are passed to app.New; tests use them to inject a remote.
	appOptions []app.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the farmsync CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "farmsync",
		Short: "Local-first sync for farm CRM records",
		Long: `farmsync keeps leads, clients, visits, scheduled items and sales in a local
store and reconciles them with a remote document store when connectivity allows.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv("FARMSYNC_CONFIG_PATH"), "YAML or TOML config file")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override the configured log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewOutboxCommand(opts))

	return cmd
}

// loadConfig reads configuration and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.LoadFrom(o.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.transport != "" {
		cfg.Transport.Mode = o.transport
	}
	return cfg, nil
}

// openApp loads configuration and builds the application. The caller closes
// the returned closer.
func (o *RootOptions) openApp(ctx context.Context, cmd *cobra.Command) (config.Config, *slog.Logger, *app.App, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return config.Config{}, nil, nil, nil, fmt.Errorf("config error: %w", err)
	}
	logger, closeLog := newLogger(cfg, cmd.ErrOrStderr())
	a, err := app.New(ctx, cfg, logger, o.appOptions...)
	if err != nil {
		closeLog()
		return config.Config{}, nil, nil, nil, err
	}
	closeAll := func() {
		if err := a.Close(); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		closeLog()
	}
	return cfg, logger, a, closeAll, nil
}

// write prints v as indented JSON or through text.
func (o *RootOptions) write(w io.Writer, v any, text func(io.Writer)) error {
	if o.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}
