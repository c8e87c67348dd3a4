package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rpggio/farmsync/internal/connectivity"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	*RootOptions
	Owner string
}

// SyncResult is the sync command's output.
type SyncResult struct {
	Online bool                    `json:"online"`
	Owners []string                `json:"owners,omitempty"`
	Report connectivity.SyncReport `json:"report"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the outbox and reconcile every kind once",
		Long: `Run a single sync pass: replay queued mutations in order, then push unsynced
records and merge the remote copy for every kind. Without --owner every
configured owner is reconciled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "reconcile only this owner")

	return cmd
}

func runSync(opts *SyncOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, _, a, closeApp, err := opts.openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	res := SyncResult{Online: a.Online()}
	if opts.Owner != "" {
		res.Owners = []string{opts.Owner}
		res.Report = a.SyncOwner(ctx, opts.Owner)
	} else {
		res.Owners = cfg.Auth.Owners()
		res.Report = a.SyncNow(ctx)
	}
	a.WaitForTasks()

	if err := opts.write(cmd.OutOrStdout(), res, func(w io.Writer) { printSync(w, res) }); err != nil {
		return err
	}
	if res.Report.Failed > 0 {
		return fmt.Errorf("%d reconcile(s) failed", res.Report.Failed)
	}
	return nil
}

func printSync(w io.Writer, res SyncResult) {
	if !res.Online {
		fmt.Fprintln(w, "offline: nothing was sent")
		return
	}
	for i, d := range res.Report.Drains {
		fmt.Fprintf(w, "outbox %d: replayed %d, dead-lettered %d, remaining %d", i+1, d.Replayed, d.DeadLettered, d.Remaining)
		if d.Blocked {
			fmt.Fprint(w, " (blocked)")
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "reconciled %d, failed %d\n", res.Report.Reconciled, res.Report.Failed)
}
