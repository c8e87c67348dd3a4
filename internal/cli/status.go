package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rpggio/farmsync/internal/app"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Owner string
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show local backend, connectivity and unsynced counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner to count records for (default: configured default owner)")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, _, a, closeApp, err := opts.openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer closeApp()

	owner := opts.Owner
	if owner == "" {
		owner = cfg.Auth.DefaultOwner
	}
	st, err := a.Status(ctx, owner)
	if err != nil {
		return err
	}
	return opts.write(cmd.OutOrStdout(), st, func(w io.Writer) { printStatus(w, owner, st) })
}

func printStatus(w io.Writer, owner string, st app.Status) {
	state := "offline"
	if st.Online {
		state = "online"
	}
	fmt.Fprintf(w, "backend: %s\n", st.Backend)
	fmt.Fprintf(w, "connectivity: %s\n", state)
	fmt.Fprintf(w, "outbox: %d queued, %d failed\n", st.OutboxDepth, st.Failed)
	fmt.Fprintf(w, "owner: %s\n\n", owner)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tPOLICY\tRECORDS\tUNSYNCED")
	for _, k := range st.Kinds {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", k.Kind, k.Policy, k.Records, k.Unsynced)
	}
	tw.Flush()
}
