package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rpggio/farmsync/internal/outbox"
)

// NewOutboxCommand creates the outbox command group.
func NewOutboxCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and retry failed mutations",
	}
	cmd.AddCommand(newOutboxFailedCommand(rootOpts))
	cmd.AddCommand(newOutboxRequeueCommand(rootOpts))
	return cmd
}

func newOutboxFailedCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "List mutations moved aside after repeated replay failures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, _, a, closeApp, err := opts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			items, err := a.FailedMutations(ctx)
			if err != nil {
				return err
			}
			if items == nil {
				items = []outbox.Item{}
			}
			return opts.write(cmd.OutOrStdout(), items, func(w io.Writer) {
				if len(items) == 0 {
					fmt.Fprintln(w, "no failed mutations")
					return
				}
				for _, item := range items {
					fmt.Fprintf(w, "%d\t%s\tattempts=%d\t%s\n", item.ID, item.Type, item.Attempts, item.LastError)
				}
			})
		},
	}
}

func newOutboxRequeueCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <id>",
		Short: "Move a failed mutation back to the tail of the outbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}
			ctx := cmd.Context()
			_, _, a, closeApp, err := opts.openApp(ctx, cmd)
			if err != nil {
				return err
			}
			defer closeApp()

			item, err := a.Requeue(ctx, id)
			if err != nil {
				return err
			}
			return opts.write(cmd.OutOrStdout(), item, func(w io.Writer) {
				fmt.Fprintf(w, "requeued %s as %d\n", item.Type, item.ID)
			})
		},
	}
}
