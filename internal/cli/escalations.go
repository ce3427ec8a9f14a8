package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newEscalationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escalations",
		Short: "Work with the human handoff queue",
	}
	cmd.AddCommand(newEscalationsListCmd())
	return cmd
}

func newEscalationsListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List open handoffs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.queue == nil {
					return errors.New("handoff queue is disabled (handoff.enabled: false)")
				}
				open, err := a.queue.ListOpen(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), open)
				}
				if len(open) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No open escalations")
					return nil
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "CONVERSATION\tCUSTOMER\tCHANNEL\tREASON\tWAITING")
				now := time.Now()
				for _, h := range open {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", h.ConversationID, h.CustomerID, h.Channel, h.Reason,
						now.Sub(h.CreatedAt).Round(time.Second))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}
