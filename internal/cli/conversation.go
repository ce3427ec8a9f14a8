package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newConversationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversation",
		Aliases: []string{"conv"},
		Short:   "Inspect and resolve conversations",
	}
	cmd.AddCommand(newConversationShowCmd())
	cmd.AddCommand(newConversationResolveCmd())
	return cmd
}

func newConversationShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <conversation-id>",
		Short: "Show a conversation and its turns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				conv, err := a.svc.Conversation(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), conv)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Conversation %s (customer %s, channel %s)\n", conv.ID, conv.CustomerID, conv.Channel)
				fmt.Fprintf(out, "State:       %s", conv.EscalationState)
				if conv.EscalationReason != "" {
					fmt.Fprintf(out, " (%s)", conv.EscalationReason)
				}
				fmt.Fprintf(out, "\nStreaks:     negative=%d unresolved=%d\n", conv.ConsecutiveNegativeEmotion, conv.UnresolvedTurns)
				fmt.Fprintf(out, "Version:     %d\n\n", conv.Version)

				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SEQ\tTURN\tINTENT\tSENTIMENT\tEMOTION\tMESSAGE")
				for _, t := range conv.Turns {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\t%s\n", t.Seq, t.ID, t.Intent, t.SentimentScore, t.DominantEmotion, t.CustomerMessage)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newConversationResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <conversation-id>",
		Short: "Mark an escalated conversation resolved by a human agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				conv, err := a.svc.Resolve(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Conversation %s is now %s\n", conv.ID, conv.EscalationState)
				return nil
			})
		},
	}
}
