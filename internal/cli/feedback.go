package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

func newFeedbackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback",
		Short: "Record customer feedback",
	}
	cmd.AddCommand(newFeedbackSubmitCmd())
	return cmd
}

func newFeedbackSubmitCmd() *cobra.Command {
	var ev domain.FeedbackEvent

	cmd := &cobra.Command{
		Use:   "submit <turn-id>",
		Short: "Submit a CSAT score for a turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev.TurnID = args[0]
			ev.SubmittedAt = time.Now().UTC()
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.svc.SubmitFeedback(ctx, ev); err != nil {
					return err
				}
				// close drains the queue, so the analytics row exists afterwards.
				fmt.Fprintf(cmd.OutOrStdout(), "Feedback recorded for %s\n", ev.TurnID)
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&ev.CSATScore, "csat", 0, "CSAT score 1-5")
	cmd.Flags().StringVar(&ev.Comment, "comment", "", "free-text comment")
	_ = cmd.MarkFlagRequired("csat")
	return cmd
}
