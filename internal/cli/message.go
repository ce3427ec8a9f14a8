package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/domain"
)

func newMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message",
		Short: "Send customer messages through the pipeline",
	}

	cmd.AddCommand(newMessageSendCmd())
	return cmd
}

func newMessageSendCmd() *cobra.Command {
	var (
		req    domain.InteractionRequest
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Run one customer message and print the response",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Message = strings.Join(args, " ")
			if req.ConversationID == "" {
				req.ConversationID = "cli:" + req.CustomerID
			}

			return withApp(cmd, func(ctx context.Context, a *app) error {
				resp, err := a.svc.Handle(ctx, req)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), resp)
				}

				fmt.Fprintln(cmd.OutOrStdout(), resp.ResponseText)
				fmt.Fprintf(cmd.ErrOrStderr(), "\n[turn=%s intent=%s sentiment=%.2f emotion=%s escalate=%v]\n",
					resp.InteractionID, resp.Intent, resp.SentimentScore, resp.DominantEmotion, resp.EscalationFlag)
				if resp.EscalationReason != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "[escalation reason=%s]\n", *resp.EscalationReason)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.ConversationID, "conversation", "", "conversation id (default cli:<customer>)")
	cmd.Flags().StringVar(&req.CustomerID, "customer", "cli", "customer id")
	cmd.Flags().StringVar(&req.Channel, "channel", domain.ChannelAPI, "channel (chat, email, social, api)")
	cmd.Flags().StringVar(&req.Language, "language", "", "language hint (en, ar)")
	cmd.Flags().BoolVar(&req.Resolved, "resolved", false, "mark the issue resolved by this message")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full unified response")
	return cmd
}
