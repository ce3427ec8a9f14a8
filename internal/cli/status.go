package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/config"
	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/version"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show careai paths and a configuration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "careai %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:     %s\n", paths.Config)
			fmt.Fprintf(out, "Data:       %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:       %s\n", paths.Logs)
			fmt.Fprintln(out)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:     not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:     error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway:    port=%d bind=%s auth=%s\n", cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)
			if cfg.Storage.Driver == "memory" {
				fmt.Fprintln(out, "Storage:    memory")
			} else {
				fmt.Fprintf(out, "Storage:    sqlite %s\n", paths.DBPath(cfg.Storage))
			}

			esc := cfg.Escalation
			fmt.Fprintf(out, "Escalation: sentiment<%.2f emotionStreak=%d unresolved=%d severity>=%s hotReload=%v\n",
				esc.SentimentThreshold, esc.EmotionStreak, esc.UnresolvedTurns, esc.AlertSeverity, esc.HotReload)
			fmt.Fprintf(out, "Feedback:   queue=%d workers=%d attempts=%d\n",
				cfg.Feedback.QueueSize, cfg.Feedback.Workers, cfg.Feedback.MaxAttempts)
			fmt.Fprintf(out, "Handoff:    enabled=%v\n", cfg.Handoff.Enabled)

			if irc := cfg.Channels.IRC; irc != nil {
				fmt.Fprintf(out, "IRC:        server=%s nick=%s channels=%s tls=%v\n",
					irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
			} else {
				fmt.Fprintln(out, "IRC:        (not configured)")
			}
			if em := cfg.Channels.Email; em != nil {
				fmt.Fprintf(out, "Email:      server=%s user=%s mailbox=%s\n", em.Server, em.Username, em.Mailbox)
			} else {
				fmt.Fprintln(out, "Email:      (not configured)")
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}
			return nil
		},
	}
}
