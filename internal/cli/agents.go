package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAgentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect the stage agents",
	}
	cmd.AddCommand(newAgentsListCmd())
	return cmd
}

func newAgentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the agent behind each pipeline stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			entries := cfg.Agents.Entries()
			stages := make([]string, 0, len(entries))
			for s := range entries {
				stages = append(stages, s)
			}
			sort.Strings(stages)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STAGE\tMODE\tURL")
			for _, s := range stages {
				e := entries[s]
				mode := e.Mode
				if mode == "" {
					mode = "local"
				}
				url := e.URL
				if url == "" {
					url = "-"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s, mode, url)
			}
			return tw.Flush()
		},
	}
}
