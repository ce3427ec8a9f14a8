package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hassanupf24/CustomerCareAI-Ecosystem/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of careai",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Info())
		},
	}
}
