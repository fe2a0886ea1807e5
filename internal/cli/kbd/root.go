package kbd

import (
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/crmkb/internal/cli"
)

// NewRootCmd assembles the kbd command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "kbd",
		Short:         "CRM knowledge base daemon and CLI",
		Long:          "Ingest documents into the CRM knowledge base and serve similarity search for the assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(
		ServeCmd(),
		IngestCmd(),
		SearchCmd(),
		BackfillCmd(),
		EmbedDimCmd(),
		WatchCmd(),
		MigrateCmd(),
	)

	return rootCmd
}
