// Package cmd implements the docstore command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "docstore",
	Short: "docstore - a pgvector-backed document retrieval store",
	Long: `docstore indexes local documents into PostgreSQL with pgvector and
retrieves the most similar chunks for a query.

Typical flow:

  docstore index ./docs     # chunk, embed, and store documents
  docstore search "how do I configure TLS?"
  docstore status           # connection and corpus overview`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
