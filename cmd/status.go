package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connection, configuration, and corpus overview",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	count, err := a.store.Count(ctx, nil)
	if err != nil {
		return err
	}

	fmt.Println("Database:")
	fmt.Printf("  Host:      %s:%d\n", a.cfg.PostgresHost, a.cfg.PostgresPort)
	fmt.Printf("  Database:  %s\n", a.cfg.PostgresDBName)
	fmt.Printf("  Documents: %d\n", count)
	fmt.Println()
	fmt.Println("Embeddings:")
	fmt.Printf("  Provider:  %s\n", a.cfg.Provider)
	fmt.Printf("  Model:     %s\n", a.cfg.EmbeddingModel)
	fmt.Printf("  Dimension: %d\n", a.cfg.EmbeddingDimension)
	fmt.Println()
	fmt.Println("Index:")
	fmt.Printf("  ivfflat lists:  %d\n", a.cfg.IndexLists)
	fmt.Printf("  ivfflat probes: %d\n", a.cfg.IndexProbes)
	return nil
}
