package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/repeatnomore/docstore/internal/embedding"
	"github.com/repeatnomore/docstore/internal/observability"
	"github.com/repeatnomore/docstore/internal/rag"
)

var (
	searchTopK     int
	searchMinScore float64
	searchSource   string
	searchFull     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the store for chunks similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().Float64Var(&searchMinScore, "min-score", -1, "minimum similarity score 0..1 (default from config)")
	searchCmd.Flags().StringVar(&searchSource, "source", "", "restrict results to chunks from this file")
	searchCmd.Flags().BoolVar(&searchFull, "full", false, "print full chunk content instead of a snippet")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	ctx, span := observability.Tracer().Start(ctx, "docstore.search")
	defer span.End()

	embedder, err := embedding.New(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}

	retriever := rag.NewRetriever(a.store, embedder, rag.RetrieverConfig{
		TopK:     a.cfg.TopK,
		MinScore: a.cfg.MinScore,
	}, a.logger.With("component", "retriever"))

	var opts []rag.RetrieveOption
	if searchTopK > 0 {
		opts = append(opts, rag.WithTopK(searchTopK))
	}
	if searchMinScore >= 0 {
		opts = append(opts, rag.WithMinScore(searchMinScore))
	}
	if searchSource != "" {
		opts = append(opts, rag.WithSource(searchSource))
	}

	query := strings.Join(args, " ")
	matches, err := retriever.Retrieve(ctx, query, opts...)
	if err != nil {
		return err
	}

	if len(matches) == 0 {
		fmt.Println("No matches.")
		return nil
	}

	for i, m := range matches {
		source, _ := m.Metadata["source"].(string)
		fmt.Printf("%d. %s (score %.3f)\n", i+1, m.ID, m.Score())
		if source != "" {
			fmt.Printf("   source: %s\n", source)
		}
		fmt.Printf("   %s\n", renderContent(m.Content, searchFull))
	}
	return nil
}

func renderContent(content string, full bool) string {
	s := strings.Join(strings.Fields(content), " ")
	r := []rune(s)
	if full || len(r) <= 200 {
		return s
	}
	return string(r[:200]) + "..."
}
