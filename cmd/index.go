package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/repeatnomore/docstore/internal/embedding"
	"github.com/repeatnomore/docstore/internal/observability"
	"github.com/repeatnomore/docstore/internal/rag"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a file or directory into the store",
	Long: `Index chunks the given file (or every supported file under the given
directory), embeds the chunks, and upserts them into PostgreSQL.
Re-indexing a changed file replaces its previous chunks.

Only one index run may be active at a time; concurrent runs are
rejected via a lock file under ~/.docstore.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	unlock, err := acquireIndexLock()
	if err != nil {
		return err
	}
	defer unlock()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	ctx, span := observability.Tracer().Start(ctx, "docstore.index")
	defer span.End()

	embedder, err := embedding.New(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("create embedder: %w", err)
	}
	if embedder.Dimension() != a.store.Dimension() {
		return fmt.Errorf("embedding dimension %d does not match store dimension %d; adjust embedding_dimension or reset the store",
			embedder.Dimension(), a.store.Dimension())
	}

	indexer := rag.NewIndexer(a.store, embedder, rag.IndexerConfig{
		ChunkSize:      a.cfg.ChunkSize,
		ChunkOverlap:   a.cfg.ChunkOverlap,
		EmbedRateLimit: a.cfg.EmbedRateLimit,
	}, a.logger.With("component", "indexer"))

	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}

	if !info.IsDir() {
		stored, err := indexer.IndexFile(ctx, path)
		if err != nil {
			return err
		}
		fmt.Printf("Indexed %s (%d chunks)\n", path, stored)
		return nil
	}

	result, err := indexer.IndexDirectory(ctx, path)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d files (%d chunks, %d skipped)\n",
		result.FilesIndexed, result.ChunksStored, result.FilesSkipped)
	for _, failed := range result.Failed {
		fmt.Fprintf(os.Stderr, "failed: %s\n", failed)
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d files failed to index", len(result.Failed))
	}
	return nil
}

// acquireIndexLock takes an advisory file lock so concurrent index runs
// cannot interleave writes for the same source.
func acquireIndexLock() (func(), error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	dir := filepath.Join(home, ".docstore")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create %q: %w", dir, err)
	}

	lock := flock.New(filepath.Join(dir, "index.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another index run is in progress (lock held at %s)", lock.Path())
	}
	return func() { _ = lock.Unlock() }, nil
}
