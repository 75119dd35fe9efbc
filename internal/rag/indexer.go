package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/repeatnomore/docstore/internal/embedding"
	"github.com/repeatnomore/docstore/internal/log"
	"github.com/repeatnomore/docstore/internal/vectorstore"
)

// supportedExtensions lists the file types the indexer will ingest.
var supportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".go":   true,
	".py":   true,
	".json": true,
	".yaml": true,
	".yml":  true,
	".toml": true,
	".html": true,
	".csv":  true,
}

// maxFileSize caps individual files to keep a single source from
// dominating the store.
const maxFileSize = 10 << 20 // 10 MiB

// IndexerStore is the slice of the record store the indexer needs.
type IndexerStore interface {
	UpsertBatch(ctx context.Context, records []vectorstore.Record) error
	IDsByMetadata(ctx context.Context, filter map[string]any) ([]string, error)
	DeleteMany(ctx context.Context, ids []string) (int64, error)
}

// Indexer chunks files, embeds the chunks, and writes them to the
// record store. Re-indexing a file replaces its previous chunks.
type Indexer struct {
	store    IndexerStore
	embedder embedding.Embedder
	splitter *Splitter
	limiter  *rate.Limiter
	logger   log.Logger
}

// IndexerConfig carries the indexer tunables.
type IndexerConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// EmbedRateLimit caps embedding calls per second. Zero or negative
	// disables throttling.
	EmbedRateLimit float64
}

// IndexResult summarizes a directory indexing run.
type IndexResult struct {
	RunID        string
	FilesIndexed int
	FilesSkipped int
	ChunksStored int
	Failed       []string
}

// NewIndexer creates an Indexer over the given store and embedder.
func NewIndexer(store IndexerStore, embedder embedding.Embedder, cfg IndexerConfig, logger log.Logger) *Indexer {
	limit := rate.Inf
	if cfg.EmbedRateLimit > 0 {
		limit = rate.Limit(cfg.EmbedRateLimit)
	}
	return &Indexer{
		store:    store,
		embedder: embedder,
		splitter: NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
	}
}

// IndexFile chunks, embeds, and stores a single file. It returns the
// number of chunks stored. Chunks from a previous indexing of the same
// file that no longer exist are deleted.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	runID := uuid.NewString()
	return ix.indexFile(ctx, path, runID)
}

// IndexDirectory walks dir and indexes every supported file. Hidden
// directories are skipped. Individual file failures are recorded in the
// result and do not abort the run.
func (ix *Indexer) IndexDirectory(ctx context.Context, dir string) (*IndexResult, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve directory %q: %w", dir, err)
	}

	result := &IndexResult{RunID: uuid.NewString()}

	walkErr := filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); strings.HasPrefix(name, ".") && path != absDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			result.FilesSkipped++
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		stored, err := ix.indexFile(ctx, path, result.RunID)
		if err != nil {
			ix.logger.Warn("indexing failed", "path", path, "error", err)
			result.Failed = append(result.Failed, path)
			return nil
		}
		result.FilesIndexed++
		result.ChunksStored += stored
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk %q: %w", absDir, walkErr)
	}

	ix.logger.Info("directory indexed",
		"dir", absDir,
		"run_id", result.RunID,
		"files", result.FilesIndexed,
		"skipped", result.FilesSkipped,
		"chunks", result.ChunksStored,
		"failed", len(result.Failed))

	return result, nil
}

// RemoveSource deletes every chunk previously indexed from the given
// file path. It returns the number of chunks removed.
func (ix *Indexer) RemoveSource(ctx context.Context, path string) (int64, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolve path %q: %w", path, err)
	}

	ids, err := ix.store.IDsByMetadata(ctx, map[string]any{"source": abs})
	if err != nil {
		return 0, fmt.Errorf("list chunks for %q: %w", abs, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	deleted, err := ix.store.DeleteMany(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete chunks for %q: %w", abs, err)
	}

	ix.logger.Info("source removed", "source", abs, "chunks", deleted)
	return deleted, nil
}

func (ix *Indexer) indexFile(ctx context.Context, path, runID string) (int, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("resolve path %q: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return 0, fmt.Errorf("stat %q: %w", abs, err)
	}
	if info.Size() > maxFileSize {
		return 0, fmt.Errorf("file %q exceeds %d bytes", abs, int64(maxFileSize))
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return 0, fmt.Errorf("read %q: %w", abs, err)
	}

	chunks := ix.splitter.Split(string(data))
	if len(chunks) == 0 {
		ix.logger.Debug("no content to index", "path", abs)
		return 0, nil
	}

	if err := ix.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}
	vectors, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed %q: %w", abs, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	records := make([]vectorstore.Record, len(chunks))
	newIDs := make(map[string]bool, len(chunks))
	for i, chunk := range chunks {
		id := chunkID(abs, chunk)
		newIDs[id] = true
		records[i] = vectorstore.Record{
			ID:        id,
			Content:   chunk,
			Embedding: vectors[i],
			Metadata: map[string]any{
				"source":      abs,
				"file_name":   filepath.Base(abs),
				"file_type":   strings.TrimPrefix(filepath.Ext(abs), "."),
				"chunk_index": i,
				"indexed_at":  now,
				"run_id":      runID,
			},
		}
	}

	if err := ix.store.UpsertBatch(ctx, records); err != nil {
		return 0, fmt.Errorf("store chunks for %q: %w", abs, err)
	}

	if err := ix.pruneStale(ctx, abs, newIDs); err != nil {
		return 0, err
	}

	ix.logger.Debug("file indexed", "path", abs, "chunks", len(records))
	return len(records), nil
}

// pruneStale removes chunks of a source that were written by an earlier
// indexing run and no longer correspond to current content.
func (ix *Indexer) pruneStale(ctx context.Context, source string, keep map[string]bool) error {
	existing, err := ix.store.IDsByMetadata(ctx, map[string]any{"source": source})
	if err != nil {
		return fmt.Errorf("list chunks for %q: %w", source, err)
	}

	var stale []string
	for _, id := range existing {
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if _, err := ix.store.DeleteMany(ctx, stale); err != nil {
		return fmt.Errorf("prune stale chunks for %q: %w", source, err)
	}
	ix.logger.Debug("stale chunks pruned", "source", source, "count", len(stale))
	return nil
}

// chunkID derives a stable record id from the source path and chunk
// content, so unchanged chunks upsert in place across runs.
func chunkID(source, chunk string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + chunk))
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return fmt.Sprintf("%s_%s", stem, hex.EncodeToString(sum[:])[:12])
}
