// Package vectorstore persists content chunks with metadata and an
// embedding vector in PostgreSQL + pgvector, and retrieves them by
// approximate nearest-neighbor search over cosine distance.
//
// One Store manages one documents table with a single fixed embedding
// dimension. The ANN index is ivfflat; its lists (build-time) and
// probes (query-time) parameters are configuration, not constants,
// because their correct values depend on corpus size.
//
// Store is safe for concurrent use. Readers never block each other;
// single upserts and deletes are atomic statements, and UpsertBatch
// runs in one transaction, so concurrent queries observe either all of
// a batch's mutations or none. Reset is a single TRUNCATE and is
// likewise all-or-nothing with respect to in-flight queries.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Config holds the store-creation-time parameters.
type Config struct {
	// Dimension is the fixed embedding vector length. All records in
	// the store share it.
	Dimension int

	// Lists is the ivfflat partition count. Rule of thumb:
	// lists ≈ sqrt(row count).
	Lists int

	// Probes is the number of lists scanned per query. Higher values
	// trade latency for recall. Defaults to 1 (pgvector default) when
	// zero.
	Probes int
}

// Store provides durable storage and similarity retrieval of content
// chunks over a shared pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	dim    int
	lists  int
	probes int
	logger *slog.Logger
}

// New creates a Store. The pool is owned by the caller and must have
// pgvector types registered (see database.NewPool).
func New(pool *pgxpool.Pool, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dimension < 1 {
		return nil, validationErr("dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Lists < 1 {
		return nil, validationErr("ivfflat lists must be positive, got %d", cfg.Lists)
	}
	if cfg.Probes < 0 {
		return nil, validationErr("ivfflat probes must not be negative, got %d", cfg.Probes)
	}

	probes := cfg.Probes
	if probes == 0 {
		probes = 1
	}

	return &Store{
		pool:   pool,
		dim:    cfg.Dimension,
		lists:  cfg.Lists,
		probes: probes,
		logger: logger,
	}, nil
}

// Dimension returns the store's fixed embedding dimension.
func (s *Store) Dimension() int { return s.dim }

// Init creates the documents table and its indexes if they do not
// exist. The set_updated_at trigger function comes from the base
// migration (db/migrations); Init only attaches it, because the table
// definition depends on the configured dimension.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, TableName, s.dim),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx
			ON %s USING ivfflat (embedding vector_cosine_ops)
			WITH (lists = %d)`, TableName, TableName, s.lists),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_metadata_idx
			ON %s USING gin (metadata jsonb_path_ops)`, TableName, TableName),
		fmt.Sprintf(`DROP TRIGGER IF EXISTS %s_set_updated_at ON %s`, TableName, TableName),
		fmt.Sprintf(`CREATE TRIGGER %s_set_updated_at
			BEFORE UPDATE ON %s
			FOR EACH ROW EXECUTE FUNCTION set_updated_at()`, TableName, TableName),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return storageErr("init schema", err)
		}
	}

	s.logger.Debug("vector store schema ready",
		"table", TableName, "dimension", s.dim, "lists", s.lists)
	return nil
}

// validateRecord checks the upsert input constraints.
func (s *Store) validateRecord(rec Record) error {
	if rec.ID == "" {
		return validationErr("record id must not be empty")
	}
	if rec.Content == "" {
		return validationErr("record %q: content must not be empty", rec.ID)
	}
	if len(rec.Embedding) != s.dim {
		return validationErr("record %q: embedding dimension %d does not match store dimension %d",
			rec.ID, len(rec.Embedding), s.dim)
	}
	return nil
}

const upsertSQL = `INSERT INTO ` + TableName + ` (id, content, metadata, embedding)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (id) DO UPDATE SET
		content = EXCLUDED.content,
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding`

// Upsert inserts or replaces a record by id. On replace, content,
// metadata, and embedding take the new values, updated_at is refreshed
// by the table trigger, and created_at is preserved.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if err := s.validateRecord(rec); err != nil {
		return err
	}

	metadataJSON, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return validationErr("record %q: metadata not JSON-encodable: %v", rec.ID, err)
	}

	vec := pgvector.NewVector(rec.Embedding)
	if _, err := s.pool.Exec(ctx, upsertSQL, rec.ID, rec.Content, metadataJSON, vec); err != nil {
		return storageErr(fmt.Sprintf("upsert %q", rec.ID), err)
	}

	s.logger.Debug("upserted record", "id", rec.ID, "content_length", len(rec.Content))
	return nil
}

// UpsertBatch applies Upsert for all records in one transaction.
// Concurrent readers observe either all of the batch's mutations or
// none. Validation runs over the whole batch before any write, so an
// invalid record leaves the batch unapplied.
func (s *Store) UpsertBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	// Fail fast before touching the database.
	for i, rec := range recs {
		if err := s.validateRecord(rec); err != nil {
			return fmt.Errorf("batch record %d: %w", i, err)
		}
	}

	batch := &pgx.Batch{}
	for _, rec := range recs {
		metadataJSON, err := marshalMetadata(rec.Metadata)
		if err != nil {
			return validationErr("record %q: metadata not JSON-encodable: %v", rec.ID, err)
		}
		batch.Queue(upsertSQL, rec.ID, rec.Content, metadataJSON, pgvector.NewVector(rec.Embedding))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storageErr("begin batch", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op after commit
	}()

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return storageErr("upsert batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit batch", err)
	}

	s.logger.Debug("upserted batch", "records", len(recs))
	return nil
}

// Query returns up to topK records ordered by ascending cosine distance
// to vec, nearest first. Ties in distance are broken by id ascending.
// An empty store yields an empty slice, not an error.
//
// The search is approximate: ivfflat scans s.probes of s.lists
// partitions, so recall is best-effort. The ORDER BY is the bare
// distance expression (required for the ANN index scan); the
// deterministic distance-then-id order is restored on the fetched rows.
func (s *Store) Query(ctx context.Context, vec []float32, topK int, opts ...QueryOption) ([]Match, error) {
	if len(vec) != s.dim {
		return nil, validationErr("query vector dimension %d does not match store dimension %d",
			len(vec), s.dim)
	}
	if topK <= 0 {
		return nil, validationErr("topK must be positive, got %d", topK)
	}

	cfg := buildQueryConfig(opts)

	query := pgvector.NewVector(vec)
	sql := `SELECT id, content, metadata, embedding, created_at, updated_at,
		embedding <=> $1 AS distance
		FROM ` + TableName
	args := []any{query}

	if len(cfg.filter) > 0 {
		// JSONB containment: records missing a filtered key are excluded.
		filterJSON, err := json.Marshal(cfg.filter)
		if err != nil {
			return nil, validationErr("filter not JSON-encodable: %v", err)
		}
		sql += fmt.Sprintf(" WHERE metadata @> $%d", len(args)+1)
		args = append(args, filterJSON)
	}

	if cfg.hasMin {
		clause := " WHERE"
		if len(cfg.filter) > 0 {
			clause = " AND"
		}
		// Score s maps to max cosine distance 2*(1-s).
		sql += fmt.Sprintf("%s embedding <=> $1 <= $%d", clause, len(args)+1)
		args = append(args, 2*(1-cfg.minScore))
	}

	sql += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT %d", topK)

	// SET LOCAL scopes the probes setting to this transaction only.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin query", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", s.probes)); err != nil {
		return nil, storageErr("set probes", err)
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageErr("query", err)
	}

	matches, err := scanMatches(rows)
	if err != nil {
		return nil, storageErr("scan results", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit query", err)
	}

	// Deterministic order: non-decreasing distance, ties by id ascending.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})

	return matches, nil
}

// Get retrieves a single record by id. Returns ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, validationErr("record id must not be empty")
	}

	row := s.pool.QueryRow(ctx,
		`SELECT id, content, metadata, embedding, created_at, updated_at
		FROM `+TableName+` WHERE id = $1`, id)

	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
		}
		return Record{}, storageErr(fmt.Sprintf("get %q", id), err)
	}
	return rec, nil
}

// Delete removes the record with the given id. Deleting an absent id
// is a no-op, not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return validationErr("record id must not be empty")
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+TableName+` WHERE id = $1`, id)
	if err != nil {
		return storageErr(fmt.Sprintf("delete %q", id), err)
	}

	s.logger.Debug("deleted record", "id", id, "existed", tag.RowsAffected() > 0)
	return nil
}

// DeleteMany removes all records with the given ids. Absent ids are
// skipped silently. Returns the number of records removed.
func (s *Store) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM `+TableName+` WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, storageErr("delete many", err)
	}

	s.logger.Debug("deleted records", "requested", len(ids), "removed", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

// Reset removes all records. TRUNCATE is a single statement, so a
// concurrent query sees either the pre- or post-state, never a partial
// deletion.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE TABLE `+TableName); err != nil {
		return storageErr("reset", err)
	}

	s.logger.Info("vector store reset", "table", TableName)
	return nil
}

// Count returns the number of records matching the metadata filter,
// or the total count when filter is empty.
func (s *Store) Count(ctx context.Context, filter map[string]any) (int64, error) {
	var count int64

	if len(filter) > 0 {
		filterJSON, err := json.Marshal(filter)
		if err != nil {
			return 0, validationErr("filter not JSON-encodable: %v", err)
		}
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM `+TableName+` WHERE metadata @> $1`, filterJSON).Scan(&count)
		if err != nil {
			return 0, storageErr("count", err)
		}
		return count, nil
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+TableName).Scan(&count); err != nil {
		return 0, storageErr("count", err)
	}
	return count, nil
}

// IDsByMetadata returns the ids of all records whose metadata contains
// every pair of the filter. An empty filter matches nothing.
func (s *Store) IDsByMetadata(ctx context.Context, filter map[string]any) ([]string, error) {
	if len(filter) == 0 {
		return nil, nil
	}

	filterJSON, err := json.Marshal(filter)
	if err != nil {
		return nil, validationErr("filter not JSON-encodable: %v", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id FROM `+TableName+` WHERE metadata @> $1 ORDER BY id`, filterJSON)
	if err != nil {
		return nil, storageErr("ids by metadata", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr("scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("ids by metadata", err)
	}
	return ids, nil
}

// marshalMetadata encodes metadata, defaulting nil to an empty object
// so the column is never null.
func marshalMetadata(metadata map[string]any) ([]byte, error) {
	if metadata == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(metadata)
}

func scanMatches(rows pgx.Rows) ([]Match, error) {
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		var m Match
		var metadataJSON []byte
		var vec pgvector.Vector
		if err := rows.Scan(&m.ID, &m.Content, &metadataJSON, &vec,
			&m.CreatedAt, &m.UpdatedAt, &m.Distance); err != nil {
			return nil, err
		}
		m.Embedding = vec.Slice()
		if err := json.Unmarshal(metadataJSON, &m.Metadata); err != nil {
			return nil, fmt.Errorf("record %q: invalid metadata: %w", m.ID, err)
		}
		if m.Metadata == nil {
			m.Metadata = map[string]any{}
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var metadataJSON []byte
	var vec pgvector.Vector
	if err := row.Scan(&rec.ID, &rec.Content, &metadataJSON, &vec,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Embedding = vec.Slice()
	if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
		return Record{}, fmt.Errorf("record %q: invalid metadata: %w", rec.ID, err)
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	return rec, nil
}
