package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/solar/internal/models"
	"github.com/xhad/solar/internal/types"
)

type VectorStoreConfig struct {
	ConnString string
	Metric     string
	MaxConns   int32
	Logger     *slog.Logger
}

// PgVectorStore keeps named collections in Postgres using the pgvector extension.
type PgVectorStore struct {
	config VectorStoreConfig
	metric Metric
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*PgVectorStore, error) {
	metric, err := ParseMetric(config.Metric)
	if err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &PgVectorStore{
		config: config,
		metric: metric,
		pool:   pool,
		logger: config.Logger,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *PgVectorStore) initialize(ctx context.Context) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"vector extension", `CREATE EXTENSION IF NOT EXISTS vector`},
		{"collections table", `
			CREATE TABLE IF NOT EXISTS collections (
				name       TEXT PRIMARY KEY,
				dimension  INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`},
		{"embeddings table", `
			CREATE TABLE IF NOT EXISTS embeddings (
				collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
				id         TEXT NOT NULL,
				document   TEXT,
				embedding  vector NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (collection, id)
			)`},
	}

	for _, s := range statements {
		if _, err := vs.pool.Exec(ctx, s.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", s.name, err)
		}
	}
	return nil
}

// Acquire checks a connection out of the pool. Release returns it.
func (vs *PgVectorStore) Acquire(ctx context.Context) (types.VectorClient, error) {
	conn, err := vs.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &pgClient{conn: conn, metric: vs.metric, logger: vs.logger}, nil
}

func (vs *PgVectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

type pgClient struct {
	conn   *pgxpool.Conn
	metric Metric
	logger *slog.Logger
}

func (c *pgClient) Release() {
	c.conn.Release()
}

func (c *pgClient) GetOrCreateCollection(ctx context.Context, name string) (types.Collection, error) {
	_, err := c.conn.Exec(ctx,
		`INSERT INTO collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return c.collection(name), nil
}

func (c *pgClient) GetCollection(ctx context.Context, name string) (types.Collection, error) {
	var found string
	err := c.conn.QueryRow(ctx, `SELECT name FROM collections WHERE name = $1`, name).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection %s: %w", name, err)
	}
	return c.collection(found), nil
}

func (c *pgClient) DeleteCollection(ctx context.Context, name string) error {
	tag, err := c.conn.Exec(ctx, `DELETE FROM collections WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return nil
}

func (c *pgClient) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := c.conn.Query(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan collections: %w", err)
	}
	return names, nil
}

func (c *pgClient) collection(name string) *pgCollection {
	return &pgCollection{conn: c.conn, name: name, metric: c.metric, logger: c.logger}
}

type pgCollection struct {
	conn   *pgxpool.Conn
	name   string
	metric Metric
	logger *slog.Logger
}

func (c *pgCollection) Name() string {
	return c.name
}

// Add upserts the batch in one transaction.
func (c *pgCollection) Add(ctx context.Context, documents []string, embeddings [][]float32, ids []string) error {
	dim, err := validateBatch(documents, embeddings, ids)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current int
	err = tx.QueryRow(ctx,
		`SELECT dimension FROM collections WHERE name = $1 FOR UPDATE`, c.name).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, c.name)
	}
	if err != nil {
		return fmt.Errorf("failed to lock collection %s: %w", c.name, err)
	}

	switch {
	case current == 0:
		if _, err := tx.Exec(ctx,
			`UPDATE collections SET dimension = $2 WHERE name = $1`, c.name, dim); err != nil {
			return fmt.Errorf("failed to set collection dimension: %w", err)
		}
	case current != dim:
		return fmt.Errorf("%w: collection %s stores %d-dimensional vectors, got %d",
			ErrInvalidBatch, c.name, current, dim)
	}

	batch := &pgx.Batch{}
	for i := range ids {
		batch.Queue(`
			INSERT INTO embeddings (collection, id, document, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (collection, id) DO UPDATE SET
				document = EXCLUDED.document,
				embedding = EXCLUDED.embedding`,
			c.name, ids[i], sanitizeText(documents[i]), pgvector.NewVector(embeddings[i]))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert embeddings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.logger.Debug("Stored embeddings",
		slog.String("collection", c.name),
		slog.Int("count", len(ids)))
	return nil
}

func (c *pgCollection) Query(ctx context.Context, queryEmbeddings [][]float32, nResults int) (*models.QueryResult, error) {
	if nResults <= 0 {
		nResults = DefaultResults
	}

	query := fmt.Sprintf(`
		SELECT id, document, embedding %s $2 AS distance
		FROM embeddings
		WHERE collection = $1
		ORDER BY distance
		LIMIT $3`, c.metric.operator())

	result := &models.QueryResult{
		IDs:       make([][]string, 0, len(queryEmbeddings)),
		Documents: make([][]string, 0, len(queryEmbeddings)),
		Distances: make([][]float32, 0, len(queryEmbeddings)),
	}

	for _, q := range queryEmbeddings {
		rows, err := c.conn.Query(ctx, query, c.name, pgvector.NewVector(q), nResults)
		if err != nil {
			return nil, fmt.Errorf("failed to query collection %s: %w", c.name, err)
		}

		ids := []string{}
		docs := []string{}
		distances := []float32{}
		for rows.Next() {
			var (
				id       string
				doc      *string
				distance float64
			)
			if err := rows.Scan(&id, &doc, &distance); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan row: %w", err)
			}
			ids = append(ids, id)
			if doc != nil {
				docs = append(docs, *doc)
			} else {
				docs = append(docs, "")
			}
			distances = append(distances, float32(distance))
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read rows: %w", err)
		}

		result.IDs = append(result.IDs, ids)
		result.Documents = append(result.Documents, docs)
		result.Distances = append(result.Distances, distances)
	}

	return result, nil
}

func (c *pgCollection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.conn.QueryRow(ctx,
		`SELECT count(*) FROM embeddings WHERE collection = $1`, c.name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count collection %s: %w", c.name, err)
	}
	return n, nil
}

// sanitizeText drops invalid UTF-8 and NUL bytes, Postgres rejects both in TEXT columns.
func sanitizeText(s string) string {
	if utf8.ValidString(s) && !strings.ContainsRune(s, 0) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		switch r {
		case 0:
			continue
		case utf8.RuneError:
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ types.VectorStore = (*PgVectorStore)(nil)
