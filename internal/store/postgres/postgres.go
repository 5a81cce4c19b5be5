// Package postgres stores screenshot embeddings in Postgres using pgvector.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/JakeFAU/sitelens/internal/ingest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool and table.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	AutoMigrate     bool
	Dimension       int
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// Store implements ingest.VectorStore.
type Store struct {
	pool  pool
	table string
}

// New connects to Postgres, registers the vector type on every connection and
// optionally creates the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	if cfg.AutoMigrate {
		// The extension must exist before AfterConnect can register the type.
		if err := createExtension(ctx, poolCfg.ConnConfig); err != nil {
			return nil, err
		}
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: p, table: table}
	if cfg.AutoMigrate {
		if err := s.EnsureSchema(ctx, cfg.Dimension); err != nil {
			p.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "site_embeddings"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

func createExtension(ctx context.Context, cfg *pgx.ConnConfig) error {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer func() {
		_ = conn.Close(ctx)
	}()
	if _, err := conn.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	return nil
}

// EnsureSchema creates the embeddings table and its HNSW cosine index.
func (s *Store) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("embedding dimension must be positive")
	}
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL,
	screenshot_url TEXT NOT NULL,
	embedding vector(%d) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`, s.table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// InsertVector implements ingest.VectorStore.
func (s *Store) InsertVector(ctx context.Context, url string, embedding []float32, screenshotURL string) error {
	if len(embedding) == 0 {
		return errors.New("embedding is empty")
	}
	query := fmt.Sprintf(`INSERT INTO %s (url, screenshot_url, embedding) VALUES ($1, $2, $3)`, s.table)
	if _, err := s.pool.Exec(ctx, query, url, screenshotURL, pgvector.NewVector(embedding)); err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// MatchVectors implements ingest.VectorStore. Similarity is 1 minus cosine
// distance, so 1 means identical direction.
func (s *Store) MatchVectors(ctx context.Context, query []float32, k int) ([]ingest.Match, error) {
	if len(query) == 0 {
		return nil, errors.New("query embedding is empty")
	}
	if k <= 0 {
		k = 10
	}
	sql := fmt.Sprintf(`SELECT id, url, screenshot_url, 1 - (embedding <=> $1) AS similarity, created_at
FROM %s
ORDER BY embedding <=> $1
LIMIT $2`, s.table)

	rows, err := s.pool.Query(ctx, sql, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("match embeddings: %w", err)
	}
	defer rows.Close()

	matches := make([]ingest.Match, 0, k)
	for rows.Next() {
		var m ingest.Match
		if err := rows.Scan(&m.ID, &m.URL, &m.ScreenshotURL, &m.Similarity, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return matches, nil
}
