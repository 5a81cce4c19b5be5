// Package sqlite stores embeddings in a local SQLite file and ranks matches by
// brute-force cosine similarity. It suits development and small corpora.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/sitelens/internal/ingest"
	"github.com/JakeFAU/sitelens/internal/vector"
)

const schema = `
CREATE TABLE IF NOT EXISTS site_embeddings (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL,
	screenshot_url TEXT NOT NULL,
	embedding BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_site_embeddings_url ON site_embeddings (url);
`

// Store implements ingest.VectorStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) the database at path and applies the schema.
func New(path string) (*Store, error) {
	if path == "" {
		path = "data/sitelens.db"
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// InsertVector implements ingest.VectorStore.
func (s *Store) InsertVector(ctx context.Context, url string, embedding []float32, screenshotURL string) error {
	if len(embedding) == 0 {
		return errors.New("embedding is empty")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO site_embeddings (url, screenshot_url, embedding, created_at) VALUES (?, ?, ?, ?)`,
		url, screenshotURL, vector.Encode(embedding), s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert embedding: %w", err)
	}
	return nil
}

// MatchVectors implements ingest.VectorStore. Rows whose dimension differs
// from the query are skipped.
func (s *Store) MatchVectors(ctx context.Context, query []float32, k int) ([]ingest.Match, error) {
	if len(query) == 0 {
		return nil, errors.New("query embedding is empty")
	}
	if k <= 0 {
		k = 10
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, url, screenshot_url, embedding, created_at FROM site_embeddings`)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var matches []ingest.Match
	for rows.Next() {
		var (
			m       ingest.Match
			blob    []byte
			created int64
		)
		if err := rows.Scan(&m.ID, &m.URL, &m.ScreenshotURL, &blob, &created); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		vec, err := vector.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("decode embedding %d: %w", m.ID, err)
		}
		if len(vec) != len(query) {
			continue
		}
		m.Similarity = vector.CosineSimilarity(query, vec)
		m.CreatedAt = time.UnixMilli(created).UTC()
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}
