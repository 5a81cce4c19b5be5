package ingest

import (
	"context"
	"time"
)

// DomainFilter classifies a URL as parked or legitimate. Implementations never
// fail; probe errors resolve to a legitimate verdict.
type DomainFilter interface {
	Check(ctx context.Context, url string) DomainVerdict
}

// Renderer captures a URL and uploads the screenshot.
type Renderer interface {
	Render(ctx context.Context, url string) RenderResult
}

// Capturer takes a screenshot without uploading it.
type Capturer interface {
	Capture(ctx context.Context, url string) ([]byte, error)
}

// EmbedStage turns a render result into an embedding result.
type EmbedStage interface {
	Embed(ctx context.Context, render RenderResult) EmbedResult
}

// PersistStage writes an embedding result to the vector store.
type PersistStage interface {
	Persist(ctx context.Context, embed EmbedResult) PersistOutcome
}

// EmbeddingModel computes a fixed-dimension descriptor for image bytes.
type EmbeddingModel interface {
	Embed(ctx context.Context, image []byte) ([]float32, error)
}

// VectorStore persists embeddings and answers nearest-neighbour queries.
type VectorStore interface {
	InsertVector(ctx context.Context, url string, embedding []float32, screenshotURL string) error
	MatchVectors(ctx context.Context, query []float32, k int) ([]Match, error)
}

// BlobStore writes screenshots and returns a public URL.
type BlobStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) string
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
