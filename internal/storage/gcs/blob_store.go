// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
)

const defaultPublicBase = "https://storage.googleapis.com"

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	// PublicBaseURL replaces https://storage.googleapis.com/<bucket> when set,
	// for buckets fronted by a CDN or custom domain.
	PublicBaseURL string
	CacheControl  string
}

// BlobStore writes screenshots to a configured GCS bucket.
type BlobStore struct {
	client       *storage.Client
	bucket       string
	publicBase   string
	cacheControl string
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		client:       client,
		bucket:       cfg.Bucket,
		publicBase:   publicBase(cfg),
		cacheControl: cfg.CacheControl,
	}, nil
}

// Upload implements ingest.BlobStore and returns the object's public URL.
func (s *BlobStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if s.cacheControl != "" {
		writer.CacheControl = s.cacheControl
	}
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return PublicURL(s.publicBase, key), nil
}

func publicBase(cfg Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	return defaultPublicBase + "/" + cfg.Bucket
}

// PublicURL joins base and an object key, escaping each key segment.
func PublicURL(base, key string) string {
	segments := strings.Split(strings.TrimLeft(key, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
