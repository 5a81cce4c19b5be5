package embedder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JakeFAU/sitelens/internal/retry"
)

const maxResponseBytes = 16 << 20

// HTTPConfig configures the remote embedding service client.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// HTTP posts base64 images to an embedding service.
type HTTP struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTP builds an HTTP client for the embedding service.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTP{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Embed implements ingest.EmbeddingModel. Client errors other than 429 are
// marked permanent so the caller does not retry them.
func (h *HTTP) Embed(ctx context.Context, image []byte) ([]float32, error) {
	payload, err := json.Marshal(request{Image: base64.StdEncoding.EncodeToString(image)})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("encode request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("embedding service status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, retry.Permanent(fmt.Errorf("embedding service status %d: %s", resp.StatusCode, truncate(body, 200)))
	}

	vec, err := decodeResponse(body)
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
