// Package embedder provides embedding-model clients: a remote HTTP service and
// a local command that reads a base64 image on stdin.
//
// Both speak the same JSON response shape:
//
//	{"success": true, "embedding": [...], "dimensions": 512}
//	{"success": false, "error": "..."}
package embedder

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyEmbedding is returned when the model reports success without a vector.
var ErrEmptyEmbedding = errors.New("model returned an empty embedding")

type request struct {
	Image string `json:"image"`
}

type response struct {
	Success    bool      `json:"success"`
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
	Error      string    `json:"error"`
}

func decodeResponse(body []byte) ([]float32, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "unknown model error"
		}
		return nil, fmt.Errorf("model error: %s", msg)
	}
	if len(resp.Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if resp.Dimensions > 0 && resp.Dimensions != len(resp.Embedding) {
		return nil, fmt.Errorf("model reported %d dimensions but returned %d values", resp.Dimensions, len(resp.Embedding))
	}
	return resp.Embedding, nil
}
