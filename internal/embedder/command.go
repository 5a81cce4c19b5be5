package embedder

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Command runs a local program per image. The program reads the base64 image
// on stdin and writes the JSON response on stdout.
type Command struct {
	path string
	args []string
}

// NewCommand builds a Command embedder. path must be resolvable via PATH or
// be an absolute path.
func NewCommand(path string, args ...string) (*Command, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("embedding command is required")
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve embedding command: %w", err)
	}
	return &Command{path: resolved, args: args}, nil
}

// Embed implements ingest.EmbeddingModel.
func (c *Command) Embed(ctx context.Context, image []byte) ([]float32, error) {
	cmd := exec.CommandContext(ctx, c.path, c.args...)
	cmd.Stdin = strings.NewReader(base64.StdEncoding.EncodeToString(image))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	// A non-zero exit is a failure even when stdout holds a vector.
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return nil, fmt.Errorf("embedding command failed: %w: %s", err, truncate([]byte(msg), 200))
	}
	if stdout.Len() == 0 {
		return nil, ErrEmptyEmbedding
	}
	return decodeResponse(stdout.Bytes())
}
