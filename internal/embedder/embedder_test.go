package embedder

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitelens/internal/retry"
)

func TestHTTPEmbedSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req request
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		raw, err := base64.StdEncoding.DecodeString(req.Image)
		assert.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(raw))
		_ = json.NewEncoder(w).Encode(response{Success: true, Embedding: []float32{0.1, 0.2, 0.3}, Dimensions: 3})
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTP(HTTPConfig{Endpoint: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	vec, err := client.Embed(context.Background(), []byte("jpeg-bytes"))
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestHTTPEmbedStatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		wantPermanent bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests},
		{name: "server error", status: http.StatusBadGateway},
		{name: "bad request", status: http.StatusBadRequest, wantPermanent: true},
		{name: "unauthorized", status: http.StatusUnauthorized, wantPermanent: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tc.status)
			}))
			t.Cleanup(srv.Close)

			client, err := NewHTTP(HTTPConfig{Endpoint: srv.URL})
			require.NoError(t, err)
			_, err = client.Embed(context.Background(), []byte("x"))
			require.Error(t, err)
			require.Equal(t, tc.wantPermanent, retry.IsPermanent(err))
		})
	}
}

func TestHTTPEmbedModelFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_ = json.NewEncoder(w).Encode(response{Success: false, Error: "CUDA out of memory"})
	}))
	t.Cleanup(srv.Close)

	client, err := NewHTTP(HTTPConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = client.Embed(context.Background(), []byte("x"))
	require.ErrorContains(t, err, "CUDA out of memory")
	require.False(t, retry.IsPermanent(err))
	require.Equal(t, int32(1), calls.Load())
}

func TestNewHTTPRequiresEndpoint(t *testing.T) {
	t.Parallel()

	_, err := NewHTTP(HTTPConfig{})
	require.Error(t, err)
}

func TestDecodeResponse(t *testing.T) {
	t.Parallel()

	vec, err := decodeResponse([]byte(`{"success":true,"embedding":[1,2],"dimensions":2}`))
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2}, vec)

	_, err = decodeResponse([]byte(`{"success":true,"embedding":[]}`))
	require.ErrorIs(t, err, ErrEmptyEmbedding)

	_, err = decodeResponse([]byte(`{"success":true,"embedding":[1],"dimensions":4}`))
	require.ErrorContains(t, err, "dimensions")

	_, err = decodeResponse([]byte(`not json`))
	require.Error(t, err)
}

func TestCommandEmbed(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell script embedder")
	}

	script := filepath.Join(t.TempDir(), "embed.sh")
	body := "#!/bin/sh\ncat > /dev/null\necho '{\"success\": true, \"embedding\": [0.5, -0.5], \"dimensions\": 2}'\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o700))

	cmd, err := NewCommand(script)
	require.NoError(t, err)
	vec, err := cmd.Embed(context.Background(), []byte("img"))
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, -0.5}, vec)
}

func TestCommandEmbedFailure(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell script embedder")
	}

	script := filepath.Join(t.TempDir(), "embed.sh")
	body := "#!/bin/sh\ncat > /dev/null\necho '{\"success\": false, \"error\": \"bad image\"}'\nexit 1\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o700))

	cmd, err := NewCommand(script)
	require.NoError(t, err)
	_, err = cmd.Embed(context.Background(), []byte("img"))
	require.ErrorContains(t, err, "bad image")
}

func TestCommandEmbedNonZeroExitWithVector(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell script embedder")
	}

	script := filepath.Join(t.TempDir(), "embed.sh")
	body := "#!/bin/sh\ncat > /dev/null\necho '{\"success\": true, \"embedding\": [0.5, -0.5], \"dimensions\": 2}'\necho 'model crashed after writing' >&2\nexit 3\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o700))

	cmd, err := NewCommand(script)
	require.NoError(t, err)
	vec, err := cmd.Embed(context.Background(), []byte("img"))
	require.Error(t, err)
	require.Nil(t, vec)
	require.ErrorContains(t, err, "exit status 3")
	require.ErrorContains(t, err, "model crashed")
}

func TestCommandEmbedEmptyOutput(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("shell script embedder")
	}

	script := filepath.Join(t.TempDir(), "embed.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\ncat > /dev/null\n"), 0o700))

	cmd, err := NewCommand(script)
	require.NoError(t, err)
	_, err = cmd.Embed(context.Background(), []byte("img"))
	require.ErrorIs(t, err, ErrEmptyEmbedding)
}

func TestNewCommandMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := NewCommand("definitely-not-a-real-embedder-binary")
	require.Error(t, err)
	_, err = NewCommand(" ")
	require.Error(t, err)
}
