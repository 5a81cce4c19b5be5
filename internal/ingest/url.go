package ingest

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"
)

// NormalizeURL turns user input into an absolute http(s) URL. A missing scheme
// defaults to https. Scheme and host are lowercased and fragments dropped.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrValidation)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: parse url: %w", ErrValidation, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrValidation, u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrValidation, raw)
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	return u.String(), nil
}

// ParseTargets resolves CLI arguments into normalized URLs. A single argument
// naming an existing regular file is read as a newline-delimited URL list;
// otherwise every argument is treated as a URL. Invalid entries are logged and
// dropped.
func ParseTargets(args []string, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(args) == 1 && isRegularFile(args[0]) {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, fmt.Errorf("open url file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil {
				logger.Warn("close url file failed", zap.Error(cerr))
			}
		}()
		return ReadTargets(f, logger)
	}
	return normalizeLines(args, logger), nil
}

// ReadTargets reads one URL per line. Blank lines and lines starting with '#'
// are ignored.
func ReadTargets(r io.Reader, logger *zap.Logger) ([]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return normalizeLines(lines, logger), nil
}

func normalizeLines(lines []string, logger *zap.Logger) []string {
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		normalized, err := NormalizeURL(line)
		if err != nil {
			logger.Warn("skipping invalid url",
				zap.Int("line", i+1),
				zap.String("input", line),
				zap.Error(err),
			)
			continue
		}
		out = append(out, normalized)
	}
	return out
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Hostname returns the lowercased host of rawURL, or "unknown".
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
