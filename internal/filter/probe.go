package filter

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// Prober fetches a page and extracts classification signals.
type Prober interface {
	Probe(ctx context.Context, url string) (Signals, error)
}

// CollyProber performs a plain HTTP GET through a colly collector.
type CollyProber struct {
	base *colly.Collector
}

// NewCollyProber builds a prober with a pooled transport shared across probes.
// Clones share the base collector's HTTP backend, so everything stored on the
// backend is configured here and never per probe.
func NewCollyProber(userAgent string, timeout time.Duration, respectRobots bool) *CollyProber {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(2*1024*1024),
	)
	c.WithTransport(newHTTPTransport())
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.SetRequestTimeout(timeout)
	if userAgent != "" {
		c.UserAgent = userAgent
	}
	c.IgnoreRobotsTxt = !respectRobots
	return &CollyProber{base: c}
}

// Probe implements Prober. It is safe for concurrent use.
func (p *CollyProber) Probe(ctx context.Context, url string) (Signals, error) {
	collector := p.base.Clone()

	var (
		body     []byte
		finalURL string
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
		finalURL = r.Request.URL.String()
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return Signals{}, fmt.Errorf("probe canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return Signals{}, fmt.Errorf("probe visit failed: %w", err)
		}
		if fetchErr != nil {
			return Signals{}, fmt.Errorf("probe response failed: %w", fetchErr)
		}
	}

	signals, err := ExtractSignals(body)
	if err != nil {
		return Signals{}, err
	}
	signals.FinalURL = finalURL
	return signals, nil
}

// ExtractSignals parses markup into title and visible text. Script, style and
// noscript content is not visible and is removed before text extraction.
func ExtractSignals(body []byte) (Signals, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Signals{}, fmt.Errorf("parse html: %w", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	return Signals{
		Title: title,
		Text:  strings.Join(strings.Fields(root.Text()), " "),
		HTML:  string(body),
	}, nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
