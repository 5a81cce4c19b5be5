// Package memory contains an in-memory summary publisher for tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitelens/internal/publisher"
)

// Publisher stores published summaries for inspection.
type Publisher struct {
	mu        sync.RWMutex
	summaries []publisher.Summary
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the summary and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, summary publisher.Summary) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, summary)
	return fmt.Sprintf("memory-%d", len(p.summaries)), nil
}

// Summaries returns a copy of the recorded summaries.
func (p *Publisher) Summaries() []publisher.Summary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]publisher.Summary, len(p.summaries))
	copy(out, p.summaries)
	return out
}
