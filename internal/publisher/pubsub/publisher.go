// Package pubsub publishes run summaries to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/publisher"
)

// Attribute keys set on every message.
const (
	AttrRunID = "run_id"
	AttrKind  = "kind"

	kindRunSummary = "run_summary"
)

// Publisher wraps a Pub/Sub topic handle.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// New connects to projectID and verifies that topicID exists. The returned
// Publisher owns the client.
func New(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*Publisher, error) {
	if projectID == "" || topicID == "" {
		return nil, errors.New("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p, err := NewWithClient(ctx, client, topicID, logger)
	if err != nil {
		if cerr := client.Close(); cerr != nil && logger != nil {
			logger.Warn("close pubsub client after topic check failed", zap.Error(cerr))
		}
		return nil, err
	}
	return p, nil
}

// NewWithClient uses an existing client, such as one dialed to an emulator.
func NewWithClient(ctx context.Context, client *pubsub.Client, topicID string, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %q does not exist", topicID)
	}
	return &Publisher{client: client, topic: topic, logger: logger}, nil
}

// Publish marshals the summary to JSON and waits for the server ack.
func (p *Publisher) Publish(ctx context.Context, summary publisher.Summary) (string, error) {
	if p == nil || p.topic == nil {
		return "", errors.New("pubsub publisher is not configured")
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttrRunID: summary.RunID,
			AttrKind:  kindRunSummary,
		},
	}
	id, err := p.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	p.logger.Debug("run summary published", zap.String("run_id", summary.RunID), zap.String("message_id", id))
	return id, nil
}

// Close flushes pending messages and closes the client.
func (p *Publisher) Close() error {
	if p == nil || p.topic == nil {
		return nil
	}
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
