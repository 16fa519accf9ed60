package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/inventory-backend/pkg/bus"
)

type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
	Stop()
}

// TopicPublisher adapts the client to bus.Publisher, caching one publisher
// handle per topic.
type TopicPublisher struct {
	client *Client
	mu     sync.Mutex
	topics map[string]topicPublisher
}

func NewTopicPublisher(client *Client) (*TopicPublisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client required")
	}
	return &TopicPublisher{client: client, topics: map[string]topicPublisher{}}, nil
}

func (p *TopicPublisher) Publish(ctx context.Context, topic string, msg bus.Message) error {
	pub, err := p.publisher(topic)
	if err != nil {
		return err
	}
	result := pub.Publish(ctx, &pubsub.Message{
		Data:       msg.Data,
		Attributes: msg.Attributes,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (p *TopicPublisher) publisher(topic string) (topicPublisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pub, ok := p.topics[topic]; ok {
		return pub, nil
	}
	pub := p.client.Publisher(topic)
	if pub == nil {
		return nil, fmt.Errorf("publisher not configured for topic %s", topic)
	}
	p.topics[topic] = pub
	return pub, nil
}

// Ping checks the client; topic existence is verified lazily on publish.
func (p *TopicPublisher) Ping(ctx context.Context) error {
	if p.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return nil
}

// Close flushes and stops every cached publisher. The client itself is owned
// by the caller.
func (p *TopicPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, pub := range p.topics {
		pub.Stop()
		delete(p.topics, topic)
	}
	return nil
}

var _ bus.Publisher = (*TopicPublisher)(nil)
