// Package fanout broadcasts appended notebook events to live subscribers
// over Redis pub/sub, one channel per notebook.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"cellar/api/internal/store"
)

// Message is the wire form of one appended event.
type Message struct {
	NotebookID string          `json:"notebookId"`
	Seq        int64           `json:"seq"`
	Name       string          `json:"name"`
	Args       json.RawMessage `json:"args"`
}

type Broker struct {
	client *redis.Client
	prefix string
}

func NewBroker(redisURL string) (*Broker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Broker{client: client, prefix: "notebook:"}, nil
}

// NewBrokerWithClient creates a broker from an existing Redis client.
func NewBrokerWithClient(client *redis.Client) *Broker {
	return &Broker{client: client, prefix: "notebook:"}
}

func (b *Broker) channel(notebookID string) string {
	return b.prefix + notebookID
}

// Publish pushes a batch of stored events to the notebook's channel in
// log order.
func (b *Broker) Publish(ctx context.Context, notebookID string, records []store.EventRecord) error {
	for _, rec := range records {
		payload, err := json.Marshal(Message{
			NotebookID: rec.NotebookID,
			Seq:        rec.Seq,
			Name:       rec.Name,
			Args:       rec.Args,
		})
		if err != nil {
			return fmt.Errorf("marshal fanout message: %w", err)
		}
		if err := b.client.Publish(ctx, b.channel(notebookID), payload).Err(); err != nil {
			return fmt.Errorf("publish seq %d: %w", rec.Seq, err)
		}
	}
	return nil
}

// Subscribe streams a notebook's events until ctx is cancelled or the
// returned cancel func is called. Malformed payloads are dropped.
func (b *Broker) Subscribe(ctx context.Context, notebookID string) (<-chan Message, func(), error) {
	sub := b.client.Subscribe(ctx, b.channel(notebookID))
	// Wait for the subscription to land so callers do not miss events
	// published right after Subscribe returns.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", notebookID, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for raw := range sub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() { _ = sub.Close() }
	return out, cancel, nil
}

func (b *Broker) Close() error {
	return b.client.Close()
}

func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
