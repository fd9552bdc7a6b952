package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

type wireEnvelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBroker is the cross-process channel registry backed by Redis pub/sub.
// Topic names map directly to Redis channels; each message carries the event
// name in a small JSON envelope. Redis pub/sub keeps no backlog, which
// matches the at-most-once, no-replay contract.
type RedisBroker struct {
	client *redis.Client

	mu      sync.Mutex
	pubsubs map[string]*redis.PubSub
	closed  bool
	wg      sync.WaitGroup
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{
		client:  client,
		pubsubs: make(map[string]*redis.PubSub),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, topic, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	env, err := json.Marshal(wireEnvelope{Event: event, Payload: data})
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	if err := b.client.Publish(ctx, topic, env).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBroker) Subscribe(topic, event string, handler Handler) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("broker is closed")
	}

	ps := b.client.Subscribe(context.Background(), topic)
	subID := topic + "/" + event + "/" + fmt.Sprintf("%p", ps)
	b.pubsubs[subID] = ps
	b.mu.Unlock()

	// Wait for the subscription to be confirmed so a publish immediately
	// after Subscribe returns is not missed.
	if _, err := ps.Receive(context.Background()); err != nil {
		b.removePubSub(subID)
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range ps.Channel() {
			var env wireEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("dropping malformed event", "topic", topic, "error", err)
				continue
			}
			if env.Event != event {
				continue
			}
			handler(topic, env.Event, env.Payload)
		}
	}()

	unsubscribe := func() {
		b.removePubSub(subID)
		if err := ps.Close(); err != nil {
			slog.Warn("failed to close subscription", "topic", topic, "error", err)
		}
	}
	return unsubscribe, nil
}

func (b *RedisBroker) removePubSub(subID string) {
	b.mu.Lock()
	delete(b.pubsubs, subID)
	b.mu.Unlock()
}

func (b *RedisBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	for id, ps := range b.pubsubs {
		_ = ps.Close()
		delete(b.pubsubs, id)
	}
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
