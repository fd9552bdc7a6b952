package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const subscriberBuffer = 64

type envelope struct {
	topic   string
	event   string
	payload []byte
}

type subscriber struct {
	ch      chan envelope
	handler Handler
}

// MemoryBroker is the in-process channel registry. Each subscriber gets its
// own buffered channel drained by its own goroutine, so a slow handler never
// blocks Publish; events past the buffer are dropped for that subscriber.
type MemoryBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[string]map[string]*subscriber // topic -> event -> subID
	closed bool
	wg     sync.WaitGroup
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		subs: make(map[string]map[string]map[string]*subscriber),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, topic, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("broker is closed")
	}

	for _, sub := range b.subs[topic][event] {
		select {
		case sub.ch <- envelope{topic: topic, event: event, payload: data}:
		default:
			// Subscriber buffer full: drop rather than block the publisher.
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(topic, event string, handler Handler) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("broker is closed")
	}

	if _, ok := b.subs[topic]; !ok {
		b.subs[topic] = make(map[string]map[string]*subscriber)
	}
	if _, ok := b.subs[topic][event]; !ok {
		b.subs[topic][event] = make(map[string]*subscriber)
	}

	subID := uuid.NewString()
	sub := &subscriber{
		ch:      make(chan envelope, subscriberBuffer),
		handler: handler,
	}
	b.subs[topic][event][subID] = sub

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for env := range sub.ch {
			sub.handler(env.topic, env.event, env.payload)
		}
	}()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		events, ok := b.subs[topic]
		if !ok {
			return
		}
		byID, ok := events[event]
		if !ok {
			return
		}
		s, ok := byID[subID]
		if !ok {
			return
		}
		delete(byID, subID)
		close(s.ch)
		if len(byID) == 0 {
			delete(events, event)
		}
		if len(events) == 0 {
			delete(b.subs, topic)
		}
	}
	return unsubscribe, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, events := range b.subs {
		for _, byID := range events {
			for _, sub := range byID {
				close(sub.ch)
			}
		}
	}
	b.subs = make(map[string]map[string]map[string]*subscriber)
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
