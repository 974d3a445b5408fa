// Package bus carries room-scoped telemetry and commands between masters
// and satellites.
//
// Delivery is best effort: no acknowledgement, no retry and no ordering
// across topics. A publisher never receives its own messages and a slow
// subscriber loses messages instead of stalling the room.
package bus

import (
	"context"
	"encoding/json"
	"sync"
)

// Topic names a stream within a room.
type Topic string

// Room topics.
const (
	TopicTelemetry Topic = "telemetry"
	TopicCommand   Topic = "command"
)

// Topics lists every topic a room carries.
func Topics() []Topic { return []Topic{TopicTelemetry, TopicCommand} }

// Valid reports whether t is a known topic.
func (t Topic) Valid() bool { return t == TopicTelemetry || t == TopicCommand }

// Handler receives one payload. It runs on the bus delivery goroutine and
// must not block.
type Handler func(ctx context.Context, payload []byte)

// Subscription is an active Subscribe registration.
type Subscription interface {
	Unsubscribe()
}

// Bus is one participant's connection to a room.
type Bus interface {
	Publish(ctx context.Context, topic Topic, payload []byte) error
	Subscribe(ctx context.Context, topic Topic, h Handler) (Subscription, error)
	Close() error
}

// Message is the frame remote peers exchange.
type Message struct {
	Topic   Topic           `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Handlers is a concurrency-safe topic-keyed handler table shared by Bus
// implementations.
type Handlers struct {
	mu   sync.Mutex
	next int
	subs map[Topic]map[int]Handler
}

// Add registers fn and returns a Subscription removing it.
func (r *Handlers) Add(topic Topic, fn Handler) Subscription {
	r.mu.Lock()
	if r.subs == nil {
		r.subs = make(map[Topic]map[int]Handler)
	}
	if r.subs[topic] == nil {
		r.subs[topic] = make(map[int]Handler)
	}
	r.next++
	id := r.next
	r.subs[topic][id] = fn
	r.mu.Unlock()

	var once sync.Once
	return subscriptionFunc(func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs[topic], id)
			r.mu.Unlock()
		})
	})
}

// Len is the number of handlers registered for topic.
func (r *Handlers) Len(topic Topic) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[topic])
}

// Dispatch delivers payload to every handler of topic.
func (r *Handlers) Dispatch(ctx context.Context, topic Topic, payload []byte) {
	r.mu.Lock()
	hs := make([]Handler, 0, len(r.subs[topic]))
	for _, fn := range r.subs[topic] {
		hs = append(hs, fn)
	}
	r.mu.Unlock()
	for _, fn := range hs {
		fn(ctx, payload)
	}
}

type subscriptionFunc func()

func (f subscriptionFunc) Unsubscribe() { f() }
