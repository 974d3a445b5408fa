// Package valkey runs a room bus over Valkey pub/sub so several master
// processes can share rooms.
package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/okian/chorus/internal/adapters/bus"
	"github.com/okian/chorus/pkg/logger"
)

// envelope tags a payload with its sender so a Bus can drop its own
// messages when they come back from the server.
type envelope struct {
	Sender  string          `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

// Channel is the pub/sub channel for one room topic.
func Channel(room string, topic bus.Topic) string {
	return fmt.Sprintf("chorus:%s:%s", room, topic)
}

// Bus is one process's connection to a room. It implements bus.Bus.
type Bus struct {
	client valkey.Client
	owned  bool
	room   string
	id     string
	logger logger.Logger

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
}

var _ bus.Bus = (*Bus)(nil)

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// Connect dials addr and returns a Bus owning the client.
func Connect(addr, room string, opts ...Option) (*Bus, error) {
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, fmt.Errorf("valkey connect %s: %w", addr, err)
	}
	b := New(client, room, opts...)
	b.owned = true
	return b, nil
}

// New returns a Bus on a shared client. Close does not close the client.
func New(client valkey.Client, room string, opts ...Option) *Bus {
	b := &Bus{
		client: client,
		room:   room,
		id:     uuid.NewString(),
		logger: logger.Get().Named("valkey-bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ID is the sender id stamped on published messages.
func (b *Bus) ID() string { return b.id }

// Publish implements bus.Bus.
func (b *Bus) Publish(ctx context.Context, topic bus.Topic, payload []byte) error {
	if !topic.Valid() {
		return bus.ErrUnknownTopic
	}
	if b.isClosed() {
		return bus.ErrClosed
	}
	msg, err := json.Marshal(envelope{Sender: b.id, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	cmd := b.client.B().Publish().Channel(Channel(b.room, topic)).Message(string(msg)).Build()
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe implements bus.Bus. Delivery runs on a dedicated goroutine
// until the subscription or the Bus is closed.
func (b *Bus) Subscribe(_ context.Context, topic bus.Topic, h bus.Handler) (bus.Subscription, error) {
	if !topic.Valid() {
		return nil, bus.ErrUnknownTopic
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, bus.ErrClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	b.cancels = append(b.cancels, cancel)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		cmd := b.client.B().Subscribe().Channel(Channel(b.room, topic)).Build()
		err := b.client.Receive(ctx, cmd, func(m valkey.PubSubMessage) {
			var env envelope
			if err := json.Unmarshal([]byte(m.Message), &env); err != nil {
				b.logger.Debug(ctx, "dropping malformed envelope", logger.String("channel", m.Channel))
				return
			}
			if env.Sender == b.id {
				return
			}
			h(ctx, env.Payload)
		})
		if err != nil && ctx.Err() == nil {
			b.logger.Warn(ctx, "subscription ended", logger.String("topic", string(topic)), logger.Error(err))
		}
	}()
	return unsubscribe(cancel), nil
}

type unsubscribe context.CancelFunc

func (u unsubscribe) Unsubscribe() { u() }

// Close cancels every subscription and waits for them to finish.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.mu.Unlock()

	b.wg.Wait()
	if b.owned {
		b.client.Close()
	}
	return nil
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
