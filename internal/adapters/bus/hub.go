package bus

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/chorus/pkg/logger"
	"github.com/okian/chorus/pkg/metrics"
)

// DefaultInboxSize bounds each peer's undelivered messages.
const DefaultInboxSize = 256

// Hub fans messages out to every other peer of the same room within this
// process. It is also the server side for remote WebSocket peers.
type Hub struct {
	mu        sync.RWMutex
	rooms     map[string]map[*Peer]struct{}
	inboxSize int
	logger    logger.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithInboxSize sets the per-peer buffer.
func WithInboxSize(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.inboxSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHub returns an empty Hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		rooms:     make(map[string]map[*Peer]struct{}),
		inboxSize: DefaultInboxSize,
		logger:    logger.Get().Named("bus"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join adds a new peer to room. The peer delivers on its own goroutine
// until Close.
func (h *Hub) Join(room string) *Peer {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Peer{
		id:     uuid.NewString(),
		room:   room,
		hub:    h,
		inbox:  make(chan Message, h.inboxSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Peer]struct{})
	}
	h.rooms[room][p] = struct{}{}
	h.mu.Unlock()

	go p.loop()
	return p
}

// Peers is the number of peers in room.
func (h *Hub) Peers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms lists rooms with at least one peer.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	out := make([]string, 0, len(h.rooms))
	for r := range h.rooms {
		out = append(out, r)
	}
	h.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (h *Hub) broadcast(from *Peer, m Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for p := range h.rooms[from.room] {
		if p == from {
			continue
		}
		select {
		case p.inbox <- m:
		default:
			metrics.RecordBusDropped(string(m.Topic))
		}
	}
}

func (h *Hub) leave(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := h.rooms[p.room]
	delete(peers, p)
	if len(peers) == 0 {
		delete(h.rooms, p.room)
	}
}

// Peer is one participant in a Hub room. It implements Bus.
type Peer struct {
	id       string
	room     string
	hub      *Hub
	inbox    chan Message
	done     chan struct{}
	once     sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	handlers Handlers
}

var _ Bus = (*Peer)(nil)

// ID identifies the peer.
func (p *Peer) ID() string { return p.id }

// Room is the room the peer joined.
func (p *Peer) Room() string { return p.room }

// Done closes when the peer is closed.
func (p *Peer) Done() <-chan struct{} { return p.done }

// Publish implements Bus.
func (p *Peer) Publish(ctx context.Context, topic Topic, payload []byte) error {
	if !topic.Valid() {
		return ErrUnknownTopic
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	p.hub.broadcast(p, Message{Topic: topic, Payload: slices.Clone(payload)})
	return nil
}

// Subscribe implements Bus.
func (p *Peer) Subscribe(_ context.Context, topic Topic, h Handler) (Subscription, error) {
	if !topic.Valid() {
		return nil, ErrUnknownTopic
	}
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}
	return p.handlers.Add(topic, h), nil
}

// Close leaves the room. It is safe to call more than once.
func (p *Peer) Close() error {
	p.once.Do(func() {
		p.hub.leave(p)
		p.cancel()
		close(p.done)
	})
	return nil
}

func (p *Peer) loop() {
	for {
		select {
		case <-p.done:
			return
		case m := <-p.inbox:
			p.handlers.Dispatch(p.ctx, m.Topic, m.Payload)
		}
	}
}
