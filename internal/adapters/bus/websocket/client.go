package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/chorus/internal/adapters/bus"
	"github.com/okian/chorus/pkg/logger"
)

// Client is a remote room connection. It implements bus.Bus.
type Client struct {
	conn     *websocket.Conn
	wmu      sync.Mutex
	handlers bus.Handlers
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
	logger   logger.Logger
}

var _ bus.Bus = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger.
func WithClientLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// Dial connects to a room endpoint such as ws://host/rooms/{room}/ws.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:   conn,
		ctx:    cctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: logger.Get().Named("ws-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	conn.SetReadLimit(maxMessageSize)
	go c.readLoop()
	return c, nil
}

// Publish implements bus.Bus.
func (c *Client) Publish(ctx context.Context, topic bus.Topic, payload []byte) error {
	if !topic.Valid() {
		return bus.ErrUnknownTopic
	}
	select {
	case <-c.done:
		return bus.ErrClosed
	default:
	}
	frame, err := json.Marshal(bus.Message{Topic: topic, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Subscribe implements bus.Bus.
func (c *Client) Subscribe(_ context.Context, topic bus.Topic, h bus.Handler) (bus.Subscription, error) {
	if !topic.Valid() {
		return nil, bus.ErrUnknownTopic
	}
	select {
	case <-c.done:
		return nil, bus.ErrClosed
	default:
	}
	return c.handlers.Add(topic, h), nil
}

// Done closes when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close ends the connection.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		c.wmu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.wmu.Unlock()
		err = c.conn.Close()
	})
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Warn(c.ctx, "room connection lost", logger.Error(err))
			}
			c.cancel()
			return
		}
		var m bus.Message
		if err := json.Unmarshal(data, &m); err != nil || !m.Topic.Valid() {
			continue
		}
		c.handlers.Dispatch(c.ctx, m.Topic, m.Payload)
	}
}
