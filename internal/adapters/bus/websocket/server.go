// Package websocket carries a room bus over gorilla/websocket: a server
// side that attaches remote peers to a bus.Hub room and a client Bus for
// satellites.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/chorus/internal/adapters/bus"
	"github.com/okian/chorus/pkg/logger"
	"github.com/okian/chorus/pkg/metrics"
)

// Connection timing.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

// Server upgrades HTTP requests into Hub peers.
type Server struct {
	hub      *bus.Hub
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(l logger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCheckOrigin overrides the upgrade origin check.
func WithCheckOrigin(fn func(*http.Request) bool) ServerOption {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

// NewServer returns a Server attaching peers to hub. Any origin is
// accepted by default since satellites are browsers on arbitrary hosts.
func NewServer(hub *bus.Hub, opts ...ServerOption) *Server {
	s := &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Get().Named("ws"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve upgrades the request and relays frames between the connection and
// room until either side goes away.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, room string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), "websocket upgrade failed", logger.String("room", room), logger.Error(err))
		return
	}
	peer := s.hub.Join(room)
	defer peer.Close()

	send := make(chan []byte, sendBuffer)
	for _, topic := range bus.Topics() {
		topic := topic
		if _, err := peer.Subscribe(r.Context(), topic, func(_ context.Context, payload []byte) {
			frame, err := json.Marshal(bus.Message{Topic: topic, Payload: payload})
			if err != nil {
				return
			}
			select {
			case send <- frame:
			default:
				metrics.RecordBusDropped(string(topic))
			}
		}); err != nil {
			_ = conn.Close()
			return
		}
	}

	s.logger.Debug(r.Context(), "peer attached", logger.String("room", room), logger.String("peer", peer.ID()))
	go writeLoop(conn, send, peer.Done())
	s.readLoop(conn, peer)
}

func (s *Server) readLoop(conn *websocket.Conn, peer *bus.Peer) {
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := context.Background()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn(ctx, "peer read failed", logger.String("peer", peer.ID()), logger.Error(err))
			}
			return
		}
		var m bus.Message
		if err := json.Unmarshal(data, &m); err != nil || !m.Topic.Valid() {
			s.logger.Debug(ctx, "dropping malformed frame", logger.String("peer", peer.ID()))
			continue
		}
		if err := peer.Publish(ctx, m.Topic, m.Payload); err != nil {
			return
		}
	}
}

func writeLoop(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case frame := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
