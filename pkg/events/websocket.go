package events

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketSink streams the event feed to attached renderers. Each
// connected client receives every event emitted after it attached; slow or
// dead clients are dropped, never waited on.
type WebSocketSink struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]chan Event
	closed  bool
}

// NewWebSocketSink creates a sink and subscribes it to the emitter.
func NewWebSocketSink(emitter *Emitter) *WebSocketSink {
	s := &WebSocketSink{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan Event),
	}
	emitter.On(Wildcard, s.broadcast)
	return s
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects.
func (s *WebSocketSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Event sink upgrade failed")
		return
	}

	feed := make(chan Event, 64)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.clients[conn] = feed
	s.mu.Unlock()

	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Event sink client attached")

	go s.drainClient(conn)

	for event := range feed {
		if err := conn.WriteJSON(event); err != nil {
			break
		}
	}
	s.detach(conn)
}

// drainClient consumes inbound frames so pings and close frames are
// processed, and detaches on read failure.
func (s *WebSocketSink) drainClient(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("Event sink client read error")
			}
			s.detach(conn)
			return
		}
	}
}

func (s *WebSocketSink) broadcast(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn, feed := range s.clients {
		select {
		case feed <- event:
		default:
			// Client is not keeping up. Drop it rather than stall
			// the emitting session.
			log.Warn().Str("remote", conn.RemoteAddr().String()).Msg("Dropping slow event sink client")
			delete(s.clients, conn)
			close(feed)
			_ = conn.Close()
		}
	}
}

func (s *WebSocketSink) detach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if feed, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		close(feed)
	}
	_ = conn.Close()
}

// Close disconnects every client and stops accepting new ones.
func (s *WebSocketSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for conn, feed := range s.clients {
		delete(s.clients, conn)
		close(feed)
		_ = conn.Close()
	}
}

// ClientCount returns the number of attached clients.
func (s *WebSocketSink) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
