package monitor

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 5 * time.Second
	subscriberSend = 8
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.send)
		s.conn.Close()
	})
}

// Hub pushes stats reports to websocket subscribers. A subscriber that falls
// behind loses reports rather than stalling the monitor.
type Hub struct {
	logger zerolog.Logger

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

// NewHub creates an empty hub
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:      logger.With().Str("component", "stats_hub").Logger(),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the connection until the peer goes away
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade stats subscriber")
		return
	}

	sub := &subscriber{conn: conn, send: make(chan []byte, subscriberSend)}
	h.mu.Lock()
	h.subscribers[sub] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug().Str("remote_addr", r.RemoteAddr).Msg("Stats subscriber connected")

	go h.writePump(sub)

	// Subscribers never send anything meaningful; reading only detects close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(sub)
}

func (h *Hub) writePump(sub *subscriber) {
	for msg := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.unregister(sub)
			return
		}
	}
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, sub)
	h.mu.Unlock()
	sub.close()
}

// Broadcast sends v as JSON to every subscriber
func (h *Hub) Broadcast(v interface{}) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode stats report")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subscribers {
		select {
		case sub.send <- msg:
		default:
			h.logger.Debug().Msg("Stats subscriber is behind, dropping report")
		}
	}
}

// Len returns the number of connected subscribers
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
