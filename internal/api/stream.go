package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nft_market/internal/engine"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	streamPingInterval = 30 * time.Second
	streamReadTimeout  = 60 * time.Second
	streamWriteTimeout = 10 * time.Second
	streamBufferSize   = 256
)

// SubscriberGauge tracks connected stream clients.
type SubscriberGauge interface {
	IncrementSubscribers()
	DecrementSubscribers()
}

type subscriber struct {
	id      string
	conn    *websocket.Conn
	send    chan []byte
	writeMu sync.Mutex
	once    sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.send)
	})
}

func (s *subscriber) write(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return s.conn.WriteMessage(messageType, data)
}

// Hub fans committed receipts out to websocket subscribers.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]*subscriber
	gauge    SubscriberGauge
	upgrader websocket.Upgrader
}

// NewHub creates a new Hub. gauge may be nil.
func NewHub(gauge SubscriberGauge) *Hub {
	return &Hub{
		subs:  make(map[string]*subscriber),
		gauge: gauge,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast queues r for every subscriber. It never blocks: a subscriber
// whose buffer is full is disconnected.
func (h *Hub) Broadcast(r *engine.Receipt) {
	data, err := json.Marshal(r)
	if err != nil {
		slog.Error("Failed to marshal receipt", slog.Uint64("seq", r.Seq), slog.Any("error", err))
		return
	}

	h.mu.RLock()
	var slow []*subscriber
	for _, s := range h.subs {
		select {
		case s.send <- data:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		slog.Warn("Stream subscriber too slow, dropping", slog.String("id", s.id))
		h.remove(s)
	}
}

// ServeWS upgrades the request and streams receipts until the client leaves.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", slog.Any("error", err))
		return
	}

	s := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, streamBufferSize),
	}
	h.mu.Lock()
	h.subs[s.id] = s
	h.mu.Unlock()
	if h.gauge != nil {
		h.gauge.IncrementSubscribers()
	}
	slog.Info("Stream subscriber connected", slog.String("id", s.id), slog.String("remote", r.RemoteAddr))

	go h.writeLoop(s)
	h.readLoop(s)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, s := range subs {
		h.remove(s)
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	_, ok := h.subs[s.id]
	delete(h.subs, s.id)
	h.mu.Unlock()
	if !ok {
		return
	}

	s.close()
	if h.gauge != nil {
		h.gauge.DecrementSubscribers()
	}
	slog.Info("Stream subscriber disconnected", slog.String("id", s.id))
}

// readLoop only services control frames; clients do not send data.
func (h *Hub) readLoop(s *subscriber) {
	defer h.remove(s)

	s.conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(streamReadTimeout))
		return nil
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	ticker := time.NewTicker(streamPingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			if !ok {
				s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.write(websocket.TextMessage, data); err != nil {
				h.remove(s)
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				h.remove(s)
				return
			}
		}
	}
}
