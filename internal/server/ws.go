package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/doccapture/internal/detector"
	"github.com/ayusman/doccapture/internal/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const writeWait = time.Second

// StateSource reports the live detector state.
type StateSource interface {
	State() detector.State
}

type stateMessage struct {
	detector.State
	Timestamp int64 `json:"timestamp"`
}

// StateHandler broadcasts the detector state (candidate and stable quads,
// stability counter) to WebSocket clients whenever it changes.
type StateHandler struct {
	source   StateSource
	interval time.Duration
	clients  map[*websocket.Conn]bool
	mu       sync.RWMutex
	// writeMu serializes writes; gorilla connections allow one writer.
	writeMu sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
	log     *zap.Logger
}

// NewStateHandler creates a StateHandler and starts its broadcaster.
func NewStateHandler(source StateSource, interval time.Duration) *StateHandler {
	h := &StateHandler{
		source:   source,
		interval: interval,
		clients:  make(map[*websocket.Conn]bool),
		stopCh:   make(chan struct{}),
		log:      logger.Named("ws"),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests. The current state is sent
// right away.
func (h *StateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	if msg, err := h.encode(); err == nil {
		h.writeMu.Lock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = conn.WriteMessage(websocket.TextMessage, msg)
		h.writeMu.Unlock()
		if err != nil {
			return
		}
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Clients returns the number of connected clients.
func (h *StateHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops the broadcaster. Connected clients are left to the server.
func (h *StateHandler) Close() {
	h.once.Do(func() { close(h.stopCh) })
}

func (h *StateHandler) encode() ([]byte, error) {
	return json.Marshal(stateMessage{State: h.source.State(), Timestamp: time.Now().UnixMilli()})
}

// withoutTicks drops the fields that move on every tick.
func withoutTicks(s detector.State) detector.State {
	s.Ticks = 0
	return s
}

// broadcast sends the state to all clients when it differs from the last
// one sent. The timestamp and tick count are ignored for the comparison.
func (h *StateHandler) broadcast() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var last []byte
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
		}

		if h.Clients() == 0 {
			last = nil
			continue
		}

		state, err := json.Marshal(withoutTicks(h.source.State()))
		if err != nil || bytes.Equal(state, last) {
			continue
		}
		last = state

		msg, err := h.encode()
		if err != nil {
			continue
		}

		h.mu.RLock()
		conns := make([]*websocket.Conn, 0, len(h.clients))
		for conn := range h.clients {
			conns = append(conns, conn)
		}
		h.mu.RUnlock()

		h.writeMu.Lock()
		for _, conn := range conns {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("websocket write failed", zap.Error(err))
			}
		}
		h.writeMu.Unlock()
	}
}
