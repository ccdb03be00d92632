package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 20 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Logger defines minimal logging interface required by hubs.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// IdentifyFunc resolves the connecting actor from an authenticated request.
type IdentifyFunc func(r *http.Request) (string, bool)

type baseHub struct {
	name     string
	identify IdentifyFunc
	logger   Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[string]*websocket.Conn
	locks map[string]*sync.Mutex
}

func newBaseHub(name string, identify IdentifyFunc, logger Logger) *baseHub {
	return &baseHub{
		name:     name,
		identify: identify,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*websocket.Conn),
		locks: make(map[string]*sync.Mutex),
	}
}

func (h *baseHub) serveWS(w http.ResponseWriter, r *http.Request) {
	id, ok := h.identify(r)
	if !ok || id == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("rider %s ws upgrade failed: %v", h.name, err)
		return
	}

	h.mu.Lock()
	if old, ok := h.conns[id]; ok {
		_ = old.Close()
	}
	h.conns[id] = conn
	if _, ok := h.locks[id]; !ok {
		h.locks[id] = &sync.Mutex{}
	}
	h.mu.Unlock()

	h.logger.Infof("rider %s %s connected", h.name, id)

	go h.pingLoop(id, conn)
	go h.readLoop(id, conn)
}

func (h *baseHub) pingLoop(id string, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		h.mu.RLock()
		alive := h.conns[id] == conn
		h.mu.RUnlock()
		if !alive {
			return
		}
		h.safeWrite(id, func(c *websocket.Conn) error {
			return c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
		})
	}
}

func (h *baseHub) readLoop(id string, conn *websocket.Conn) {
	defer h.closeConn(id, conn)

	conn.SetReadLimit(16 << 10)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt == websocket.TextMessage && strings.EqualFold(strings.TrimSpace(string(message)), "ping") {
			h.safeWrite(id, func(c *websocket.Conn) error {
				return c.WriteMessage(websocket.TextMessage, []byte("pong"))
			})
		}
	}
}

func (h *baseHub) closeConn(id string, conn *websocket.Conn) {
	_ = conn.Close()
	h.mu.Lock()
	if current, ok := h.conns[id]; ok && current == conn {
		delete(h.conns, id)
		delete(h.locks, id)
	}
	h.mu.Unlock()
}

func (h *baseHub) safeWrite(id string, fn func(*websocket.Conn) error) {
	h.mu.RLock()
	conn := h.conns[id]
	mu := h.locks[id]
	h.mu.RUnlock()
	if conn == nil || mu == nil {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := fn(conn); err != nil {
		h.logger.Errorf("rider %s %s write failed: %v", h.name, id, err)
		h.closeConn(id, conn)
	}
}

func (h *baseHub) push(id string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Errorf("rider %s marshal failed: %v", h.name, err)
		return
	}
	h.safeWrite(id, func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.TextMessage, data)
	})
}

func (h *baseHub) broadcast(payload interface{}, keep func(id string) bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Errorf("rider %s marshal failed: %v", h.name, err)
		return
	}
	for _, id := range h.connected() {
		if keep != nil && !keep(id) {
			continue
		}
		h.safeWrite(id, func(conn *websocket.Conn) error {
			return conn.WriteMessage(websocket.TextMessage, data)
		})
	}
}

func (h *baseHub) connected() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	return ids
}

// RiderHub manages websocket connections for riders.
type RiderHub struct {
	*baseHub
}

// NewRiderHub constructs rider hub.
func NewRiderHub(identify IdentifyFunc, logger Logger) *RiderHub {
	return &RiderHub{newBaseHub("rider", identify, logger)}
}

// ServeWS handles rider websocket requests.
func (h *RiderHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.baseHub.serveWS(w, r)
}

// Push sends a payload to a specific rider connection.
func (h *RiderHub) Push(riderID string, payload interface{}) {
	h.baseHub.push(riderID, payload)
}

// BroadcastIf sends payload to every connected rider accepted by keep.
func (h *RiderHub) BroadcastIf(payload interface{}, keep func(riderID string) bool) {
	h.baseHub.broadcast(payload, keep)
}

// Connected lists riders with an open connection.
func (h *RiderHub) Connected() []string {
	return h.baseHub.connected()
}

// AdminHub manages websocket connections for administrators.
type AdminHub struct {
	*baseHub
}

// NewAdminHub constructs admin hub.
func NewAdminHub(identify IdentifyFunc, logger Logger) *AdminHub {
	return &AdminHub{newBaseHub("admin", identify, logger)}
}

// ServeWS handles admin websocket requests.
func (h *AdminHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.baseHub.serveWS(w, r)
}

// Broadcast sends payload to all connected administrators.
func (h *AdminHub) Broadcast(payload interface{}) {
	h.baseHub.broadcast(payload, nil)
}

// Connected lists administrators with an open connection.
func (h *AdminHub) Connected() []string {
	return h.baseHub.connected()
}
