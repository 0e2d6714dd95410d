package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anibaldeboni/zero-paper/sensormon/logging"
	"github.com/anibaldeboni/zero-paper/sensormon/measurement"
	"github.com/anibaldeboni/zero-paper/sensormon/stats"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	clientBuffer = 64
)

// Event types sent on the live stream.
const (
	EventReading  = "reading"
	EventTick     = "tick"
	EventFinished = "finished"
	EventWarning  = "warning"
	EventFault    = "fault"
)

// Event is one message of the live stream.
type Event struct {
	Type   string    `json:"type"`
	Time   time.Time `json:"time"`
	Sensor string    `json:"sensor,omitempty"`
	Data   any       `json:"data,omitempty"`
}

// Hub broadcasts measurement events to websocket clients. Slow clients
// are disconnected rather than allowed to block the broadcaster.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub with no clients.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logging.Or(logger, "live"),
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("live client connected", "remote", r.RemoteAddr)

	go h.writePump(c)
	go h.readPump(c)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) broadcast(ev Event) {
	ev.Time = time.Now()
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to encode live event", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("dropping slow live client")
			h.removeLocked(c)
		}
	}
}

// readPump discards client messages and unregisters the client when the
// connection ends.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) OnReading(name string, snap stats.Snapshot) {
	h.broadcast(Event{Type: EventReading, Sensor: name, Data: sanitize(snap)})
}

func (h *Hub) OnTick(t measurement.Tick) {
	h.broadcast(Event{Type: EventTick, Data: t})
}

func (h *Hub) OnFinished() {
	h.broadcast(Event{Type: EventFinished})
}

func (h *Hub) OnWarning(err error) {
	h.broadcast(Event{Type: EventWarning, Data: err.Error()})
}

func (h *Hub) OnFault(name string, err error) {
	h.broadcast(Event{Type: EventFault, Sensor: name, Data: err.Error()})
}

var _ measurement.Observer = (*Hub)(nil)
