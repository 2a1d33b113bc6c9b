package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"driverkit/pkg/property"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Event is one broadcast as sent to stream clients.
type Event struct {
	Type      string             `json:"type"`
	Device    string             `json:"device"`
	Name      string             `json:"name,omitempty"`
	Message   string             `json:"message,omitempty"`
	Snapshot  *property.Snapshot `json:"snapshot,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

const (
	EventDefine  = "define"
	EventUpdate  = "update"
	EventDelete  = "delete"
	EventMessage = "message"
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub streams broadcasts to websocket clients. It implements
// property.Broadcaster. Slow clients lose events rather than block the
// driver.
type Hub struct {
	upgrader websocket.Upgrader
	logger   log.FieldLogger

	// initial returns the snapshots sent to a client when it connects.
	initial func() []property.Snapshot

	mu      sync.Mutex
	clients map[string]*client
}

func NewHub(logger log.FieldLogger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger.WithField("component", "stream"),
		clients: make(map[string]*client),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Define(s property.Snapshot) {
	h.broadcast(Event{Type: EventDefine, Device: s.Device, Name: s.Name, Snapshot: &s, Timestamp: s.Timestamp})
}

func (h *Hub) Update(s property.Snapshot) {
	h.broadcast(Event{Type: EventUpdate, Device: s.Device, Name: s.Name, Snapshot: &s, Timestamp: s.Timestamp})
}

func (h *Hub) Delete(device, name string) {
	h.broadcast(Event{Type: EventDelete, Device: device, Name: name, Timestamp: time.Now()})
}

func (h *Hub) Message(device, msg string) {
	h.broadcast(Event{Type: EventMessage, Device: device, Message: msg, Timestamp: time.Now()})
}

func (h *Hub) broadcast(e Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Errorf("Failed to marshal %s event: %v", e.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warnf("Client %s send buffer full, dropping %s event", c.id, e.Type)
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams events to it
// until either side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}

	// Queue the current state before registering so that it precedes any
	// live event.
	if h.initial != nil {
		for _, s := range h.initial() {
			data, err := json.Marshal(Event{Type: EventDefine, Device: s.Device, Name: s.Name, Snapshot: &s, Timestamp: s.Timestamp})
			if err != nil {
				continue
			}
			select {
			case c.send <- data:
			default:
			}
		}
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Debugf("Client %s connected from %s", c.id, r.RemoteAddr)

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
		h.logger.Debugf("Client %s disconnected", c.id)
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warnf("Client %s read error: %v", c.id, err)
			}
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
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Warnf("Client %s write error: %v", c.id, err)
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

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}
