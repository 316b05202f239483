package notify

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"handshake-backend/internal/metrics"
	"handshake-backend/internal/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10
	sendBuffer   = 16
)

// Publisher receives every notification after it has been stored
type Publisher interface {
	Publish(n *models.Notification)
}

// Hub pushes stored notifications to the websocket connections of their user
type Hub struct {
	upgrader websocket.Upgrader
	log      *logrus.Entry

	mu      sync.Mutex
	clients map[uuid.UUID]map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub accepts upgrades from the given origins; "*" allows any
func NewHub(allowedOrigins []string, logger *logrus.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log:     logger.WithField("component", "notify_hub"),
		clients: make(map[uuid.UUID]map[*client]struct{}),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Non-browser clients send no Origin
		if origin == "" || set["*"] {
			return true
		}
		return set[origin]
	}
}

// Publish never blocks. A connection whose buffer is full is dropped.
func (h *Hub) Publish(n *models.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.clients[n.UserID]
	if len(conns) == 0 {
		return
	}
	msg, err := json.Marshal(n)
	if err != nil {
		h.log.WithError(err).WithField("type", n.Type).Warn("Failed to encode notification for push")
		return
	}
	for c := range conns {
		select {
		case c.send <- msg:
		default:
			h.removeLocked(n.UserID, c)
			h.log.WithField("user_id", n.UserID).Warn("Websocket client too slow, disconnecting")
		}
	}
}

// Serve upgrades the request and streams the user's notifications until the client goes away.
// On upgrade failure the upgrader has already written the HTTP error.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(userID, c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return nil
	}

	go h.writeLoop(c)
	h.readLoop(userID, c)
	return nil
}

// Connected reports how many connections the user has open
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Close disconnects everyone and refuses new connections
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, conns := range h.clients {
		for c := range conns {
			h.removeLocked(userID, c)
		}
	}
}

func (h *Hub) add(userID uuid.UUID, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	metrics.NotificationStreams.Inc()
	return true
}

func (h *Hub) remove(userID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(userID, c)
}

// removeLocked closes the send channel exactly once; the write loop then says goodbye
func (h *Hub) removeLocked(userID uuid.UUID, c *client) {
	conns := h.clients[userID]
	if _, ok := conns[c]; !ok {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
	close(c.send)
	metrics.NotificationStreams.Dec()
}

// readLoop only watches for pongs and disconnects; clients have nothing to say
func (h *Hub) readLoop(userID uuid.UUID, c *client) {
	defer func() {
		h.remove(userID, c)
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

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
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
