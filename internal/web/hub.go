package web

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// clients only send pongs and close frames
	maxMessageSize = 4 * 1024
)

type messageType int

const (
	jsonMessage messageType = iota
	binaryMessage
)

type message struct {
	typ  messageType
	data []byte
}

// hub fans messages out to every connected websocket client. A client whose
// buffer is full is dropped rather than slowing the others down.
type hub struct {
	name string
	log  zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]bool

	broadcast  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	stopOnce   sync.Once
}

func newHub(name string, log zerolog.Logger) *hub {
	return &hub{
		name:       name,
		log:        log.With().Str("hub", name).Logger(),
		clients:    make(map[*client]bool),
		broadcast:  make(chan message, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

func (h *hub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// run is the hub's main loop; it returns after stop.
func (h *hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", count).Msg("Client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", count).Msg("Client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
					h.log.Warn().Msg("Dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *hub) send(msg message) {
	select {
	case h.broadcast <- msg:
	default:
		h.log.Debug().Msg("Broadcast channel full, dropping message")
	}
}

func jsonBytes(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (h *hub) broadcastJSON(v any) error {
	data, err := jsonBytes(v)
	if err != nil {
		return err
	}
	h.send(message{typ: jsonMessage, data: data})
	return nil
}

func (h *hub) broadcastBinary(data []byte) {
	h.send(message{typ: binaryMessage, data: data})
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// client is one websocket connection attached to a hub.
type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan message
}

// serve registers conn with the hub, optionally sends first, and blocks
// until the connection closes.
func (h *hub) serve(conn *websocket.Conn, first *message) {
	c := &client{hub: h, conn: conn, send: make(chan message, 16)}
	if first != nil {
		c.send <- *first
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
}

// readPump keeps the connection alive and detects disconnection
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

// writePump is the only writer on the connection
func (c *client) writePump() {
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

			wsType := websocket.TextMessage
			if msg.typ == binaryMessage {
				wsType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(wsType, msg.data); err != nil {
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
