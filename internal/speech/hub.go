package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Event is what the hub pushes to its websocket clients.
type Event struct {
	Type string    `json:"type"`
	ID   string    `json:"id"`
	Text string    `json:"text,omitempty"`
	At   time.Time `json:"at"`
}

// Event types.
const (
	EventStart  = "utterance.start"
	EventEnd    = "utterance.end"
	EventCancel = "utterance.cancel"
)

// Input is a line typed by a websocket client.
type Input struct {
	User string `json:"user"`
	Text string `json:"text"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub is a Sink decorator that mirrors every utterance to websocket
// clients, so an avatar or subtitle overlay can follow along. Clients may
// also send Input frames, which are handed to the input callback.
type Hub struct {
	inner   Sink
	log     zerolog.Logger
	onInput func(Input)

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub wraps inner. onInput may be nil.
func NewHub(inner Sink, onInput func(Input), log zerolog.Logger) *Hub {
	return &Hub{
		inner:   inner,
		onInput: onInput,
		log:     log.With().Str("component", "hub").Logger(),
		clients: make(map[string]*client),
	}
}

// Speak implements Sink.
func (h *Hub) Speak(ctx context.Context, id, text string) error {
	h.broadcast(Event{Type: EventStart, ID: id, Text: text, At: time.Now()})
	err := h.inner.Speak(ctx, id, text)
	if err != nil {
		h.broadcast(Event{Type: EventCancel, ID: id, At: time.Now()})
		return err
	}
	h.broadcast(Event{Type: EventEnd, ID: id, At: time.Now()})
	return nil
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("client", c.id).Msg("client too slow, dropping event")
		}
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade")
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, 64)}

	h.mu.Lock()
	h.clients[c.id] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info().Str("client", c.id).Int("total", n).Msg("client connected")

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(8192)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn().Err(err).Str("client", c.id).Msg("read")
			}
			return
		}
		var in Input
		if err := json.Unmarshal(msg, &in); err != nil || in.Text == "" {
			continue
		}
		if in.User == "" {
			in.User = c.id
		}
		if h.onInput != nil {
			h.onInput(in)
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
