package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"sigrelay/internal/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	maxFrameSize   = 1 << 15
	sendBufferSize = 256
)

// Client is one observer connection. Frames queue on send; a client
// that cannot drain its queue is dropped.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce sync.Once
}

// Hub owns all observer connections. Broadcast, SendTo and SetLive are
// expected to be called from a single goroutine so that catch-up frames
// and live frames interleave in a fixed order per client.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*Client
	live    map[string]bool

	onJoin    func(clientID string)
	onLeave   func(clientID string)
	onCommand func(clientID string, cmd Command)
}

func New() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[string]*Client),
		live:    make(map[string]bool),
	}
}

// SetHandlers installs the callbacks invoked on observer lifecycle and
// inbound commands. Must be called before the first ServeWS.
func (h *Hub) SetHandlers(onJoin, onLeave func(clientID string), onCommand func(clientID string, cmd Command)) {
	h.onJoin = onJoin
	h.onLeave = onLeave
	h.onCommand = onCommand
}

// ServeWS upgrades the request and registers the connection. The client
// receives no broadcasts until SetLive, which the join handler calls
// after replaying the current state.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("observer upgrade failed: %v", err)
		return
	}
	client := &Client{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	go client.writePump()
	go client.readPump()

	logger.Infof("observer %s connected", client.ID)
	if h.onJoin != nil {
		h.onJoin(client.ID)
	}
}

// SetLive includes the client in subsequent broadcasts.
func (h *Hub) SetLive(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[clientID]; ok {
		h.live[clientID] = true
	}
}

// Broadcast queues a fact for every live client.
func (h *Hub) Broadcast(f Fact) {
	data, err := json.Marshal(f)
	if err != nil {
		logger.Errorf("encode fact %s: %v", f.Type, err)
		return
	}
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.live))
	for id := range h.live {
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()
	for _, c := range targets {
		c.enqueue(data)
	}
}

// SendTo queues a fact for one client regardless of live status.
func (h *Hub) SendTo(clientID string, f Fact) {
	data, err := json.Marshal(f)
	if err != nil {
		logger.Errorf("encode fact %s: %v", f.Type, err)
		return
	}
	h.mu.Lock()
	c := h.clients[clientID]
	h.mu.Unlock()
	if c != nil {
		c.enqueue(data)
	}
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c.ID]
	delete(h.clients, c.ID)
	delete(h.live, c.ID)
	h.mu.Unlock()
	c.close()
	if present {
		logger.Infof("observer %s disconnected", c.ID)
		if h.onLeave != nil {
			h.onLeave(c.ID)
		}
	}
}

// enqueue queues one frame without ever blocking the caller. The send
// channel stays open for the client's lifetime; done marks a closed
// client so late frames are discarded instead of sent.
func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		logger.Warnf("observer %s cannot keep up, dropping", c.ID)
		go c.hub.drop(c)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Client) readPump() {
	defer c.hub.drop(c)
	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("observer %s read error: %v", c.ID, err)
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			c.rejectFrame("malformed frame: " + err.Error())
			continue
		}
		if !knownCommands[cmd.Type] {
			c.rejectFrame("unknown command: " + string(cmd.Type))
			continue
		}
		if c.hub.onCommand != nil {
			c.hub.onCommand(c.ID, cmd)
		}
	}
}

// rejectFrame answers a bad inbound frame with an error fact on the
// same connection. The connection stays open.
func (c *Client) rejectFrame(msg string) {
	data, err := json.Marshal(Fact{
		Type: FactError,
		Data: ErrorPayload{Scope: "protocol", Message: msg},
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				go c.hub.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				go c.hub.drop(c)
				return
			}
		}
	}
}
