package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/PaathGuide/internal/logging"
	"github.com/FocuswithJustin/PaathGuide/internal/server"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 54 * time.Second
	wsMaxMessageSize = 4096
)

// ProgressMessage represents a progress update sent via WebSocket.
type ProgressMessage struct {
	Type      string                 `json:"type"`      // "progress", "complete", "error", "search_results"
	Operation string                 `json:"operation"` // "load", "clear", "search"
	Stage     string                 `json:"stage,omitempty"`
	Progress  int                    `json:"progress"` // 0-100
	Message   string                 `json:"message,omitempty"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// searchRequest is an inbound live-search message from a client. It lets
// a reciting client stream transcript fragments and receive matches
// without issuing HTTP requests per fragment.
type searchRequest struct {
	Type  string `json:"type"`
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// Client represents a WebSocket client connection.
//
// The send channel has two writers: the hub's broadcast loop and the
// client's own read goroutine answering live-search requests. The hub is
// the only closer, through closeSend; the mutex orders close against the
// in-flight sends so neither writer can hit a closed channel.
type Client struct {
	hub  *Hub
	srv  *Server
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// closeSend closes the send channel exactly once.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// trySend queues a message unless the client is closed or its buffer is
// full. Reports whether the message was queued.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Hub maintains active WebSocket connections and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
}

// NewHub creates a WebSocket hub. Connections are accepted only from the
// given origins; an empty list allows all origins.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				for _, allowed := range allowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				logging.SecurityEvent("websocket_origin_rejected", "api", "origin", origin)
				return false
			},
		},
	}
}

// Run starts the hub's main loop to handle client registration and broadcasting.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logging.WebSocketEvent("client_connected", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
			}
			h.mu.Unlock()
			logging.WebSocketEvent("client_disconnected", len(h.clients))

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.trySend(message) {
					// Client channel full, disconnect
					client.closeSend()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a progress message to all connected clients.
func (h *Hub) Broadcast(msg ProgressMessage) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("failed to marshal progress message", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		logging.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastProgress sends a progress update to all connected clients.
func (h *Hub) BroadcastProgress(operation, stage, message string, progress int) {
	h.Broadcast(ProgressMessage{
		Type:      "progress",
		Operation: operation,
		Stage:     stage,
		Progress:  progress,
		Message:   message,
	})
}

// BroadcastComplete sends a completion message to all connected clients.
func (h *Hub) BroadcastComplete(operation, message string, data map[string]interface{}) {
	h.Broadcast(ProgressMessage{
		Type:      "complete",
		Operation: operation,
		Progress:  100,
		Message:   message,
		Data:      data,
	})
}

// BroadcastError sends an error message to all connected clients.
func (h *Hub) BroadcastError(operation, message string) {
	h.Broadcast(ProgressMessage{
		Type:      "error",
		Operation: operation,
		Message:   message,
	})
}

// readPump reads messages from the WebSocket connection. Inbound
// "search" messages run a fuzzy query and answer only this client.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error("websocket unexpected close", "error", err)
			}
			break
		}

		var req searchRequest
		if err := json.Unmarshal(raw, &req); err != nil || req.Type != "search" {
			continue
		}
		c.liveSearch(req)
	}
}

// liveSearch answers one streamed transcript fragment.
func (c *Client) liveSearch(req searchRequest) {
	limit := c.srv.clampLimit(req.Limit)
	query := server.LimitStringLength(req.Query, c.srv.cfg.MaxQueryBytes)

	start := time.Now()
	results, err := c.srv.corpus.Search(query, limit)
	if err != nil {
		c.reply(ProgressMessage{
			Type:      "error",
			Operation: "search",
			Message:   err.Error(),
		})
		return
	}
	logging.SearchEvent("live", query, len(results), time.Since(start))

	c.reply(ProgressMessage{
		Type:      "search_results",
		Operation: "search",
		Progress:  100,
		Data: map[string]interface{}{
			"query":   query,
			"results": results,
			"total":   len(results),
		},
	})
}

// reply sends a message to this client only.
func (c *Client) reply(msg ProgressMessage) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error("failed to marshal websocket reply", "error", err)
		return
	}
	c.trySend(data)
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Flush any additional queued messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket upgrades HTTP connections to WebSocket and registers clients.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		srv:  s,
		conn: conn,
		send: make(chan []byte, 256),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}
