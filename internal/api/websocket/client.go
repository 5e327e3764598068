package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/KevinKickass/OpenEnergyCore/internal/auth"
	"github.com/KevinKickass/OpenEnergyCore/internal/types"
	"github.com/KevinKickass/OpenEnergyCore/internal/watch"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking for production
		return true
	},
}

// inboundMessage is the envelope for client -> server messages
type inboundMessage struct {
	Type  MessageType     `json:"type"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	logger        *zap.Logger
	authenticated bool
	permissions   []auth.Permission
	userID        *uuid.UUID

	// Aktive Watches dieses Clients, keyed am WatchKey-String
	watchMu sync.Mutex
	watches map[string]watch.SubscriptionID
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	// 10 seconds timeout for authentication
	c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.conn.RemoteAddr().String()))
			}
			break
		}

		// First message MUST be authentication
		if !c.authenticated {
			if msg.Type != MessageTypeAuth {
				c.sendAuthFailed("First message must be authentication")
				c.conn.Close()
				return
			}

			if msg.Token == "" {
				c.sendAuthFailed("Missing token in auth message")
				c.conn.Close()
				return
			}

			// Validate token via AuthService
			permissions, err := c.hub.authService.ValidateToken(
				context.Background(),
				msg.Token,
				c.conn.RemoteAddr().String(),
				"", // User-Agent not available in WebSocket
			)

			if err != nil {
				c.logger.Warn("WebSocket authentication failed",
					zap.Error(err),
					zap.String("remote_addr", c.conn.RemoteAddr().String()))
				c.sendAuthFailed("Invalid or expired token")
				c.conn.Close()
				return
			}

			// Authentication successful
			c.authenticated = true
			c.permissions = permissions
			c.conn.SetReadDeadline(time.Time{}) // Remove deadline

			c.sendAuthSuccess(permissions)
			c.logger.Info("WebSocket client authenticated",
				zap.String("remote_addr", c.conn.RemoteAddr().String()))

			// NOW register to hub (only after auth)
			c.hub.register <- c
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) sendAuthSuccess(permissions []auth.Permission) {
	c.enqueue(NewMessage(MessageTypeAuthSuccess, map[string]interface{}{
		"permissions": permissions,
	}))
}

func (c *Client) sendAuthFailed(reason string) {
	c.enqueue(NewMessage(MessageTypeAuthFailed, map[string]interface{}{
		"reason": reason,
	}))
}

func (c *Client) handleMessage(msg inboundMessage) {
	switch msg.Type {
	case MessageTypeWatchRegister:
		c.handleWatch(msg.Data)
	case MessageTypeUnwatchRegister:
		c.handleUnwatch(msg.Data)
	default:
		c.logger.Debug("Unknown client message",
			zap.String("remote_addr", c.conn.RemoteAddr().String()),
			zap.String("type", string(msg.Type)))
	}
}

// handleWatch registriert den Client auf ein Register. Die Registry
// dedupliziert: für N Clients auf demselben Key existiert eine
// Wire-Subscription.
func (c *Client) handleWatch(data json.RawMessage) {
	var req WatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.logger.Warn("Invalid watch request", zap.Error(err))
		return
	}

	key := types.NewWatchKey(req.AnalyzerID, req.Register)
	keyStr := key.String()

	c.watchMu.Lock()
	if _, already := c.watches[keyStr]; already {
		c.watchMu.Unlock()
		return
	}
	c.watchMu.Unlock()

	id, err := c.hub.registry.Watch(req.AnalyzerID, req.Register, func(value float64) {
		c.enqueue(NewRegisterValueMessage(key, value))
	})
	if err != nil {
		c.enqueue(NewMessage(MessageTypeWatchError, WatchErrorData{
			Key:    keyStr,
			Reason: err.Error(),
		}))
		return
	}

	c.watchMu.Lock()
	c.watches[keyStr] = id
	c.watchMu.Unlock()

	c.logger.Debug("Client watching register",
		zap.String("remote_addr", c.conn.RemoteAddr().String()),
		zap.String("key", keyStr))
}

func (c *Client) handleUnwatch(data json.RawMessage) {
	var req WatchRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.logger.Warn("Invalid unwatch request", zap.Error(err))
		return
	}

	keyStr := types.NewWatchKey(req.AnalyzerID, req.Register).String()

	c.watchMu.Lock()
	id, ok := c.watches[keyStr]
	delete(c.watches, keyStr)
	c.watchMu.Unlock()

	if ok {
		c.hub.registry.Unwatch(id)
	}
}

// releaseWatches gibt alle aktiven Watches des Clients an die Registry
// zurück. Wird beim Unregister aufgerufen.
func (c *Client) releaseWatches() {
	c.watchMu.Lock()
	ids := make([]watch.SubscriptionID, 0, len(c.watches))
	for _, id := range c.watches {
		ids = append(ids, id)
	}
	c.watches = make(map[string]watch.SubscriptionID)
	c.watchMu.Unlock()

	for _, id := range ids {
		c.hub.registry.Unwatch(id)
	}
}

// enqueue serialisiert eine Message in den Send-Buffer, ohne zu blockieren
func (c *Client) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full, message dropped",
			zap.String("remote_addr", c.conn.RemoteAddr().String()))
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce queued messages into current websocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// ServeWs handles WebSocket upgrade requests
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		logger:  hub.logger,
		watches: make(map[string]watch.SubscriptionID),
	}

	// Start read and write pumps in separate goroutines
	go client.writePump()
	go client.readPump()
}
