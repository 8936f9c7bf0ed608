package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gravitas-games/economy/internal/network"
	"github.com/gravitas-games/economy/pkg/models"
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

	// Time allowed for the world to save a leaving player
	leaveTimeout = 5 * time.Second
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	ws     *websocket.Conn
	server *Server
	logger *slog.Logger

	// Player information, set from the validated token
	player *models.Player
	joined atomic.Bool

	// Buffered channel for outbound messages
	send      chan []byte
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewConnection creates a new connection for an authenticated player
func NewConnection(ws *websocket.Conn, server *Server, player *models.Player) *Connection {
	return &Connection{
		ws:     ws,
		server: server,
		player: player,
		logger: server.logger.With("player", player.ID),
		send:   make(chan []byte, 256),
	}
}

// Handle manages the connection lifecycle
func (c *Connection) Handle() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writePump()
	c.readPump() // Blocking
}

// readPump pumps messages from the WebSocket connection to the world
func (c *Connection) readPump() {
	defer c.Close()

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		env, err := network.Decode(message)
		if err != nil {
			c.logger.Debug("failed to parse client message", "error", err)
			c.SendError(network.CodeInvalid, "Failed to parse message")
			continue
		}

		c.handleMessage(env)
	}
}

// writePump pumps messages from the send channel to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.server.ctx.Done():
			return
		}
	}
}

// handleMessage routes session messages here and everything else to the
// world
func (c *Connection) handleMessage(env network.Envelope) {
	switch env.Type {
	case network.MsgTypeJoin:
		c.handleJoin()
	case network.MsgTypeLeave:
		c.handleLeave()
	default:
		if !c.joined.Load() {
			c.SendError(network.CodeNotAuthenticated, "Join before sending requests")
			return
		}
		if err := c.server.world.Dispatch(c.server.ctx, c.player.ID, env); err != nil {
			c.logger.Warn("dispatch failed", "type", env.Type, "error", err)
			c.SendError(network.CodeInvalid, err.Error())
		}
	}
}

func (c *Connection) handleJoin() {
	if c.joined.Load() {
		return
	}
	if err := c.server.world.Join(c.server.ctx, c.player, c); err != nil {
		c.logger.Warn("failed to join world", "error", err)
		c.SendError("join_failed", err.Error())
		return
	}
	c.joined.Store(true)
}

func (c *Connection) handleLeave() {
	if !c.joined.CompareAndSwap(true, false) {
		return
	}
	// Not the server context: the player must still be saved during shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := c.server.world.Leave(ctx, c.player.ID); err != nil {
		c.logger.Warn("failed to leave world", "error", err)
	}
}

// Send queues a message for the client. It is safe to call after Close.
func (c *Connection) Send(msgType string, payload any) {
	data, err := network.Encode(msgType, payload)
	if err != nil {
		c.logger.Error("failed to marshal message", "type", msgType, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping message", "type", msgType)
	}
}

// SendError sends an error message to the client
func (c *Connection) SendError(code, message string) {
	c.Send(network.MsgTypeError, network.ErrorPayload{Code: code, Message: message})
}

// Close leaves the world and closes the connection
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.handleLeave()

		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		c.ws.Close()
	})
}
