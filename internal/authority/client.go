// Package authority is the client side of the link to the authoritative
// server: a websocket connection that carries requests out and feeds
// confirmations, denials and state back into an itemsync loop.
package authority

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gravitas-games/economy/internal/itemsync"
	"github.com/gravitas-games/economy/internal/network"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // full-state messages can be large
)

var ErrSendBufferFull = errors.New("send buffer full")

// DeliverFunc hands one raw server message to the session loop.
type DeliverFunc func(ctx context.Context, data []byte) error

// Client is a websocket link to the authority. It satisfies
// itemsync.Authority.
type Client struct {
	url    string
	token  string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu        sync.Mutex
	ws        *websocket.Conn
	send      chan []byte
	connected atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHandshakeTimeout bounds the websocket handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.dialer.HandshakeTimeout = d
		}
	}
}

// New creates a client for the websocket endpoint at url.
func New(url, token string, opts ...Option) *Client {
	c := &Client{
		url:   url,
		token: token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connected reports whether requests can be sent.
func (c *Client) Connected() bool { return c.connected.Load() }

// Dial opens the connection and asks to join the world.
func (c *Client) Dial(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	ws, resp, err := c.dialer.DialContext(ctx, c.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", c.url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	ws.SetReadLimit(maxMessageSize)

	c.mu.Lock()
	c.ws = ws
	c.send = make(chan []byte, 256)
	c.mu.Unlock()
	c.connected.Store(true)

	c.logger.Info("connected to authority", "url", c.url)
	return c.Send(network.MsgTypeJoin, struct{}{})
}

// Run pumps messages until ctx is done or the connection drops. Each server
// message is passed to deliver. Once Run returns the client reports itself
// disconnected.
func (c *Client) Run(ctx context.Context, deliver DeliverFunc) error {
	c.mu.Lock()
	ws, send := c.ws, c.send
	c.mu.Unlock()
	if ws == nil {
		return itemsync.ErrNotConnected
	}

	writeErr := make(chan error, 1)
	go func() { writeErr <- c.writePump(ctx, ws, send) }()

	err := c.readPump(ctx, ws, deliver)
	c.disconnect()
	if werr := <-writeErr; err == nil {
		err = werr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Client) readPump(ctx context.Context, ws *websocket.Conn, deliver DeliverFunc) error {
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && ctx.Err() == nil {
				c.logger.Warn("authority read error", "error", err)
				return err
			}
			return nil
		}
		if err := deliver(ctx, data); err != nil {
			c.logger.Debug("server message dropped", "error", err)
		}
	}
}

func (c *Client) writePump(ctx context.Context, ws *websocket.Conn, send <-chan []byte) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-send:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Send queues a message for the authority.
func (c *Client) Send(msgType string, payload any) error {
	data, err := network.Encode(msgType, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected.Load() || c.send == nil {
		return itemsync.ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close leaves the world and closes the connection.
func (c *Client) Close() error {
	if c.Connected() {
		_ = c.Send(network.MsgTypeLeave, struct{}{})
	}
	c.disconnect()
	return nil
}

func (c *Client) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected.Swap(false) {
		return
	}
	// Closing send lets the write pump flush and send a close frame.
	close(c.send)
	c.send = nil
	c.logger.Info("disconnected from authority", "url", c.url)
}
