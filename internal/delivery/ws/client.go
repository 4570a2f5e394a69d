// Package ws is the websocket transport: one Client per connection, a read
// loop that dispatches inbound messages, and a JSON sink for outbound ones.
package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vishu2124/OT-editor/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Client wraps one websocket connection and implements domain.Sink. All
// writes share a mutex; gorilla allows one concurrent writer only.
type Client struct {
	sessionID string
	conn      *websocket.Conn
	logger    *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(sessionID string, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		sessionID: sessionID,
		conn:      conn,
		logger:    logger.With(zap.String("session_id", sessionID)),
		done:      make(chan struct{}),
	}
}

// SessionID returns the server-assigned session id.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Send marshals and writes one message.
func (c *Client) Send(msg domain.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrSinkClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close shuts the connection down. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return c.conn.Close()
}

// pingLoop keeps the connection alive until Close.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}
