package network

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Raster uploads travel as JSON sample arrays, so frames can be large
	maxMessageSize = 64 << 20
	writeWait      = 10 * time.Second
	sendBuffer     = 256
)

// Errors returned by SendMessage
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Connection wraps the WebSocket connection with additional fields
type Connection struct {
	ws        *websocket.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewConnection creates a new connection wrapper
func NewConnection(ws *websocket.Conn) *Connection {
	return &Connection{
		ws:     ws,
		send:   make(chan []byte, sendBuffer), // Buffered channel for outgoing messages
		closed: make(chan struct{}),
	}
}

// ReadPump reads messages from the WebSocket connection until it fails
func (c *Connection) ReadPump(h MessageHandler) {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("error reading message", "remote", c.ws.RemoteAddr().String(), "error", err)
			}
			break
		}

		// Handle the incoming message
		h.HandleMessage(c, message)
	}
}

// WritePump writes queued messages to the WebSocket connection
func (c *Connection) WritePump() {
	defer c.ws.Close()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				c.Close()
				return
			}
			if _, err := w.Write(message); err != nil {
				c.Close()
				return
			}
			if err := w.Close(); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// SendMessage queues a message for the client
func (c *Connection) SendMessage(msg interface{}) error {
	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- messageBytes:
		return nil
	default:
		// If the send channel is full, close the connection
		slog.Warn("send buffer full, closing connection", "remote", c.ws.RemoteAddr().String())
		c.Close()
		return ErrSendBufferFull
	}
}

// Close stops the write pump. It is safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

// Closed is closed once the connection has been shut down
func (c *Connection) Closed() <-chan struct{} {
	return c.closed
}

// MessageHandler interface for handling messages
type MessageHandler interface {
	HandleMessage(conn *Connection, message []byte)
}
