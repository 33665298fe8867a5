package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"compliance-agent-be/internal/pkg/logger"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
)

// Conn is the per-connection send handle. One writer goroutine owns the
// underlying socket; everything else enqueues frames through Send. The
// handle is passed explicitly to whoever needs to emit, so no global
// connection registry exists.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	log  logger.ILogger

	closeOnce sync.Once
	done      chan struct{}
}

func NewConn(ws *websocket.Conn, log logger.ILogger) *Conn {
	c := &Conn{
		ws:   ws,
		send: make(chan []byte, 64),
		log:  log,
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send marshals and enqueues one frame. Frames are dropped once the
// connection is closed or when the peer stops draining.
func (c *Conn) Send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Error("WebSocket", "Failed to marshal frame", map[string]interface{}{"error": err.Error()})
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.log.Warn("WebSocket", "Send buffer full, dropping frame", nil)
	}
}

// ReadJSON blocks for the next inbound frame.
func (c *Conn) ReadJSON(v any) error {
	return c.ws.ReadJSON(v)
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
