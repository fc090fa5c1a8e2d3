package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"messenger-service/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Client is one live websocket connection. userID stays empty until the
// connection authenticates via the connect event.
type Client struct {
	connID string
	conn   *websocket.Conn
	info   ConnInfo

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// set during the connect handshake; read only by the connection's
	// own read goroutine afterwards
	userID       string
	pendingToken string
}

func newClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		connID: info.ConnID,
		conn:   conn,
		info:   info,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// enqueue hands a payload to the write pump without ever blocking the
// caller. A client whose buffer is full is dropped so one slow consumer
// cannot stall a room broadcast.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- payload:
		return true
	case <-c.done:
		return false
	default:
		observability.IncBroadcastDrop()
		c.close()
		return false
	}
}

func (c *Client) sendEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("ws encode event: %v", err)
		return
	}
	c.enqueue(payload)
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
