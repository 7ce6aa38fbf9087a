package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tripmates/tripchat/internal/types"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Client is a single websocket connection. All writes to the
// connection happen on the Write pump, other goroutines hand frames
// over through the send and probe channels.
type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	send       chan []byte
	probe      chan struct{}
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(id string, user types.User, conn *websocket.Conn, chatServer *ChatServer, logger *log.Logger) *Client {
	return &Client{
		id:         id,
		conn:       conn,
		chatServer: chatServer,
		log:        logger,
		user:       user,
		send:       make(chan []byte, 256),
		probe:      make(chan struct{}, 1),
		stop:       make(chan struct{}),
	}
}

// Write pumps queued frames to the websocket connection. It is the
// only goroutine allowed to write to conn.
func (c *Client) Write() {
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.log.Printf("client %s: write failed: %s", c.id, err)
				}
				return
			}
		case <-c.probe:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.stop:
			return
		}
	}
}

// Read pumps inbound frames from the websocket connection into the
// protocol handler. Pong responses refresh the liveness flag checked
// by the heartbeat sweep.
func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.chatServer.registry.MarkAlive(c)
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Printf("client %s: read failed: %s", c.id, err)
			}
			return
		}

		c.chatServer.handleFrame(c, raw)
	}
}

func (c *Client) queueFrame(frame *ServerFrame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		c.log.Printf("client %s: failed to encode frame: %s", c.id, err)
		return false
	}

	return c.queueBytes(data)
}

// queueBytes enqueues an already encoded frame without blocking. A
// slow consumer whose buffer is full loses the frame, delivery is best
// effort.
func (c *Client) queueBytes(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		c.log.Printf("client %s: send buffer full, dropping frame", c.id)
		return false
	}
}

func (c *Client) requestProbe() {
	select {
	case c.probe <- struct{}{}:
	default:
	}
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

func (c *Client) cleanup() {
	c.chatServer.DeRegisterClient(c)
	c.stopClient()
}

func (c *Client) close() {
	if c.conn != nil {
		c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(writeWait),
		)
		c.conn.Close()
	}

	c.stopClient()
}
