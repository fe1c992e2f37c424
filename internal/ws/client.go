package ws

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/whitechapel007/chat-app-pern/internal/event"
	"github.com/whitechapel007/chat-app-pern/internal/logger"
	"github.com/whitechapel007/chat-app-pern/internal/model"
)

// bufPool pools bytes.Buffer for JSON encoding in the hot-path (writePump).
var bufPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Client represents a single WebSocket connection.
// Lifecycle: NewClient -> Start(ctx, cancel) -> [readPump, writePump] -> Close -> Wait.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan event.Event
	id   string
	user model.UserPublic

	// done is used as a non-blocking guard in Send.
	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

var _ Session = (*Client)(nil)

func NewClient(hub *Hub, conn *websocket.Conn, user model.UserPublic) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan event.Event, hub.opts.SendBuffer),
		id:   uuid.NewString(),
		user: user,
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) User() model.UserPublic { return c.user }

// Send queues an event without blocking. A full buffer means a slow client: it is closed.
func (c *Client) Send(ev event.Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	case <-c.done:
		return false
	default:
		logger.Errorf("ws send buffer full, closing slow client user=%s conn=%s", c.user.ID, c.id)
		c.Close()
		return false
	}
}

// Start launches readPump and writePump goroutines with controlled lifecycle.
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go c.writePump(ctx)
	go c.readPump(ctx)
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until both pump goroutines have exited.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Close signals the client to stop. Safe to call multiple times from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) readPump(ctx context.Context) {
	defer c.wg.Done()
	defer func() {
		c.Close()
		c.hub.Unregister(c)
	}()

	pongWait := c.hub.opts.PongWait
	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logger.Errorf("ws set read deadline user=%s: %v", c.user.ID, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Errorf("ws read error user=%s: %v", c.user.ID, err)
			}
			return
		}
		c.hub.HandleMessage(ctx, c, raw)
	}
}

func (c *Client) writePump(ctx context.Context) {
	defer c.wg.Done()
	writeWait := c.hub.opts.WriteWait
	ticker := time.NewTicker(c.hub.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case ev := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.user.ID, err)
				return
			}
			buf := bufPool.Get().(*bytes.Buffer)
			buf.Reset()
			if err := json.NewEncoder(buf).Encode(ev); err != nil {
				bufPool.Put(buf)
				logger.Errorf("ws marshal error user=%s: %v", c.user.ID, err)
				continue
			}
			// json.Encoder appends '\n'; trim it for WebSocket text messages.
			data := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
			writeErr := c.conn.WriteMessage(websocket.TextMessage, data)
			bufPool.Put(buf)
			if writeErr != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logger.Errorf("ws set write deadline user=%s: %v", c.user.ID, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
