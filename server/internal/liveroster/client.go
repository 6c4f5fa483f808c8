package liveroster

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the maximum time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long the server waits for a pong after a ping.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait so the client has time to reply.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum frame size accepted from the client —
	// the protocol is server-push only, clients send pong frames at most.
	maxMessageSize = 512

	// sendBufferSize is the per-client outbound buffer. A client that falls
	// this far behind is disconnected rather than allowed to stall the hub.
	sendBufferSize = 4
)

// upgrader performs the HTTP -> WebSocket handshake. Origin validation is
// left to the reverse proxy in front of the server.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is a single connected /ws/nodes peer.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger
}

func newClient(hub *Hub, w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*client, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return &client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger.With(zap.String("remote_addr", r.RemoteAddr)),
	}, nil
}

// run registers the client, starts its write pump, and blocks on the read
// pump until the connection closes.
func (c *client) run() {
	c.hub.register <- c
	go c.writePump()
	c.readPump()
}

// readPump's only job is to detect disconnection and keep the read deadline
// alive via pong frames; the roster protocol is server-push only.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warn("ws: unexpected close", zap.Error(err))
			}
			return
		}
	}
}

// writePump is the only goroutine allowed to write to conn.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Warn("ws: write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("ws: ping error", zap.Error(err))
				return
			}
		}
	}
}
