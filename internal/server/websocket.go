// Package server bridges WebSocket clients into the relay so browsers can
// join the same registry as raw TCP clients.
package server

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	pingWait   = 10 * time.Second
)

// wsConn adapts a WebSocket connection to Conn. Each Read returns one whole
// inbound frame and each Write sends one text frame.
type wsConn struct {
	conn    *websocket.Conn
	pending []byte
	log     *logrus.Entry

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSConn(conn *websocket.Conn, maxMessageSize int64, log *logrus.Entry) *wsConn {
	c := &wsConn{
		conn:   conn,
		log:    log.WithField("addr", conn.RemoteAddr().String()),
		closed: make(chan struct{}),
	}
	conn.SetReadLimit(maxMessageSize)
	c.setupReadConnection()
	go c.keepAlive()
	return c
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *wsConn) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warnf("Error setting initial read deadline: %v", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// keepAlive pings the peer until the connection is closed. WriteControl may
// run concurrently with the hub's writes.
func (c *wsConn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWait)); err != nil {
				if !isExpectedCloseError(err) {
					c.log.Warnf("Error writing ping message: %v", err)
				}
				return
			}
		}
	}
}

// Read returns the next frame. Empty frames are skipped. A frame longer than
// p is returned over consecutive calls; readers sized to the read limit never
// see that.
func (c *wsConn) Read(p []byte) (int, error) {
	for len(c.pending) == 0 {
		_, r, err := c.conn.NextReader()
		if err != nil {
			return 0, err
		}
		frame, err := io.ReadAll(r)
		if err != nil {
			return 0, err
		}
		c.pending = frame
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// WebSocketBridge upgrades HTTP requests and attaches the resulting
// connections to the hub.
type WebSocketBridge struct {
	hub            *Hub
	upgrader       websocket.Upgrader
	maxMessageSize int64
	log            *logrus.Entry
}

// NewWebSocketBridge creates a bridge enforcing cfg's origin allow-list and
// message size limit.
func NewWebSocketBridge(cfg Config, hub *Hub, log *logrus.Entry) *WebSocketBridge {
	cfg.SetDefaults()
	origins := newOriginPolicy(cfg.AllowedOrigins, log)
	return &WebSocketBridge{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		maxMessageSize: cfg.MaxMessageSize,
		log:            log,
	}
}

// ServeHTTP accepts only GET upgrade requests.
func (b *WebSocketBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	b.hub.attach(newWSConn(conn, b.maxMessageSize, b.log), b.readBufferSize())
}

// readBufferSize is large enough for any frame the read limit admits, so a
// frame reaches the hub as a single message.
func (b *WebSocketBridge) readBufferSize() int {
	size := int(b.maxMessageSize)
	if b.hub.readBufferSize > size {
		size = b.hub.readBufferSize
	}
	return size
}
