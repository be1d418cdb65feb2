// Package server manages individual client connections, turning socket reads
// into hub events.
package server

import (
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

const defaultReadBufferSize = 4096

// Client is the read side of one connection. It reports the connection's
// lifecycle and every chunk it reads to the hub; it never writes.
type Client struct {
	conn    Conn
	addr    string
	events  chan<- Event
	stop    <-chan struct{}
	bufSize int
	log     *logrus.Entry
}

// NewClient creates a Client for conn that sends events on events until stop
// is closed.
func NewClient(conn Conn, events chan<- Event, stop <-chan struct{}, bufSize int, log *logrus.Entry) *Client {
	if bufSize <= 0 {
		bufSize = defaultReadBufferSize
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	addr := addrOf(conn)
	return &Client{
		conn:    conn,
		addr:    addr,
		events:  events,
		stop:    stop,
		bufSize: bufSize,
		log:     log.WithField("addr", addr),
	}
}

// Addr returns the registry key of the connection.
func (c *Client) Addr() string {
	return c.addr
}

// Run announces the connection, then reads until the peer goes away. It emits
// exactly one Disconnected event after the last message, unless the hub has
// stopped first.
func (c *Client) Run() {
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-c.stop:
			c.closeConnection()
		case <-finished:
		}
	}()

	if !c.emit(Connected{Peer: c.conn}) {
		c.closeConnection()
		return
	}

	buf := make([]byte, c.bufSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			if !c.emit(MessageReceived{Addr: c.addr, Payload: payload}) {
				c.closeConnection()
				return
			}
		}

		if err != nil || n == 0 {
			c.handleReadError(err)
			c.closeConnection()
			c.emit(Disconnected{Addr: c.addr})
			return
		}
	}
}

// emit hands ev to the hub and reports false if the hub stopped first.
func (c *Client) emit(ev Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.stop:
		return false
	}
}

// handleReadError logs why the read loop ended.
func (c *Client) handleReadError(err error) {
	switch {
	case err == nil:
		c.log.Debugf("Client %s closed the connection", c.addr)
	case errors.Is(err, io.EOF):
		c.log.Debugf("Client %s connection closed: %v", c.addr, err)
	case isTimeout(err):
		c.log.Warnf("Read from %s timed out: %v", c.addr, err)
	case isExpectedCloseError(err):
		c.log.Debugf("Client %s connection closed: %v", c.addr, err)
	default:
		c.log.Warnf("Read error from %s: %v", c.addr, err)
	}
}

// closeConnection closes the connection, logging only unexpected errors.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Errorf("Error closing connection for %s: %v", c.addr, err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
