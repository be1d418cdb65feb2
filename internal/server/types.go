// Package server defines the events exchanged between connection readers and
// the hub, and the connection capabilities each side relies on.
package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// ErrEventsClosed is returned by Hub.Run when its event channel has been
// closed, meaning no connection can reach the hub any more.
var ErrEventsClosed = errors.New("server: event channel closed")

// ErrHubStopped is returned by Hub.Clients once the hub loop has exited.
var ErrHubStopped = errors.New("server: hub stopped")

// Peer is the write side of a connection. The hub is the only writer.
type Peer interface {
	io.Writer
	io.Closer
	RemoteAddr() net.Addr
	SetWriteDeadline(t time.Time) error
}

// Conn is a full client connection: the read side is owned by its Client and
// the write side is shared with the hub. net.Conn satisfies it.
type Conn interface {
	io.Reader
	Peer
}

// Event is one item on the hub's event channel.
type Event interface {
	event()
}

// Connected announces a newly accepted connection.
type Connected struct {
	Peer Peer
}

// Disconnected announces that the connection at Addr stopped reading.
type Disconnected struct {
	Addr string
}

// MessageReceived carries one chunk read from the connection at Addr.
type MessageReceived struct {
	Addr    string
	Payload []byte
}

// snapshotRequest asks the hub loop for the registered addresses.
type snapshotRequest struct {
	reply chan []string
}

func (Connected) event()       {}
func (Disconnected) event()    {}
func (MessageReceived) event() {}
func (snapshotRequest) event() {}

// addrOf returns the registry key for a peer.
func addrOf(p Peer) string {
	if p == nil || p.RemoteAddr() == nil {
		return "unknown"
	}
	return p.RemoteAddr().String()
}

// isExpectedCloseError reports whether err is the normal result of a peer
// going away or of the connection being closed locally.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
