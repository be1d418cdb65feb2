package server

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Tyrowin/tcprelay/internal/metrics"
	"github.com/sirupsen/logrus"
)

const maxAcceptBackoff = time.Second

// Listener is the TCP accept loop of the relay.
type Listener struct {
	ln      net.Listener
	metrics *metrics.Metrics
	log     *logrus.Entry
}

// Listen binds addr. A bind failure is returned to the caller, which treats
// it as fatal.
func Listen(addr string, m *metrics.Metrics, log *logrus.Entry) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("unable to bind server on %s: %w", addr, err)
	}
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Listener{ln: ln, metrics: m, log: log}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops the accept loop.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Serve accepts connections and attaches each one to hub. A failed accept is
// logged and the loop continues after a short backoff. Serve returns nil once
// the listener is closed.
func (l *Listener) Serve(hub *Hub) error {
	l.log.Infof("Listening on %s", l.ln.Addr())

	var backoff time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}

			l.metrics.AcceptError()
			backoff = nextBackoff(backoff)
			l.log.Errorf("Connection failed: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		l.log.WithField("addr", conn.RemoteAddr().String()).Debugf("Accepted connection from %s", conn.RemoteAddr())
		hub.Attach(conn)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return 5 * time.Millisecond
	}
	current *= 2
	if current > maxAcceptBackoff {
		return maxAcceptBackoff
	}
	return current
}
