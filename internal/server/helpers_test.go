package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/tcprelay/internal/metrics"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

// fakeAddr is a net.Addr with a fixed string form.
type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

// fakePeer records everything the hub writes to it.
type fakePeer struct {
	addr net.Addr

	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	closed   bool
}

func newFakePeer(addr string) *fakePeer {
	return &fakePeer{addr: fakeAddr(addr)}
}

func (p *fakePeer) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) RemoteAddr() net.Addr { return p.addr }

func (p *fakePeer) SetWriteDeadline(time.Time) error { return nil }

func (p *fakePeer) failWrites(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

func (p *fakePeer) received() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return bytes.Join(p.writes, nil)
}

func (p *fakePeer) writeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeClock is a settable time source for rate limit tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBrokenPipe = errors.New("write: connection refused by test")

type testHub struct {
	*Hub
	metrics *metrics.Metrics
	logs    *logtest.Hook
	errc    chan error
}

// newTestHub creates a hub with a capturing logger. Call start to run it.
func newTestHub(t *testing.T, cfg Config) *testHub {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	m := metrics.New()

	return &testHub{
		Hub:     NewHub(cfg, logrus.NewEntry(logger), m),
		metrics: m,
		logs:    hook,
		errc:    make(chan error, 1),
	}
}

// start runs the hub loop and stops it when the test ends.
func (h *testHub) start(t *testing.T) *testHub {
	t.Helper()
	go func() { h.errc <- h.Run() }()
	t.Cleanup(func() { _ = h.Shutdown(time.Second) })
	return h
}

// startTestHub is newTestHub followed by start.
func startTestHub(t *testing.T, cfg Config) *testHub {
	t.Helper()
	return newTestHub(t, cfg).start(t)
}

func (h *testHub) send(t *testing.T, ev Event) {
	t.Helper()
	select {
	case h.Events() <- ev:
	case <-time.After(time.Second):
		t.Fatalf("timed out queueing %T", ev)
	}
}

func (h *testHub) connect(t *testing.T, addr string) *fakePeer {
	t.Helper()
	p := newFakePeer(addr)
	h.send(t, Connected{Peer: p})
	return p
}

func (h *testHub) message(t *testing.T, addr, payload string) {
	t.Helper()
	h.send(t, MessageReceived{Addr: addr, Payload: []byte(payload)})
}

// clients returns the registry after every previously queued event has been
// processed.
func (h *testHub) clients(t *testing.T) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	addrs, err := h.Clients(ctx)
	if err != nil {
		t.Fatalf("Clients() error = %v", err)
	}
	return addrs
}

// hasLog reports whether any captured entry has the given message.
func (h *testHub) hasLog(level logrus.Level, message string) bool {
	for _, entry := range h.logs.AllEntries() {
		if entry.Level == level && entry.Message == message {
			return true
		}
	}
	return false
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testLogger() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logrus.NewEntry(logger)
}
