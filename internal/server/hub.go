package server

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Tyrowin/tcprelay/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Hub owns the registry of connected clients and relays messages between
// them. All registry access happens inside Run, one event at a time, so the
// registry needs no locking.
type Hub struct {
	events         chan Event
	clients        *registry
	limiter        *rateLimiter
	writeTimeout   time.Duration
	readBufferSize int
	metrics        *metrics.Metrics
	log            *logrus.Entry
	now            func() time.Time

	trackMu  sync.Mutex
	stopping bool
	wg       sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub from cfg. A nil logger or metrics set gets a default.
func NewHub(cfg Config, log *logrus.Entry, m *metrics.Metrics) *Hub {
	cfg.SetDefaults()
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if m == nil {
		m = metrics.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		events:         make(chan Event, cfg.EventQueueSize),
		clients:        newRegistry(),
		limiter:        newRateLimiter(cfg.RateLimit),
		writeTimeout:   cfg.WriteTimeout,
		readBufferSize: cfg.ReadBufferSize,
		metrics:        m,
		log:            log,
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	m.SetQueueLengthFunc(func() int { return len(h.events) })
	return h
}

// Events returns the producer side of the event channel.
func (h *Hub) Events() chan<- Event {
	return h.events
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Run processes events until Shutdown is called or the event channel is
// closed. It must run in exactly one goroutine.
func (h *Hub) Run() error {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return nil

		case ev, ok := <-h.events:
			if !ok {
				h.log.Error("The hub event channel is down")
				return ErrEventsClosed
			}
			h.handle(ev)
		}
	}
}

func (h *Hub) handle(ev Event) {
	switch e := ev.(type) {
	case Connected:
		h.handleConnected(e)
	case Disconnected:
		h.handleDisconnected(e)
	case MessageReceived:
		h.handleMessage(e)
	case snapshotRequest:
		e.reply <- h.clients.addrs()
	default:
		h.log.Warnf("Ignoring unknown event %T", ev)
	}
}

func (h *Hub) handleConnected(e Connected) {
	if e.Peer == nil {
		h.log.Warn("Received connect event without a peer; skipping")
		return
	}

	addr := addrOf(e.Peer)
	rec := &ClientRecord{
		Addr:        addr,
		Peer:        e.Peer,
		LastMessage: h.limiter.initialLastMessage(h.now()),
	}
	if h.clients.add(rec) {
		h.log.WithField("addr", addr).Debug("Replaced existing registry entry")
	}

	h.metrics.ClientConnected()
	h.metrics.SetClients(h.clients.len())
	h.log.WithField("addr", addr).Infof("Client %s connected. Total clients: %d", addr, h.clients.len())
}

func (h *Hub) handleDisconnected(e Disconnected) {
	if _, ok := h.clients.remove(e.Addr); !ok {
		return
	}

	h.metrics.ClientDisconnected()
	h.metrics.SetClients(h.clients.len())
	h.log.WithField("addr", e.Addr).Infof("Client %s disconnected. Total clients: %d", e.Addr, h.clients.len())
}

func (h *Hub) handleMessage(e MessageReceived) {
	log := h.log.WithField("addr", e.Addr)

	author, ok := h.clients.get(e.Addr)
	if !ok {
		log.Debug("Dropping message from unregistered client")
		h.metrics.MessageDropped(metrics.ReasonUnknownClient)
		return
	}

	if !utf8.Valid(e.Payload) {
		log.Debugf("Dropping %d byte message that is not valid UTF-8", len(e.Payload))
		h.metrics.MessageDropped(metrics.ReasonInvalidUTF8)
		return
	}

	now := h.now()
	switch h.limiter.check(author.LastMessage, now) {
	case verdictDrop:
		log.Warnf("Rate limit exceeded for %s (one message per %s); discarding message", e.Addr, h.limiter.window)
		h.metrics.MessageDropped(metrics.ReasonRateLimited)
		return
	case verdictDisconnect:
		log.Warnf("Rate limit exceeded for %s (one message per %s); disconnecting client", e.Addr, h.limiter.window)
		h.metrics.MessageDropped(metrics.ReasonRateLimited)
		h.disconnect(author)
		return
	}
	author.LastMessage = now

	log.Infof("Client %s sent the message %q", e.Addr, e.Payload)
	h.metrics.MessageReceived()
	h.broadcast(author, e.Payload)
}

// broadcast writes payload to every client except author. A failed write is
// reported and skipped; the failing peer stays registered until its own
// reader notices the broken connection.
func (h *Hub) broadcast(author *ClientRecord, payload []byte) {
	for _, rec := range h.clients.others(author.Addr) {
		if err := h.writeTo(rec, payload); err != nil {
			h.metrics.WriteError()
			log := h.log.WithFields(logrus.Fields{"addr": rec.Addr, "author": author.Addr})
			if isExpectedCloseError(err) {
				log.Warnf("Could not broadcast message from %s to closed client %s: %v", author.Addr, rec.Addr, err)
			} else {
				log.Errorf("Could not broadcast message from %s to %s: %v", author.Addr, rec.Addr, err)
			}
			continue
		}
		h.metrics.MessageRelayed(len(payload))
	}
}

func (h *Hub) writeTo(rec *ClientRecord, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered from panic writing to %s: %v", rec.Addr, r)
		}
	}()

	if h.writeTimeout > 0 {
		if err := rec.Peer.SetWriteDeadline(time.Now().Add(h.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	_, err = rec.Peer.Write(payload)
	return err
}

// disconnect removes rec and closes its connection. The reader's own
// Disconnected event then finds nothing to remove.
func (h *Hub) disconnect(rec *ClientRecord) {
	h.clients.remove(rec.Addr)
	h.closePeer(rec)
	h.metrics.ClientDisconnected()
	h.metrics.SetClients(h.clients.len())
	h.log.WithField("addr", rec.Addr).Infof("Client %s disconnected by the server. Total clients: %d", rec.Addr, h.clients.len())
}

func (h *Hub) closePeer(rec *ClientRecord) {
	if err := rec.Peer.Close(); err != nil && !isExpectedCloseError(err) {
		h.log.WithField("addr", rec.Addr).Errorf("Error closing client connection: %v", err)
	}
}

// Attach starts a reader for conn that feeds this hub. Once Shutdown has
// begun, conn is closed instead.
func (h *Hub) Attach(conn Conn) {
	h.attach(conn, h.readBufferSize)
}

func (h *Hub) attach(conn Conn, bufSize int) {
	client := NewClient(conn, h.events, h.ctx.Done(), bufSize, h.log)
	if !h.Track(client.Run) {
		h.log.WithField("addr", client.Addr()).Debug("Hub is shutting down; rejecting connection")
		client.closeConnection()
	}
}

// Track runs fn in a goroutine that Shutdown waits for. It reports false,
// without running fn, once Shutdown has been called.
func (h *Hub) Track(fn func()) bool {
	h.trackMu.Lock()
	defer h.trackMu.Unlock()
	if h.stopping {
		return false
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		fn()
	}()
	return true
}

// Clients returns the registered addresses in sorted order. The snapshot is
// taken by the hub loop itself, after every event queued before the call.
func (h *Hub) Clients(ctx context.Context) ([]string, error) {
	req := snapshotRequest{reply: make(chan []string, 1)}

	select {
	case h.events <- req:
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case addrs := <-req.reply:
		return addrs, nil
	case <-h.done:
		return nil, ErrHubStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// shutdownClients closes every registered connection.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	clients := h.clients.all()
	for _, rec := range clients {
		h.closePeer(rec)
		h.clients.remove(rec.Addr)
	}
	h.metrics.SetClients(0)

	h.log.Infof("Closed %d client connections", len(clients))
}

// Shutdown stops Run, closes all client connections and waits for the
// tracked reader goroutines, or until timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.trackMu.Lock()
	h.stopping = true
	h.trackMu.Unlock()

	h.cancel()

	select {
	case <-h.done:
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached before the event loop stopped")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
