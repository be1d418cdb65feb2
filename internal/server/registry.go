package server

import (
	"sort"
	"time"
)

// ClientRecord is the registry entry for one connected peer.
type ClientRecord struct {
	Addr        string
	Peer        Peer
	LastMessage time.Time
}

// registry maps peer addresses to their records. It has no locking: only the
// hub goroutine may use it.
type registry struct {
	clients map[string]*ClientRecord
}

func newRegistry() *registry {
	return &registry{clients: make(map[string]*ClientRecord)}
}

// add inserts rec and reports whether an entry for the same address was
// replaced.
func (r *registry) add(rec *ClientRecord) bool {
	_, replaced := r.clients[rec.Addr]
	r.clients[rec.Addr] = rec
	return replaced
}

// remove deletes addr. Removing an absent address is a no-op.
func (r *registry) remove(addr string) (*ClientRecord, bool) {
	rec, ok := r.clients[addr]
	if ok {
		delete(r.clients, addr)
	}
	return rec, ok
}

func (r *registry) get(addr string) (*ClientRecord, bool) {
	rec, ok := r.clients[addr]
	return rec, ok
}

func (r *registry) len() int {
	return len(r.clients)
}

// addrs returns the registered addresses in sorted order.
func (r *registry) addrs() []string {
	out := make([]string, 0, len(r.clients))
	for addr := range r.clients {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// others returns every record except the one registered under addr.
func (r *registry) others(addr string) []*ClientRecord {
	out := make([]*ClientRecord, 0, len(r.clients))
	for a, rec := range r.clients {
		if a == addr {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (r *registry) all() []*ClientRecord {
	out := make([]*ClientRecord, 0, len(r.clients))
	for _, rec := range r.clients {
		out = append(out, rec)
	}
	return out
}
