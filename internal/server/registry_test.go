package server

import (
	"math/rand"
	"sort"
	"testing"
	"time"
)

// TestRegistryAddReportsReplacement tests that registering an address twice
// keeps only the newest record.
func TestRegistryAddReportsReplacement(t *testing.T) {
	r := newRegistry()
	first := &ClientRecord{Addr: "10.0.0.1:1", Peer: newFakePeer("10.0.0.1:1")}
	second := &ClientRecord{Addr: "10.0.0.1:1", Peer: newFakePeer("10.0.0.1:1")}

	if r.add(first) {
		t.Error("add() reported a replacement for a new address")
	}
	if !r.add(second) {
		t.Error("add() did not report the replacement of an existing address")
	}
	if r.len() != 1 {
		t.Fatalf("len() = %d, want 1", r.len())
	}
	if got, _ := r.get("10.0.0.1:1"); got != second {
		t.Error("get() did not return the most recent record")
	}
}

// TestRegistryRemoveIsIdempotent tests that removing an address twice, or
// removing one that was never added, leaves the registry unchanged.
func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r := newRegistry()
	r.add(&ClientRecord{Addr: "a"})
	r.add(&ClientRecord{Addr: "b"})

	if _, ok := r.remove("a"); !ok {
		t.Error("remove(a) = false, want true")
	}
	if _, ok := r.remove("a"); ok {
		t.Error("second remove(a) = true, want false")
	}
	if _, ok := r.remove("never"); ok {
		t.Error("remove(never) = true, want false")
	}
	if got := r.addrs(); !equalStrings(got, []string{"b"}) {
		t.Errorf("addrs() = %v, want [b]", got)
	}
}

// TestRegistryOthersExcludesAuthor tests the recipient selection used for
// broadcasting.
func TestRegistryOthersExcludesAuthor(t *testing.T) {
	r := newRegistry()
	for _, addr := range []string{"a", "b", "c"} {
		r.add(&ClientRecord{Addr: addr})
	}

	var got []string
	for _, rec := range r.others("b") {
		got = append(got, rec.Addr)
	}
	sort.Strings(got)

	if !equalStrings(got, []string{"a", "c"}) {
		t.Errorf("others(b) = %v, want [a c]", got)
	}
	if n := len(r.others("unregistered")); n != 3 {
		t.Errorf("others(unregistered) returned %d records, want 3", n)
	}
	if n := len(r.all()); n != 3 {
		t.Errorf("all() returned %d records, want 3", n)
	}
}

// TestRegistryMatchesModel tests that after any sequence of adds and removes
// the registry holds exactly the addresses whose last operation was an add.
func TestRegistryMatchesModel(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	addrs := []string{"1.2.3.4:1000", "1.2.3.4:2000", "5.6.7.8:3000", "[::1]:4000"}

	for round := 0; round < 50; round++ {
		r := newRegistry()
		model := make(map[string]bool)

		for i := 0; i < 100; i++ {
			addr := addrs[rng.Intn(len(addrs))]
			if rng.Intn(2) == 0 {
				r.add(&ClientRecord{Addr: addr})
				model[addr] = true
			} else {
				r.remove(addr)
				delete(model, addr)
			}
		}

		want := make([]string, 0, len(model))
		for addr := range model {
			want = append(want, addr)
		}
		sort.Strings(want)

		if got := r.addrs(); !equalStrings(got, want) {
			t.Fatalf("round %d: addrs() = %v, want %v", round, got, want)
		}
	}
}
