package ids

import (
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
)

func TestParsePeerID(t *testing.T) {
	cases := []struct {
		in   string
		want PeerID
	}{
		{"n0", Node(0)},
		{"n17", Node(17)},
		{"c3", Client(3)},
		{"seq-kv", StoreID(SeqKV)},
		{"lin-kv", StoreID(LinKV)},
	}

	for _, c := range cases {
		got, err := ParsePeerID(c.in)
		if err != nil {
			t.Fatalf("%s: err: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%s: got %#v, expected %#v", c.in, got, c.want)
		}
		if got.String() != c.in {
			t.Fatalf("%s: String() returned %s", c.in, got.String())
		}
	}
}

func TestParsePeerIDInvalid(t *testing.T) {
	for _, in := range []string{"", "n", "c", "x1", "n-1", "nabc", "c1.5", "kv", "N1", "n18446744073709551616", "n01", "n00", "c007"} {
		_, err := ParsePeerID(in)
		if err == nil {
			t.Fatalf("%q: expected error", in)
		}
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("%q: expected *ParseError, got %T", in, err)
		}
	}
}

func TestPeerIDAccessors(t *testing.T) {
	p := Node(4)
	if n, ok := p.NodeID(); !ok || n != 4 {
		t.Fatalf("NodeID() = %v, %v", n, ok)
	}
	if _, ok := p.ClientID(); ok {
		t.Fatalf("node reported as client")
	}
	if !p.IsNode() {
		t.Fatalf("IsNode() should be true")
	}

	c := Client(4)
	if c == p {
		t.Fatalf("client and node with same number must differ")
	}
	if c.IsNode() {
		t.Fatalf("client reported as node")
	}

	s := StoreID(LinKV)
	if st, ok := s.Store(); !ok || st != LinKV {
		t.Fatalf("Store() = %v, %v", st, ok)
	}

	var zero PeerID
	if !zero.IsZero() {
		t.Fatalf("zero PeerID should report IsZero")
	}
	if _, err := zero.MarshalText(); err == nil {
		t.Fatalf("marshalling zero PeerID should fail")
	}
}

func TestNodeIDText(t *testing.T) {
	var id NodeID
	if err := id.UnmarshalText([]byte("n42")); err != nil {
		t.Fatalf("err: %v", err)
	}
	if id != 42 {
		t.Fatalf("got %d", id)
	}
	if err := id.UnmarshalText([]byte("c42")); err == nil {
		t.Fatalf("client form should not parse as node id")
	}
	b, _ := NodeID(7).MarshalText()
	if string(b) != "n7" {
		t.Fatalf("got %s", b)
	}
}

func TestExcludeNode(t *testing.T) {
	got := ExcludeNode([]NodeID{1, 2, 3, 2}, 2)
	if !reflect.DeepEqual(got, []NodeID{1, 3}) {
		t.Fatalf("got %v", got)
	}
}

func TestUniqueNodes(t *testing.T) {
	got := UniqueNodes([]NodeID{3, 1, 3, 2, 1})
	if !reflect.DeepEqual(got, []NodeID{3, 1, 2}) {
		t.Fatalf("got %v", got)
	}
	if got := UniqueNodes(nil); len(got) != 0 {
		t.Fatalf("got %v", got)
	}
}

func TestGeneratorMonotonic(t *testing.T) {
	g := NewGenerator(3)

	prev := g.Next()
	if uint64(prev)>>32 != 3 {
		t.Fatalf("high bits should hold the node id, got %x", uint64(prev))
	}
	for i := 0; i < 1000; i++ {
		next := g.Next()
		if next <= prev {
			t.Fatalf("ids not strictly increasing: %d then %d", prev, next)
		}
		prev = next
	}
}

func TestGeneratorDisjointNodes(t *testing.T) {
	g1 := NewGenerator(1)
	g2 := NewGenerator(2)

	seen := make(map[MessageID]bool)
	for i := 0; i < 500; i++ {
		for _, id := range []MessageID{g1.Next(), g2.Next()} {
			if seen[id] {
				t.Fatalf("duplicate id %d", id)
			}
			seen[id] = true
		}
	}
}

func TestGeneratorConcurrent(t *testing.T) {
	g := NewGenerator(9)

	const workers, perWorker = 8, 250
	results := make([][]MessageID, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				results[w] = append(results[w], g.Next())
			}
		}(w)
	}
	wg.Wait()

	var all []MessageID
	for _, r := range results {
		for i := 1; i < len(r); i++ {
			if r[i] <= r[i-1] {
				t.Fatalf("per-goroutine sequence not increasing")
			}
		}
		all = append(all, r...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i := 1; i < len(all); i++ {
		if all[i] == all[i-1] {
			t.Fatalf("duplicate id %d", all[i])
		}
	}
	if len(all) != workers*perWorker {
		t.Fatalf("expected %d ids, got %d", workers*perWorker, len(all))
	}
}
