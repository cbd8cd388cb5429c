package ids

import (
	"strconv"
	"sync/atomic"
)

// MessageID is a 64-bit value unique within the node that generated it. The
// generating node's numeric id occupies the high 32 bits and a per-node
// counter the low 32 bits.
//
// The same type carries gossip values in broadcast messages, where it is an
// opaque payload rather than a correlation id.
type MessageID uint64

func (m MessageID) String() string {
	return strconv.FormatUint(uint64(m), 10)
}

// Generator mints MessageIDs for one node instance. It is safe for concurrent
// use.
type Generator struct {
	node    NodeID
	counter uint64
}

// NewGenerator returns a Generator whose ids carry node in their high bits.
func NewGenerator(node NodeID) *Generator {
	return &Generator{node: node}
}

// Next returns an id strictly greater than every id previously returned by
// this Generator. Ids from generators of different nodes never collide as long
// as the counters stay within 32 bits.
func (g *Generator) Next() MessageID {
	c := atomic.AddUint64(&g.counter, 1) - 1
	return MessageID(uint64(g.node)<<32 | c)
}

// Node returns the node id packed into the generated ids.
func (g *Generator) Node() NodeID {
	return g.node
}
