package proto

import (
	"github.com/mosaicnetworks/murmur/src/ids"
)

// Payload type tags, as they appear in the "type" field of a message body.
const (
	TypeEcho        = "echo"
	TypeEchoOk      = "echo_ok"
	TypeInit        = "init"
	TypeInitOk      = "init_ok"
	TypeBroadcast   = "broadcast"
	TypeBroadcastOk = "broadcast_ok"
	TypeRead        = "read"
	TypeReadOk      = "read_ok"
	TypeGenerate    = "generate"
	TypeGenerateOk  = "generate_ok"
	TypeTopology    = "topology"
	TypeTopologyOk  = "topology_ok"
	TypeError       = "error"
)

// Payload is the closed set of message kinds. Only types of this package
// implement it.
type Payload interface {
	Type() string
	payload()
}

// Echo asks the receiver to send the string back.
type Echo struct {
	Echo string
}

// EchoOk answers an Echo with the same string.
type EchoOk struct {
	Echo string
}

// Init is the first message a node receives. It assigns the node's id and
// lists every node of the cluster.
type Init struct {
	NodeID  ids.NodeID
	NodeIDs []ids.NodeID
}

// InitOk acknowledges an Init.
type InitOk struct{}

// Broadcast carries a gossip value.
type Broadcast struct {
	Message ids.MessageID
}

// BroadcastOk acknowledges a Broadcast, whether or not the value was new.
type BroadcastOk struct{}

// Read requests every gossip value seen so far.
type Read struct{}

// ReadOk lists the gossip values seen by the responder.
type ReadOk struct {
	Messages []ids.MessageID
}

// Generate requests a cluster-wide unique id.
type Generate struct{}

// GenerateOk carries a freshly generated unique id.
type GenerateOk struct {
	ID ids.MessageID
}

// Topology assigns the neighbor mapping used for gossip.
type Topology struct {
	Topology map[ids.NodeID][]ids.NodeID
}

// TopologyOk acknowledges a Topology.
type TopologyOk struct{}

func (*Echo) Type() string        { return TypeEcho }
func (*EchoOk) Type() string      { return TypeEchoOk }
func (*Init) Type() string        { return TypeInit }
func (*InitOk) Type() string      { return TypeInitOk }
func (*Broadcast) Type() string   { return TypeBroadcast }
func (*BroadcastOk) Type() string { return TypeBroadcastOk }
func (*Read) Type() string        { return TypeRead }
func (*ReadOk) Type() string      { return TypeReadOk }
func (*Generate) Type() string    { return TypeGenerate }
func (*GenerateOk) Type() string  { return TypeGenerateOk }
func (*Topology) Type() string    { return TypeTopology }
func (*TopologyOk) Type() string  { return TypeTopologyOk }
func (*Error) Type() string       { return TypeError }

func (*Echo) payload()        {}
func (*EchoOk) payload()      {}
func (*Init) payload()        {}
func (*InitOk) payload()      {}
func (*Broadcast) payload()   {}
func (*BroadcastOk) payload() {}
func (*Read) payload()        {}
func (*ReadOk) payload()      {}
func (*Generate) payload()    {}
func (*GenerateOk) payload()  {}
func (*Topology) payload()    {}
func (*TopologyOk) payload()  {}
func (*Error) payload()       {}

// Unknown stands for a well-formed message whose type this node does not
// implement. It lets the receiver answer NotSupported instead of treating the
// line as malformed.
type Unknown struct {
	Tag string
}

func (u *Unknown) Type() string { return u.Tag }

func (*Unknown) payload() {}

// IsBroadcastOk is the success predicate used when gossiping a value.
func IsBroadcastOk(p Payload) bool {
	_, ok := p.(*BroadcastOk)
	return ok
}
