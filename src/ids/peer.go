package ids

// PeerKind discriminates the variants of a PeerID.
type PeerKind uint8

const (
	// NoPeer is the kind of the zero PeerID. It is never produced by parsing.
	NoPeer PeerKind = iota
	// NodePeer is a participant node.
	NodePeer
	// ClientPeer is an external harness client.
	ClientPeer
	// StorePeer is one of the harness key-value services.
	StorePeer
)

// PeerID is the only identifier usable as the source or destination of an
// envelope. It holds exactly one of a NodeID, a ClientID or a Store.
type PeerID struct {
	kind  PeerKind
	num   uint64
	store Store
}

// Node wraps a NodeID into a PeerID.
func Node(id NodeID) PeerID {
	return PeerID{kind: NodePeer, num: uint64(id)}
}

// Client wraps a ClientID into a PeerID.
func Client(id ClientID) PeerID {
	return PeerID{kind: ClientPeer, num: uint64(id)}
}

// StoreID wraps a Store into a PeerID.
func StoreID(s Store) PeerID {
	return PeerID{kind: StorePeer, store: s}
}

// ParsePeerID tries, in order, the node form, the client form and the store
// names.
func ParsePeerID(s string) (PeerID, error) {
	if n, err := ParseNodeID(s); err == nil {
		return Node(n), nil
	}
	if c, err := ParseClientID(s); err == nil {
		return Client(c), nil
	}
	if st, err := ParseStore(s); err == nil {
		return StoreID(st), nil
	}
	return PeerID{}, &ParseError{Kind: "peer id", Input: s}
}

// Kind returns the variant held by p.
func (p PeerID) Kind() PeerKind {
	return p.kind
}

// NodeID returns the node id held by p and whether p is a node.
func (p PeerID) NodeID() (NodeID, bool) {
	if p.kind != NodePeer {
		return 0, false
	}
	return NodeID(p.num), true
}

// ClientID returns the client id held by p and whether p is a client.
func (p PeerID) ClientID() (ClientID, bool) {
	if p.kind != ClientPeer {
		return 0, false
	}
	return ClientID(p.num), true
}

// Store returns the store held by p and whether p is a store.
func (p PeerID) Store() (Store, bool) {
	if p.kind != StorePeer {
		return 0, false
	}
	return p.store, true
}

// IsNode reports whether p is a participant node.
func (p PeerID) IsNode() bool {
	return p.kind == NodePeer
}

// IsZero reports whether p is the invalid zero value.
func (p PeerID) IsZero() bool {
	return p.kind == NoPeer
}

func (p PeerID) String() string {
	switch p.kind {
	case NodePeer:
		return NodeID(p.num).String()
	case ClientPeer:
		return ClientID(p.num).String()
	case StorePeer:
		return p.store.String()
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p PeerID) MarshalText() ([]byte, error) {
	if p.IsZero() {
		return nil, &ParseError{Kind: "peer id", Input: ""}
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PeerID) UnmarshalText(text []byte) error {
	v, err := ParsePeerID(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ExcludeNode returns the nodes of the list that are not equal to id,
// preserving order.
func ExcludeNode(nodes []NodeID, id NodeID) []NodeID {
	others := make([]NodeID, 0, len(nodes))
	for _, n := range nodes {
		if n != id {
			others = append(others, n)
		}
	}
	return others
}

// UniqueNodes returns nodes without repeated ids, in order of first
// occurrence.
func UniqueNodes(nodes []NodeID) []NodeID {
	seen := make(map[NodeID]struct{}, len(nodes))
	unique := make([]NodeID, 0, len(nodes))
	for _, n := range nodes {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		unique = append(unique, n)
	}
	return unique
}
