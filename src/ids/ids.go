package ids

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	nodePrefix   = "n"
	clientPrefix = "c"
)

// ParseError is returned when a textual identifier does not match any of the
// legal wire forms.
type ParseError struct {
	Kind  string
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Kind, e.Input, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Kind, e.Input)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NodeID identifies a participant node. Its wire form is "n<integer>".
type NodeID uint64

// ParseNodeID parses the wire form of a NodeID.
func ParseNodeID(s string) (NodeID, error) {
	n, err := parsePrefixed(s, nodePrefix, "node id")
	return NodeID(n), err
}

func (id NodeID) String() string {
	return nodePrefix + strconv.FormatUint(uint64(id), 10)
}

// MarshalText implements encoding.TextMarshaler.
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeID) UnmarshalText(text []byte) error {
	n, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*id = n
	return nil
}

// ClientID identifies an external harness client. Its wire form is
// "c<integer>".
type ClientID uint64

// ParseClientID parses the wire form of a ClientID.
func ParseClientID(s string) (ClientID, error) {
	n, err := parsePrefixed(s, clientPrefix, "client id")
	return ClientID(n), err
}

func (id ClientID) String() string {
	return clientPrefix + strconv.FormatUint(uint64(id), 10)
}

// Store enumerates the well-known key-value services of the harness.
type Store uint8

const (
	// SeqKV is the sequentially consistent store.
	SeqKV Store = iota + 1
	// LinKV is the linearizable store.
	LinKV
)

// ParseStore parses a store name.
func ParseStore(s string) (Store, error) {
	switch s {
	case "seq-kv":
		return SeqKV, nil
	case "lin-kv":
		return LinKV, nil
	default:
		return 0, &ParseError{Kind: "store", Input: s}
	}
}

func (s Store) String() string {
	switch s {
	case SeqKV:
		return "seq-kv"
	case LinKV:
		return "lin-kv"
	default:
		return "unknown-store"
	}
}

func parsePrefixed(s, prefix, kind string) (uint64, error) {
	if !strings.HasPrefix(s, prefix) {
		return 0, &ParseError{Kind: kind, Input: s}
	}
	digits := s[len(prefix):]
	// one spelling per id: no leading zeros
	if digits == "" || (len(digits) > 1 && digits[0] == '0') {
		return 0, &ParseError{Kind: kind, Input: s}
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, &ParseError{Kind: kind, Input: s, Err: err}
	}
	return n, nil
}
