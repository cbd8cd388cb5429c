package proto

import (
	"bytes"
	"fmt"

	"github.com/mosaicnetworks/murmur/src/ids"
	"github.com/ugorji/go/codec"
)

// jsonHandle is shared by every Marshal and Unmarshal call. codec handles are
// safe for concurrent use once configured.
var jsonHandle = newJSONHandle()

func newJSONHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.HTMLCharsAsIs = true
	return jh
}

// wireEnvelope and wireBody mirror the flattened textual record. Payload
// fields live next to the correlation ids, and only the ones relevant to
// Type are populated.
type wireEnvelope struct {
	Src  string   `codec:"src"`
	Dest string   `codec:"dest"`
	Body wireBody `codec:"body"`
}

type wireBody struct {
	Type      string  `codec:"type"`
	MsgID     *uint64 `codec:"msg_id"`
	InReplyTo *uint64 `codec:"in_reply_to"`

	Echo     *string             `codec:"echo"`
	NodeID   *string             `codec:"node_id"`
	NodeIDs  []string            `codec:"node_ids"`
	Message  *uint64             `codec:"message"`
	Messages []uint64            `codec:"messages"`
	ID       *uint64             `codec:"id"`
	Topology map[string][]string `codec:"topology"`
	Code     *int                `codec:"code"`
	Text     *string             `codec:"text"`
}

// Marshal encodes an envelope as a single line of JSON, without the trailing
// newline.
func Marshal(env *Envelope) ([]byte, error) {
	if env.Body.Payload == nil {
		return nil, fmt.Errorf("envelope from %s to %s has no payload", env.Src, env.Dest)
	}
	if env.Src.IsZero() || env.Dest.IsZero() {
		return nil, fmt.Errorf("envelope %s has no source or destination", env.Body.Type())
	}

	body := map[string]interface{}{
		"type": env.Body.Payload.Type(),
	}
	if env.Body.MsgID != nil {
		body["msg_id"] = uint64(*env.Body.MsgID)
	}
	if env.Body.InReplyTo != nil {
		body["in_reply_to"] = uint64(*env.Body.InReplyTo)
	}

	switch p := env.Body.Payload.(type) {
	case *Echo:
		body["echo"] = p.Echo
	case *EchoOk:
		body["echo"] = p.Echo
	case *Init:
		body["node_id"] = p.NodeID.String()
		body["node_ids"] = nodeStrings(p.NodeIDs)
	case *Broadcast:
		body["message"] = uint64(p.Message)
	case *ReadOk:
		messages := make([]uint64, 0, len(p.Messages))
		for _, m := range p.Messages {
			messages = append(messages, uint64(m))
		}
		body["messages"] = messages
	case *GenerateOk:
		body["id"] = uint64(p.ID)
	case *Topology:
		topology := make(map[string][]string, len(p.Topology))
		for n, neighbors := range p.Topology {
			topology[n.String()] = nodeStrings(neighbors)
		}
		body["topology"] = topology
	case *Error:
		body["code"] = int(p.Code)
		body["text"] = p.Text
	case *InitOk, *BroadcastOk, *Read, *Generate, *TopologyOk, *Unknown:
	}

	w := struct {
		Src  string                 `codec:"src"`
		Dest string                 `codec:"dest"`
		Body map[string]interface{} `codec:"body"`
	}{
		Src:  env.Src.String(),
		Dest: env.Dest.String(),
		Body: body,
	}

	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, jsonHandle)
	if err := enc.Encode(w); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes one line of JSON into an envelope. Every failure is
// reported as a MalformedRequest *Error.
func Unmarshal(data []byte) (*Envelope, error) {
	var w wireEnvelope
	dec := codec.NewDecoderBytes(data, jsonHandle)
	if err := dec.Decode(&w); err != nil {
		return nil, Malformed(err)
	}

	src, err := ids.ParsePeerID(w.Src)
	if err != nil {
		return nil, Malformed(fmt.Errorf("src: %v", err))
	}
	dest, err := ids.ParsePeerID(w.Dest)
	if err != nil {
		return nil, Malformed(fmt.Errorf("dest: %v", err))
	}

	payload, err := decodePayload(&w.Body)
	if err != nil {
		return nil, Malformed(err)
	}

	env := &Envelope{
		Src:  src,
		Dest: dest,
		Body: Body{Payload: payload},
	}
	if w.Body.MsgID != nil {
		id := ids.MessageID(*w.Body.MsgID)
		env.Body.MsgID = &id
	}
	if w.Body.InReplyTo != nil {
		id := ids.MessageID(*w.Body.InReplyTo)
		env.Body.InReplyTo = &id
	}
	return env, nil
}

func decodePayload(b *wireBody) (Payload, error) {
	switch b.Type {
	case TypeEcho:
		if b.Echo == nil {
			return nil, missing(b.Type, "echo")
		}
		return &Echo{Echo: *b.Echo}, nil
	case TypeEchoOk:
		if b.Echo == nil {
			return nil, missing(b.Type, "echo")
		}
		return &EchoOk{Echo: *b.Echo}, nil
	case TypeInit:
		if b.NodeID == nil {
			return nil, missing(b.Type, "node_id")
		}
		self, err := ids.ParseNodeID(*b.NodeID)
		if err != nil {
			return nil, err
		}
		all, err := parseNodes(b.NodeIDs)
		if err != nil {
			return nil, err
		}
		return &Init{NodeID: self, NodeIDs: all}, nil
	case TypeInitOk:
		return &InitOk{}, nil
	case TypeBroadcast:
		if b.Message == nil {
			return nil, missing(b.Type, "message")
		}
		return &Broadcast{Message: ids.MessageID(*b.Message)}, nil
	case TypeBroadcastOk:
		return &BroadcastOk{}, nil
	case TypeRead:
		return &Read{}, nil
	case TypeReadOk:
		messages := make([]ids.MessageID, 0, len(b.Messages))
		for _, m := range b.Messages {
			messages = append(messages, ids.MessageID(m))
		}
		return &ReadOk{Messages: messages}, nil
	case TypeGenerate:
		return &Generate{}, nil
	case TypeGenerateOk:
		if b.ID == nil {
			return nil, missing(b.Type, "id")
		}
		return &GenerateOk{ID: ids.MessageID(*b.ID)}, nil
	case TypeTopology:
		topology := make(map[ids.NodeID][]ids.NodeID, len(b.Topology))
		for k, v := range b.Topology {
			n, err := ids.ParseNodeID(k)
			if err != nil {
				return nil, err
			}
			neighbors, err := parseNodes(v)
			if err != nil {
				return nil, err
			}
			topology[n] = neighbors
		}
		return &Topology{Topology: topology}, nil
	case TypeTopologyOk:
		return &TopologyOk{}, nil
	case TypeError:
		if b.Code == nil {
			return nil, missing(b.Type, "code")
		}
		e := &Error{Code: ErrorCode(*b.Code)}
		if b.Text != nil {
			e.Text = *b.Text
		}
		return e, nil
	case "":
		return nil, fmt.Errorf("body has no type")
	default:
		return &Unknown{Tag: b.Type}, nil
	}
}

func missing(typ, field string) error {
	return fmt.Errorf("%s: missing field %q", typ, field)
}

func parseNodes(in []string) ([]ids.NodeID, error) {
	out := make([]ids.NodeID, 0, len(in))
	for _, s := range in {
		n, err := ids.ParseNodeID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func nodeStrings(in []ids.NodeID) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		out = append(out, n.String())
	}
	return out
}
