package proto

import (
	"github.com/mosaicnetworks/murmur/src/ids"
)

// Envelope is one transmitted unit. An Envelope must not be modified once it
// has been handed to a transport.
type Envelope struct {
	Src  ids.PeerID
	Dest ids.PeerID
	Body Body
}

// Body holds the correlation ids and the payload of a message. MsgID is set
// when the sender expects a reply. InReplyTo is set when the message is
// itself a reply, and echoes the MsgID of the request.
type Body struct {
	MsgID     *ids.MessageID
	InReplyTo *ids.MessageID
	Payload   Payload
}

// NewRequest returns an envelope expecting a reply correlated by msgID.
func NewRequest(src, dest ids.PeerID, msgID ids.MessageID, p Payload) *Envelope {
	return &Envelope{
		Src:  src,
		Dest: dest,
		Body: Body{
			MsgID:   &msgID,
			Payload: p,
		},
	}
}

// NewMessage returns an envelope that expects no reply.
func NewMessage(src, dest ids.PeerID, p Payload) *Envelope {
	return &Envelope{
		Src:  src,
		Dest: dest,
		Body: Body{Payload: p},
	}
}

// NewReply returns the reply to req, sent from src back to req's sender. The
// reply's InReplyTo echoes req's MsgID, and is left unset when req carried
// none.
func NewReply(src ids.PeerID, req *Envelope, p Payload) *Envelope {
	reply := &Envelope{
		Src:  src,
		Dest: req.Src,
		Body: Body{Payload: p},
	}
	if req.Body.MsgID != nil {
		id := *req.Body.MsgID
		reply.Body.InReplyTo = &id
	}
	return reply
}

// ExpectsReply reports whether the sender of this body waits for a reply.
func (b Body) ExpectsReply() bool {
	return b.MsgID != nil
}

// IsReply reports whether this body answers an earlier request.
func (b Body) IsReply() bool {
	return b.InReplyTo != nil
}

// Type returns the payload's type tag, or "" when there is no payload.
func (b Body) Type() string {
	if b.Payload == nil {
		return ""
	}
	return b.Payload.Type()
}
