package node

import (
	"github.com/mosaicnetworks/murmur/src/ids"
	"github.com/mosaicnetworks/murmur/src/proto"
)

// replyPromise is the one-shot slot an outstanding request waits on. It is
// resolved at most once, by whoever removes it from the pending table.
type replyPromise struct {
	msgID ids.MessageID
	//buffered: the waiter may have given up on this attempt already
	respCh chan *proto.Envelope
}

func newReplyPromise(msgID ids.MessageID) *replyPromise {
	return &replyPromise{
		msgID:  msgID,
		respCh: make(chan *proto.Envelope, 1),
	}
}

func (p *replyPromise) respond(env *proto.Envelope) {
	p.respCh <- env
}
