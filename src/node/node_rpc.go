package node

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/murmur/src/ids"
	"github.com/mosaicnetworks/murmur/src/proto"
	"github.com/mosaicnetworks/murmur/src/telemetry"
	"github.com/sirupsen/logrus"
)

var errRequestTimeout = errors.New("request timeout")

// unmatchedReplyText is the text of the error answering a reply that no
// outstanding request is waiting for.
const unmatchedReplyText = "Got a reply to a message that was not sent"

// SendUntilAcked sends payload to dest as a request and waits for the reply,
// retrying until isSuccess accepts one. Every attempt carries a fresh msg_id.
// The first attempt waits RPCTimeout, and the wait doubles after each failed
// attempt, up to RPCMaxTimeout when it is set. With RPCMaxAttempts set, the
// call gives up with ErrAttemptsExhausted; otherwise it only returns early
// with ErrShutdown or a transport error.
func (n *Node) SendUntilAcked(dest ids.PeerID, payload proto.Payload, isSuccess func(proto.Payload) bool) error {
	if n.getState() == WaitingForInit {
		return ErrNotInitialized
	}

	start := time.Now()

	for attempt := 1; ; attempt++ {
		if max := n.conf.RPCMaxAttempts; max > 0 && attempt > max {
			return fmt.Errorf("%w: %s after %d attempts", ErrAttemptsExhausted, dest, max)
		}

		timeout := n.conf.BackoffTimeout(attempt)

		resp, err := n.request(dest, payload, timeout)

		switch {
		case errors.Is(err, errRequestTimeout):
			telemetry.RPCAttempts.WithLabelValues("timeout").Inc()
			n.logger.WithFields(logrus.Fields{
				"dest":    dest,
				"type":    payload.Type(),
				"attempt": attempt,
				"timeout": timeout,
			}).Warn("Request timed out, retrying")
		case err != nil:
			return err
		case isSuccess(resp.Body.Payload):
			telemetry.RPCAttempts.WithLabelValues("acked").Inc()
			telemetry.RPCDuration.Observe(time.Since(start).Seconds())
			return nil
		default:
			telemetry.RPCAttempts.WithLabelValues("rejected").Inc()
			fields := logrus.Fields{
				"dest":    dest,
				"type":    payload.Type(),
				"attempt": attempt,
				"reply":   resp.Body.Type(),
			}
			if perr, ok := resp.Body.Payload.(*proto.Error); ok {
				fields["error"] = perr.Error()
			}
			n.logger.WithFields(fields).Warn("Request rejected, retrying")
		}
	}
}

// request performs a single attempt. The reply slot is registered before the
// request is queued, and removed on the way out whatever the outcome, so a
// late reply to this attempt is treated as unmatched.
func (n *Node) request(dest ids.PeerID, payload proto.Payload, timeout time.Duration) (*proto.Envelope, error) {
	msgID := n.gen.Next()

	promise := newReplyPromise(msgID)
	n.pending.Store(uint64(msgID), promise)
	telemetry.PendingReplies.Inc()
	defer n.forget(msgID)

	if err := n.send(proto.NewRequest(n.self, dest, msgID, payload)); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case env := <-promise.respCh:
		return env, nil
	case <-timer.C:
		return nil, errRequestTimeout
	case <-n.shutdownCh:
		return nil, ErrShutdown
	}
}

func (n *Node) forget(msgID ids.MessageID) {
	if _, ok := n.pending.LoadAndDelete(uint64(msgID)); ok {
		telemetry.PendingReplies.Dec()
	}
}

/*******************************************************************************
DISPATCH
*******************************************************************************/

func (n *Node) processEnvelope(env *proto.Envelope) {
	if env.Dest != n.self {
		n.logger.WithFields(logrus.Fields{
			"src":  env.Src,
			"dest": env.Dest,
			"type": env.Body.Type(),
		}).Debug("Discarding message for another destination")
		return
	}

	if env.Body.IsReply() {
		n.processReply(env)
		return
	}

	switch p := env.Body.Payload.(type) {
	case *proto.Echo:
		n.reply(env, &proto.EchoOk{Echo: p.Echo})
	case *proto.Generate:
		n.reply(env, &proto.GenerateOk{ID: n.gen.Next()})
	case *proto.Read:
		n.reply(env, &proto.ReadOk{Messages: n.Seen()})
	case *proto.Topology:
		n.setTopology(p.Topology)
		n.reply(env, &proto.TopologyOk{})
	case *proto.Broadcast:
		n.onBroadcast(env, p)
	default:
		n.logger.WithFields(logrus.Fields{
			"src":  env.Src,
			"type": env.Body.Type(),
		}).Debug("Unsupported message")
		n.reply(env, proto.NewError(proto.NotSupported, "Not supported"))
	}
}

// processReply hands a reply to the request waiting for it. A reply nobody
// waits for, typically a late answer to an attempt that already timed out, is
// answered with a PreconditionFailed error. The error goes out even when the
// stray reply has no msg_id; it then carries no in_reply_to and, having no
// msg_id itself, is never answered in turn.
func (n *Node) processReply(env *proto.Envelope) {
	inReplyTo := *env.Body.InReplyTo

	if promise, ok := n.pending.LoadAndDelete(uint64(inReplyTo)); ok {
		telemetry.PendingReplies.Dec()
		promise.respond(env)
		return
	}

	telemetry.UnmatchedReplies.Inc()

	n.logger.WithFields(logrus.Fields{
		"src":         env.Src,
		"type":        env.Body.Type(),
		"in_reply_to": inReplyTo,
	}).Warn("Reply to a message that was not sent")

	n.send(proto.NewReply(n.self, env, proto.NewError(proto.PreconditionFailed, unmatchedReplyText)))
}

// reply answers req, if its sender expects an answer.
func (n *Node) reply(req *proto.Envelope, p proto.Payload) {
	if !req.Body.ExpectsReply() {
		return
	}
	n.send(proto.NewReply(n.self, req, p))
}

/*******************************************************************************
GOSSIP
*******************************************************************************/

// onBroadcast acknowledges a gossip value and, the first time the value is
// seen, forwards it to every neighbor except the node it came from. The
// handler returns once every neighbor has acknowledged the value.
func (n *Node) onBroadcast(env *proto.Envelope, b *proto.Broadcast) {
	fresh := n.seen.Add(uint64(b.Message))

	n.reply(env, &proto.BroadcastOk{})

	if !fresh {
		return
	}

	telemetry.GossipValues.Inc()

	targets := n.fanOut(env.Src)

	n.logger.WithFields(logrus.Fields{
		"value":   b.Message,
		"from":    env.Src,
		"targets": targets,
	}).Debug("Gossiping new value")

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(peer ids.NodeID) {
			defer wg.Done()
			err := n.SendUntilAcked(ids.Node(peer), &proto.Broadcast{Message: b.Message}, proto.IsBroadcastOk)
			if err != nil && !errors.Is(err, ErrShutdown) {
				n.logger.WithError(err).WithField("peer", peer).Error("Failed to gossip value")
			}
		}(target)
	}
	wg.Wait()
}

// fanOut returns the neighbors a value received from src is forwarded to.
// Clients and stores are not gossip participants, so only a node sender is
// excluded.
func (n *Node) fanOut(src ids.PeerID) []ids.NodeID {
	targets := ids.ExcludeNode(n.Neighbors(), n.id)
	if from, ok := src.NodeID(); ok {
		targets = ids.ExcludeNode(targets, from)
	}
	return targets
}
