package node

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/ids"
	"github.com/mosaicnetworks/murmur/src/net"
	"github.com/mosaicnetworks/murmur/src/proto"
	"github.com/sirupsen/logrus"
	"github.com/zhangyunhao116/skipmap"
	"github.com/zhangyunhao116/skipset"
)

var (
	// ErrNotInitialized is returned when the first inbound message is not an
	// init, or when the node is used before the handshake.
	ErrNotInitialized = errors.New("node not initialized")

	// ErrShutdown is returned by operations interrupted by Shutdown.
	ErrShutdown = errors.New("node is shutdown")

	// ErrAttemptsExhausted is returned by SendUntilAcked when RPCMaxAttempts
	// is set and no attempt was acknowledged.
	ErrAttemptsExhausted = errors.New("rpc attempts exhausted")
)

// Node defines a murmur node
type Node struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	trans net.Transport
	netCh <-chan *proto.Envelope

	// set once by Init, read-only afterwards
	id      ids.NodeID
	self    ids.PeerID
	nodeIDs []ids.NodeID
	gen     *ids.Generator

	// gossip values seen so far; only ever grows
	seen *skipset.OrderedSet[uint64]

	// outstanding requests by correlation id
	pending *skipmap.OrderedMap[uint64, *replyPromise]

	topology     map[ids.NodeID][]ids.NodeID
	topologyLock sync.RWMutex

	loop         sync.WaitGroup
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	start time.Time
}

// NewNode is a factory method that returns a Node instance. The node has no
// id until Init has consumed the init message from the transport.
func NewNode(conf *config.Config, trans net.Transport) *Node {
	node := Node{
		conf:       conf,
		logger:     conf.Logger(),
		trans:      trans,
		netCh:      trans.Consumer(),
		seen:       skipset.New[uint64](),
		pending:    skipmap.New[uint64, *replyPromise](),
		topology:   make(map[ids.NodeID][]ids.NodeID),
		shutdownCh: make(chan struct{}),
	}

	node.setState(WaitingForInit)

	return &node
}

// Init performs the startup handshake: it waits for the first inbound
// message, which must be an init, adopts the id it assigns and answers
// init_ok. Any other first message is fatal and is not answered, because the
// node has no id to answer from.
func (n *Node) Init() error {
	var env *proto.Envelope

	select {
	case e, ok := <-n.netCh:
		if !ok {
			if err := n.trans.Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrNotInitialized, err)
			}
			return fmt.Errorf("%w: input ended before init", ErrNotInitialized)
		}
		env = e
	case <-n.shutdownCh:
		return ErrShutdown
	}

	msg, ok := env.Body.Payload.(*proto.Init)
	if !ok {
		n.logger.WithFields(logrus.Fields{
			"src":  env.Src,
			"type": env.Body.Type(),
		}).Error("First message is not init")
		return fmt.Errorf("%w: first message is %q", ErrNotInitialized, env.Body.Type())
	}

	n.id = msg.NodeID
	n.self = ids.Node(msg.NodeID)
	n.nodeIDs = append([]ids.NodeID(nil), msg.NodeIDs...)
	n.gen = ids.NewGenerator(msg.NodeID)
	n.logger = n.logger.WithField("this_id", n.self.String())
	n.start = time.Now()

	n.setState(Running)

	n.logger.WithField("node_ids", n.nodeIDs).Info("Initialized")

	return n.send(proto.NewReply(n.self, env, &proto.InitOk{}))
}

// RunAsync calls Run in a separate goroutine and logs the error it returns.
// The loop is registered before RunAsync returns, so a Shutdown that follows
// always waits for it.
func (n *Node) RunAsync() {
	if err := n.enterLoop(); err != nil {
		n.logger.WithError(err).Error("Run")
		return
	}
	go func() {
		if err := n.doRun(); err != nil {
			n.logger.WithError(err).Error("Run")
		}
	}()
}

// Run invokes the main loop of the node. Every inbound message is handled in
// its own goroutine. Run returns when the inbound stream ends, with the error
// that ended it if any, or when the node is shut down.
func (n *Node) Run() error {
	if err := n.enterLoop(); err != nil {
		return err
	}
	return n.doRun()
}

// enterLoop registers the run loop with Shutdown. It holds shutdownLock so
// that the state check and loop.Add cannot interleave with Shutdown's Wait.
func (n *Node) enterLoop() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	switch n.getState() {
	case Running:
		n.loop.Add(1)
		return nil
	case Shutdown:
		return ErrShutdown
	default:
		return ErrNotInitialized
	}
}

func (n *Node) doRun() error {
	defer n.loop.Done()

	for {
		select {
		case env, ok := <-n.netCh:
			if !ok {
				n.logger.Debug("Inbound stream closed")
				return n.trans.Err()
			}
			n.goFunc(func() {
				n.processEnvelope(env)
			})
		case <-n.shutdownCh:
			return n.trans.Err()
		}
	}
}

// Shutdown interrupts outstanding requests, waits for every handler to
// return, and closes the transport, which flushes queued output.
func (n *Node) Shutdown() {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if n.getState() != Shutdown {
		n.logger.Debug("Shutdown")

		n.setState(Shutdown)

		close(n.shutdownCh)

		//the run loop must be gone before waiting on its handlers
		n.loop.Wait()
		n.waitRoutines()

		n.trans.Close()
	}
}

// ShutdownCh is closed when the node starts shutting down.
func (n *Node) ShutdownCh() <-chan struct{} {
	return n.shutdownCh
}

// send queues an envelope on the transport. A transport that has stopped
// (after a write error) takes the node down with it.
func (n *Node) send(env *proto.Envelope) error {
	err := n.trans.Send(env)
	if err != nil {
		n.logger.WithError(err).WithFields(logrus.Fields{
			"dest": env.Dest,
			"type": env.Body.Type(),
		}).Error("Failed to send")

		if errors.Is(err, net.ErrTransportShutdown) && n.getState() != Shutdown {
			go n.Shutdown()
		}
	}
	return err
}

// ID returns the id assigned by init.
func (n *Node) ID() ids.NodeID {
	return n.id
}

// GetState returns the current state of the node.
func (n *Node) GetState() State {
	return n.getState()
}

// NodeIDs returns the cluster membership announced by init.
func (n *Node) NodeIDs() []ids.NodeID {
	return append([]ids.NodeID(nil), n.nodeIDs...)
}

// Seen returns every gossip value seen so far, in ascending order.
func (n *Node) Seen() []ids.MessageID {
	values := make([]ids.MessageID, 0, n.seen.Len())
	n.seen.Range(func(v uint64) bool {
		values = append(values, ids.MessageID(v))
		return true
	})
	return values
}

// Topology returns a copy of the current neighbor mapping.
func (n *Node) Topology() map[ids.NodeID][]ids.NodeID {
	n.topologyLock.RLock()
	defer n.topologyLock.RUnlock()

	res := make(map[ids.NodeID][]ids.NodeID, len(n.topology))
	for k, v := range n.topology {
		res[k] = append([]ids.NodeID(nil), v...)
	}
	return res
}

// Neighbors returns this node's entry in the topology.
func (n *Node) Neighbors() []ids.NodeID {
	n.topologyLock.RLock()
	defer n.topologyLock.RUnlock()

	return append([]ids.NodeID(nil), n.topology[n.id]...)
}

// setTopology replaces the neighbor mapping. Neighbor lists are sets: repeated
// entries are dropped, keeping first occurrences in order.
func (n *Node) setTopology(topology map[ids.NodeID][]ids.NodeID) {
	neighbors := make(map[ids.NodeID][]ids.NodeID, len(topology))
	for id, ns := range topology {
		neighbors[id] = ids.UniqueNodes(ns)
	}
	topology = neighbors

	n.topologyLock.Lock()
	n.topology = topology
	n.topologyLock.Unlock()

	n.logger.WithField("neighbors", topology[n.id]).Debug("Topology updated")
}

// GetStats returns a summary of the node for the HTTP service.
func (n *Node) GetStats() map[string]string {
	var uptime time.Duration
	if !n.start.IsZero() {
		uptime = time.Since(n.start)
	}

	s := map[string]string{
		"id":              n.id.String(),
		"state":           n.getState().String(),
		"num_nodes":       strconv.Itoa(len(n.nodeIDs)),
		"num_neighbors":   strconv.Itoa(len(n.Neighbors())),
		"seen_values":     strconv.Itoa(n.seen.Len()),
		"pending_replies": strconv.Itoa(n.pending.Len()),
		"uptime":          uptime.Truncate(time.Millisecond).String(),
	}
	if n.getState() == WaitingForInit {
		s["id"] = ""
	}
	return s
}
