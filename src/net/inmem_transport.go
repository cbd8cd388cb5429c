package net

import (
	"sync"

	"github.com/mosaicnetworks/murmur/src/ids"
	"github.com/mosaicnetworks/murmur/src/proto"
)

// DropFunc decides whether an outbound envelope is lost on the way. It is used
// by tests to simulate an unreliable network.
type DropFunc func(env *proto.Envelope) bool

// InmemTransport Implements the Transport interface, to allow nodes to be
// tested in-memory without going through a process's standard streams.
// Transports are wired together with Connect; an envelope is delivered to the
// transport registered for its destination, and silently lost when there is
// none.
type InmemTransport struct {
	sync.RWMutex
	localID    ids.PeerID
	consumerCh chan *proto.Envelope
	outCh      chan *proto.Envelope
	peers      map[ids.PeerID]*InmemTransport
	drop       DropFunc

	listenOnce   sync.Once
	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
}

// NewInmemTransport is used to initialize a new transport for the peer id.
// The id only names the transport for routing; a node still learns its own
// id from the init message.
func NewInmemTransport(id ids.PeerID) *InmemTransport {
	return &InmemTransport{
		localID:    id,
		consumerCh: make(chan *proto.Envelope, 64),
		outCh:      make(chan *proto.Envelope, 64),
		peers:      make(map[ids.PeerID]*InmemTransport),
		shutdownCh: make(chan struct{}),
	}
}

// LocalID returns the id the transport was created for.
func (i *InmemTransport) LocalID() ids.PeerID {
	return i.localID
}

// Listen starts the goroutine that delivers queued envelopes.
func (i *InmemTransport) Listen() {
	i.listenOnce.Do(func() {
		go i.deliverLoop()
	})
}

// Consumer implements the Transport interface. The channel is never closed;
// Close only stops deliveries.
func (i *InmemTransport) Consumer() <-chan *proto.Envelope {
	return i.consumerCh
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(env *proto.Envelope) error {
	select {
	case i.outCh <- env:
		return nil
	case <-i.shutdownCh:
		return ErrTransportShutdown
	}
}

// Err implements the Transport interface. In-memory streams never fail.
func (i *InmemTransport) Err() error {
	return nil
}

// Deliver places an envelope directly on this transport's inbound queue, as if
// it had arrived from the network.
func (i *InmemTransport) Deliver(env *proto.Envelope) error {
	select {
	case i.consumerCh <- env:
		return nil
	case <-i.shutdownCh:
		return ErrTransportShutdown
	}
}

// SetDropFunc installs a filter applied to every outbound envelope. A nil
// filter delivers everything.
func (i *InmemTransport) SetDropFunc(fn DropFunc) {
	i.Lock()
	defer i.Unlock()
	i.drop = fn
}

func (i *InmemTransport) deliverLoop() {
	for {
		select {
		case env := <-i.outCh:
			i.deliver(env)
		case <-i.shutdownCh:
			return
		}
	}
}

func (i *InmemTransport) deliver(env *proto.Envelope) {
	i.RLock()
	peer, ok := i.peers[env.Dest]
	drop := i.drop
	i.RUnlock()

	if !ok || (drop != nil && drop(env)) {
		return
	}

	select {
	case peer.consumerCh <- env:
	case <-peer.shutdownCh:
	case <-i.shutdownCh:
	}
}

// Connect is used to connect this transport to another transport for
// a given peer id. This allows for local routing.
func (i *InmemTransport) Connect(peer ids.PeerID, t *InmemTransport) {
	i.Lock()
	defer i.Unlock()
	i.peers[peer] = t
}

// Disconnect is used to remove the ability to route to a given peer.
func (i *InmemTransport) Disconnect(peer ids.PeerID) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, peer)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[ids.PeerID]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.shutdownLock.Lock()
	defer i.shutdownLock.Unlock()

	if !i.shutdown {
		close(i.shutdownCh)
		i.shutdown = true
	}
	i.DisconnectAll()
	return nil
}

// ConnectAll connects every pair of the given transports, in both
// directions, keyed by their local ids.
func ConnectAll(transports ...*InmemTransport) {
	for _, a := range transports {
		for _, b := range transports {
			if a != b {
				a.Connect(b.LocalID(), b)
			}
		}
	}
}
