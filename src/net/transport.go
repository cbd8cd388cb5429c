package net

import (
	"errors"

	"github.com/mosaicnetworks/murmur/src/proto"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")
)

// Transport provides an interface for the message stream that connects a
// node to the harness and, through it, to the other nodes.
type Transport interface {

	// Listen starts the goroutines that feed Consumer and drain the outbound
	// queue.
	Listen()

	// Consumer returns the channel of inbound envelopes, in arrival order.
	// Implementations that own their input close it when the input ends.
	Consumer() <-chan *proto.Envelope

	// Send appends an envelope to the outbound queue. It blocks while the
	// queue is full. Envelopes are written in the order they were queued.
	Send(env *proto.Envelope) error

	// Err returns the error that terminated the inbound stream, or nil if it
	// ended normally or is still running.
	Err() error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
