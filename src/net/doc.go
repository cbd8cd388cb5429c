// Package net implements the transports that carry envelopes between a node
// and the outside world.
//
// A Transport exposes an inbound queue (Consumer) and an outbound queue
// (Send). Inbound envelopes are delivered in arrival order, but the node
// handles them concurrently, so the only ordering guarantee of the system is
// the FIFO order in which outbound envelopes are written.
//
// There are two implementations:
//
// - Stream: line-delimited JSON over an io.Reader and io.Writer, used over
// the process's standard input and output.
//
// - Inmem: in-memory transport used for testing. Transports are connected to
// each other by peer id, and an optional drop filter simulates message loss.
package net
