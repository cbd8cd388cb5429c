// Package node implements the reactive component of a murmur node.
//
// A Node is created with a Transport and no identity. Init consumes the first
// inbound message, which must be an init assigning the node's id, and answers
// it. Run then hands every inbound message to its own goroutine, so messages
// are handled concurrently and in no particular order.
//
// Dispatch
//
// A message addressed to another node is dropped. A reply (a message with
// in_reply_to) resolves the request waiting for it, or is answered with a
// precondition_failed error when no request is waiting. Any other message is
// routed on its payload type: echo, generate, read, topology and broadcast
// are served, anything else is answered with not_supported.
//
// RPC
//
// SendUntilAcked sends a request and waits for an acceptable reply, retrying
// with exponential backoff. Each attempt has its own msg_id, so a reply to an
// abandoned attempt is recognised as stray rather than mistaken for a reply
// to the current one.
//
// Gossip
//
// Broadcast values are flood-filled along the topology. A node acknowledges a
// value immediately and, the first time it sees it, forwards it to every
// neighbor except the node it came from, retrying each neighbor until it
// acknowledges. A value already seen is acknowledged and not forwarded, which
// terminates the flood.
package node
