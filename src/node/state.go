package node

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a node: WaitingForInit, Running, or Shutdown
type State uint32

const (
	// WaitingForInit is the initial state. The node has no id yet and only
	// accepts an init message.
	WaitingForInit State = iota
	// Running is the steady state, entered once init has been answered.
	Running
	// Shutdown is shutdown
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case WaitingForInit:
		return "WaitingForInit"
	case Running:
		return "Running"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
	wg    sync.WaitGroup
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Start a goroutine and add it to waitgroup. Every inbound message must be
// handled, so there is no cap.
func (b *state) goFunc(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
