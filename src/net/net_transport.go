package net

import (
	"bufio"
	"bytes"
	"io"
	"sync"

	"github.com/mosaicnetworks/murmur/src/proto"
	"github.com/mosaicnetworks/murmur/src/telemetry"
	"github.com/sirupsen/logrus"
)

const (
	// initial size of the line reader buffer
	bufSize = 64 * 1024

	// longest accepted inbound line
	maxLineSize = 16 * 1024 * 1024
)

/*
StreamTransport reads envelopes from an io.Reader and writes envelopes to an
io.Writer, one JSON record per line. In production the reader is the process's
standard input and the writer its standard output.

One goroutine decodes lines and forwards them on the inbound queue. Another
drains the outbound queue and writes in strict FIFO order. Both queues are
bounded; a full outbound queue blocks Send, which is the only backpressure in
the system.

A line that cannot be decoded, or a read error, closes the inbound queue and
Err reports the cause. A write error stops the transport, after which Send
fails with ErrTransportShutdown.
*/
type StreamTransport struct {
	logger *logrus.Entry

	r io.Reader
	w *bufio.Writer

	consumeCh chan *proto.Envelope
	outCh     chan *proto.Envelope

	errLock sync.Mutex
	err     error

	listenOnce   sync.Once
	writerDone   chan struct{}
	listening    bool
	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
}

// NewStreamTransport creates a transport over the given reader and writer.
// inbound and outbound are the capacities of the two queues.
func NewStreamTransport(
	r io.Reader,
	w io.Writer,
	inbound int,
	outbound int,
	logger *logrus.Entry,
) *StreamTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &StreamTransport{
		logger:     logger,
		r:          r,
		w:          bufio.NewWriterSize(w, bufSize),
		consumeCh:  make(chan *proto.Envelope, inbound),
		outCh:      make(chan *proto.Envelope, outbound),
		writerDone: make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
}

// Listen implements the Transport interface. It returns immediately.
func (t *StreamTransport) Listen() {
	t.listenOnce.Do(func() {
		t.shutdownLock.Lock()
		t.listening = true
		t.shutdownLock.Unlock()

		go t.readLoop()
		go t.writeLoop()
	})
}

// Consumer implements the Transport interface.
func (t *StreamTransport) Consumer() <-chan *proto.Envelope {
	return t.consumeCh
}

// Send implements the Transport interface.
func (t *StreamTransport) Send(env *proto.Envelope) error {
	select {
	case t.outCh <- env:
		return nil
	case <-t.shutdownCh:
		return ErrTransportShutdown
	}
}

// Err implements the Transport interface.
func (t *StreamTransport) Err() error {
	t.errLock.Lock()
	defer t.errLock.Unlock()
	return t.err
}

func (t *StreamTransport) setErr(err error) {
	t.errLock.Lock()
	defer t.errLock.Unlock()
	if t.err == nil {
		t.err = err
	}
}

// IsShutdown is used to check if the transport is shutdown.
func (t *StreamTransport) IsShutdown() bool {
	select {
	case <-t.shutdownCh:
		return true
	default:
		return false
	}
}

// Close stops the writer after it has flushed every envelope already queued.
// The reader goroutine exits on the next line or when the input ends.
func (t *StreamTransport) Close() error {
	if t.stop() {
		<-t.writerDone
	}
	return nil
}

// stop closes shutdownCh once and reports whether the goroutines were started.
func (t *StreamTransport) stop() bool {
	t.shutdownLock.Lock()
	defer t.shutdownLock.Unlock()

	if !t.shutdown {
		t.shutdown = true
		close(t.shutdownCh)
	}
	return t.listening
}

func (t *StreamTransport) readLoop() {
	defer close(t.consumeCh)

	scanner := bufio.NewScanner(t.r)
	scanner.Buffer(make([]byte, bufSize), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		env, err := proto.Unmarshal(line)
		if err != nil {
			t.logger.WithError(err).WithField("line", string(line)).Error("Failed to decode inbound message")
			t.setErr(err)
			return
		}

		telemetry.MessagesReceived.WithLabelValues(env.Body.Type()).Inc()

		select {
		case t.consumeCh <- env:
		case <-t.shutdownCh:
			return
		}
	}

	if err := scanner.Err(); err != nil {
		t.logger.WithError(err).Error("Failed to read inbound stream")
		t.setErr(err)
		return
	}

	t.logger.Debug("Inbound stream closed")
}

func (t *StreamTransport) writeLoop() {
	defer close(t.writerDone)

	for {
		select {
		case env := <-t.outCh:
			if err := t.write(env); err != nil {
				t.logger.WithError(err).Error("Failed to write outbound message")
				t.setErr(err)
				t.stop()
				return
			}
		case <-t.shutdownCh:
			t.drain()
			return
		}
	}
}

// drain writes whatever is left in the outbound queue at shutdown.
func (t *StreamTransport) drain() {
	for {
		select {
		case env := <-t.outCh:
			if err := t.write(env); err != nil {
				t.logger.WithError(err).Error("Failed to write outbound message")
				return
			}
		default:
			return
		}
	}
}

func (t *StreamTransport) write(env *proto.Envelope) error {
	b, err := proto.Marshal(env)
	if err != nil {
		// A bad envelope is a local bug; drop it rather than kill the stream.
		t.logger.WithError(err).Error("Failed to encode outbound message")
		return nil
	}

	if _, err := t.w.Write(b); err != nil {
		return err
	}
	if err := t.w.WriteByte('\n'); err != nil {
		return err
	}

	telemetry.MessagesSent.WithLabelValues(env.Body.Type()).Inc()

	// Flush once the queue is empty so bursts share a single write.
	if len(t.outCh) == 0 {
		return t.w.Flush()
	}
	return nil
}
