package node

import (
	"bufio"
	"encoding/json"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/net"
)

// TestStreamSession drives a node the way the harness does: JSON lines on its
// input, JSON lines read back from its output.
func TestStreamSession(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	conf := config.NewTestConfig(t, common.TestLogLevel)
	trans := net.NewStreamTransport(inR, outW, conf.InboundBuffer, conf.OutboundBuffer, common.NewTestEntry(t, common.TestLogLevel))
	trans.Listen()

	node := NewNode(conf, trans)

	lines := make(chan map[string]interface{}, 16)
	go func() {
		scanner := bufio.NewScanner(outR)
		for scanner.Scan() {
			var m map[string]interface{}
			if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
				t.Errorf("invalid output line %q: %v", scanner.Text(), err)
				return
			}
			lines <- m
		}
		close(lines)
	}()

	write := func(line string) {
		if _, err := io.WriteString(inW, line+"\n"); err != nil {
			t.Fatalf("err: %v", err)
		}
	}
	read := func() map[string]interface{} {
		select {
		case m, ok := <-lines:
			if !ok {
				t.Fatalf("output closed")
			}
			return m
		case <-time.After(testWait):
			t.Fatalf("timeout waiting for output")
		}
		return nil
	}

	go io.WriteString(inW, `{"src":"c0","dest":"n3","body":{"type":"init","msg_id":1,"node_id":"n3","node_ids":["n1","n2","n3"]}}`+"\n")
	if err := node.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}

	runErr := make(chan error, 1)
	go func() { runErr <- node.Run() }()

	expected := map[string]interface{}{
		"src":  "n3",
		"dest": "c0",
		"body": map[string]interface{}{"type": "init_ok", "in_reply_to": float64(1)},
	}
	if m := read(); !reflect.DeepEqual(m, expected) {
		t.Fatalf("expected %v, got %v", expected, m)
	}

	write(`{"src":"c0","dest":"n3","body":{"type":"echo","msg_id":2,"echo":"hello"}}`)
	expected = map[string]interface{}{
		"src":  "n3",
		"dest": "c0",
		"body": map[string]interface{}{"type": "echo_ok", "in_reply_to": float64(2), "echo": "hello"},
	}
	if m := read(); !reflect.DeepEqual(m, expected) {
		t.Fatalf("expected %v, got %v", expected, m)
	}

	write(`{"src":"c0","dest":"n3","body":{"type":"read","msg_id":3}}`)
	expected = map[string]interface{}{
		"src":  "n3",
		"dest": "c0",
		"body": map[string]interface{}{"type": "read_ok", "in_reply_to": float64(3), "messages": []interface{}{}},
	}
	if m := read(); !reflect.DeepEqual(m, expected) {
		t.Fatalf("expected %v, got %v", expected, m)
	}

	// end of input is a clean stop
	inW.Close()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run should return nil on end of input, got %v", err)
		}
	case <-time.After(testWait):
		t.Fatalf("Run did not return at end of input")
	}

	node.Shutdown()
	outW.Close()
}

func TestStreamMalformedInput(t *testing.T) {
	inR, inW := io.Pipe()

	conf := config.NewTestConfig(t, common.TestLogLevel)
	trans := net.NewStreamTransport(inR, io.Discard, conf.InboundBuffer, conf.OutboundBuffer, common.NewTestEntry(t, common.TestLogLevel))
	trans.Listen()

	node := NewNode(conf, trans)
	defer node.Shutdown()

	go io.WriteString(inW, `{"src":"c0","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1"]}}`+"\n")
	if err := node.Init(); err != nil {
		t.Fatalf("err: %v", err)
	}

	go io.WriteString(inW, "not json\n")

	if err := node.Run(); err == nil {
		t.Fatalf("Run should report the malformed line")
	}
}
