package node

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/config"
	"github.com/mosaicnetworks/murmur/src/ids"
	"github.com/mosaicnetworks/murmur/src/net"
	"github.com/mosaicnetworks/murmur/src/proto"
)

const (
	// how long to wait for an expected message
	testWait = time.Second
	// how long to watch for a message that must not arrive
	testQuiet = 100 * time.Millisecond
)

// cluster is a set of nodes and a client, all fully connected through
// in-memory transports. Peers that tests drive by hand are plain transports.
type cluster struct {
	t      *testing.T
	client *net.InmemTransport
	nodes  map[ids.NodeID]*Node
	trans  map[ids.PeerID]*net.InmemTransport
	msgID  ids.MessageID
}

func newCluster(t *testing.T, conf func(*config.Config), nodeIDs []ids.NodeID, fakes ...ids.NodeID) *cluster {
	c := &cluster{
		t:      t,
		client: net.NewInmemTransport(ids.Client(1)),
		nodes:  make(map[ids.NodeID]*Node),
		trans:  make(map[ids.PeerID]*net.InmemTransport),
	}

	all := []*net.InmemTransport{c.client}
	c.client.Listen()
	t.Cleanup(func() { c.client.Close() })

	for _, id := range nodeIDs {
		tr := net.NewInmemTransport(ids.Node(id))
		tr.Listen()
		c.trans[ids.Node(id)] = tr
		all = append(all, tr)

		cfg := config.NewTestConfig(t, common.TestLogLevel)
		if conf != nil {
			conf(cfg)
		}
		c.nodes[id] = NewNode(cfg, tr)
	}

	for _, id := range fakes {
		tr := net.NewInmemTransport(ids.Node(id))
		tr.Listen()
		t.Cleanup(func() { tr.Close() })
		c.trans[ids.Node(id)] = tr
		all = append(all, tr)
	}

	net.ConnectAll(all...)

	for _, id := range nodeIDs {
		node := c.nodes[id]

		reply := c.call(ids.Node(id), &proto.Init{NodeID: id, NodeIDs: nodeIDs}, node.Init)
		if _, ok := reply.Body.Payload.(*proto.InitOk); !ok {
			t.Fatalf("expected init_ok from %s, got %s", id, reply.Body.Type())
		}

		node.RunAsync()
		t.Cleanup(node.Shutdown)
	}

	return c
}

// call sends a request from the client and returns the reply. When step is
// given, it runs after the request is queued and before the reply is read.
func (c *cluster) call(dest ids.PeerID, p proto.Payload, step ...func() error) *proto.Envelope {
	c.t.Helper()

	c.msgID++
	msgID := c.msgID

	if err := c.client.Send(proto.NewRequest(ids.Client(1), dest, msgID, p)); err != nil {
		c.t.Fatalf("err: %v", err)
	}
	for _, s := range step {
		if err := s(); err != nil {
			c.t.Fatalf("err: %v", err)
		}
	}

	reply := expect(c.t, c.client)
	if reply.Body.InReplyTo == nil || *reply.Body.InReplyTo != msgID {
		c.t.Fatalf("expected a reply to %d, got %+v", msgID, reply.Body)
	}
	return reply
}

func (c *cluster) setTopology(topology map[ids.NodeID][]ids.NodeID) {
	c.t.Helper()
	for id := range c.nodes {
		reply := c.call(ids.Node(id), &proto.Topology{Topology: topology})
		if _, ok := reply.Body.Payload.(*proto.TopologyOk); !ok {
			c.t.Fatalf("expected topology_ok, got %s", reply.Body.Type())
		}
	}
}

func expect(t *testing.T, tr net.Transport) *proto.Envelope {
	t.Helper()
	select {
	case env := <-tr.Consumer():
		return env
	case <-time.After(testWait):
		t.Fatalf("timeout waiting for a message")
	}
	return nil
}

func expectNone(t *testing.T, tr net.Transport) {
	t.Helper()
	select {
	case env := <-tr.Consumer():
		t.Fatalf("unexpected %s from %s", env.Body.Type(), env.Src)
	case <-time.After(testQuiet):
	}
}

// ack answers a request received by a fake peer.
func ack(t *testing.T, tr *net.InmemTransport, req *proto.Envelope, p proto.Payload) {
	t.Helper()
	if err := tr.Send(proto.NewReply(req.Dest, req, p)); err != nil {
		t.Fatalf("err: %v", err)
	}
}

func TestInit(t *testing.T) {
	c := newCluster(t, nil, []ids.NodeID{1, 2, 3})

	n2 := c.nodes[2]
	if n2.ID() != 2 {
		t.Fatalf("node id should be n2, not %s", n2.ID())
	}
	if !reflect.DeepEqual(n2.NodeIDs(), []ids.NodeID{1, 2, 3}) {
		t.Fatalf("unexpected membership %v", n2.NodeIDs())
	}
	if n2.GetState() != Running {
		t.Fatalf("node should be Running, not %s", n2.GetState())
	}
}

func TestInitFailure(t *testing.T) {
	client := net.NewInmemTransport(ids.Client(1))
	tr := net.NewInmemTransport(ids.Node(1))
	client.Listen()
	tr.Listen()
	defer client.Close()
	net.ConnectAll(client, tr)

	node := NewNode(config.NewTestConfig(t, common.TestLogLevel), tr)
	defer node.Shutdown()

	if err := client.Send(proto.NewRequest(ids.Client(1), ids.Node(1), 1, &proto.Echo{Echo: "hi"})); err != nil {
		t.Fatalf("err: %v", err)
	}

	err := node.Init()
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if node.GetState() != WaitingForInit {
		t.Fatalf("node should still be waiting for init, not %s", node.GetState())
	}
	if err := node.Run(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("Run should refuse to start, got %v", err)
	}

	expectNone(t, client)
}

func TestEcho(t *testing.T) {
	c := newCluster(t, nil, []ids.NodeID{1})

	reply := c.call(ids.Node(1), &proto.Echo{Echo: "hello"})

	echo, ok := reply.Body.Payload.(*proto.EchoOk)
	if !ok {
		t.Fatalf("expected echo_ok, got %s", reply.Body.Type())
	}
	if echo.Echo != "hello" {
		t.Fatalf("expected hello, got %q", echo.Echo)
	}
	if reply.Src != ids.Node(1) || reply.Dest != ids.Client(1) {
		t.Fatalf("reply routed %s -> %s", reply.Src, reply.Dest)
	}
}

func TestNotSupported(t *testing.T) {
	c := newCluster(t, nil, []ids.NodeID{1})

	for _, p := range []proto.Payload{
		&proto.Init{NodeID: 1, NodeIDs: []ids.NodeID{1}},
		&proto.Unknown{Tag: "txn"},
		&proto.InitOk{},
	} {
		reply := c.call(ids.Node(1), p)
		perr, ok := reply.Body.Payload.(*proto.Error)
		if !ok || perr.Code != proto.NotSupported {
			t.Fatalf("%s: expected not_supported, got %+v", p.Type(), reply.Body.Payload)
		}
	}

	if c.nodes[1].ID() != 1 {
		t.Fatalf("a second init must not change the node id")
	}
}

func TestNoReplyWithoutMsgID(t *testing.T) {
	c := newCluster(t, nil, []ids.NodeID{1})

	if err := c.client.Send(proto.NewMessage(ids.Client(1), ids.Node(1), &proto.Echo{Echo: "x"})); err != nil {
		t.Fatalf("err: %v", err)
	}
	expectNone(t, c.client)
}

func TestDiscardOtherDestination(t *testing.T) {
	c := newCluster(t, nil, []ids.NodeID{1})

	env := proto.NewRequest(ids.Client(1), ids.Node(9), 1, &proto.Echo{Echo: "x"})
	if err := c.trans[ids.Node(1)].Deliver(env); err != nil {
		t.Fatalf("err: %v", err)
	}
	expectNone(t, c.client)
}

func TestGenerateConcurrent(t *testing.T) {
	nodeIDs := []ids.NodeID{1, 2, 3}
	c := newCluster(t, nil, nodeIDs)

	const perNode = 50

	var (
		mu   sync.Mutex
		seen = make(map[ids.MessageID]bool)
		wg   sync.WaitGroup
	)

	for _, id := range nodeIDs {
		node := c.nodes[id]
		for i := 0; i < perNode; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v := node.gen.Next()
				mu.Lock()
				defer mu.Unlock()
				if seen[v] {
					t.Errorf("duplicate id %d", v)
				}
				seen[v] = true
			}()
		}
	}
	wg.Wait()

	// and through the wire
	for i := 0; i < 10; i++ {
		for _, id := range nodeIDs {
			reply := c.call(ids.Node(id), &proto.Generate{})
			gen, ok := reply.Body.Payload.(*proto.GenerateOk)
			if !ok {
				t.Fatalf("expected generate_ok, got %s", reply.Body.Type())
			}
			if seen[gen.ID] {
				t.Fatalf("duplicate id %d", gen.ID)
			}
			seen[gen.ID] = true
		}
	}
}

func TestTopologyAndRead(t *testing.T) {
	c := newCluster(t, nil, []ids.NodeID{1, 2})

	topology := map[ids.NodeID][]ids.NodeID{1: {2}, 2: {1}}
	c.setTopology(topology)

	if !reflect.DeepEqual(c.nodes[1].Topology(), topology) {
		t.Fatalf("topology not applied: %v", c.nodes[1].Topology())
	}
	if !reflect.DeepEqual(c.nodes[1].Neighbors(), []ids.NodeID{2}) {
		t.Fatalf("unexpected neighbors %v", c.nodes[1].Neighbors())
	}

	reply := c.call(ids.Node(1), &proto.Read{})
	read, ok := reply.Body.Payload.(*proto.ReadOk)
	if !ok {
		t.Fatalf("expected read_ok, got %s", reply.Body.Type())
	}
	if len(read.Messages) != 0 {
		t.Fatalf("expected no values, got %v", read.Messages)
	}

	// replaced wholesale
	c.setTopology(map[ids.NodeID][]ids.NodeID{})
	if len(c.nodes[1].Neighbors()) != 0 {
		t.Fatalf("topology should have been replaced")
	}
}

func TestGetStats(t *testing.T) {
	c := newCluster(t, nil, []ids.NodeID{1, 2})

	stats := c.nodes[2].GetStats()
	if stats["id"] != "n2" || stats["state"] != "Running" || stats["num_nodes"] != "2" {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestShutdownClosesTransport(t *testing.T) {
	c := newCluster(t, nil, []ids.NodeID{1})

	node := c.nodes[1]
	node.Shutdown()
	node.Shutdown()

	if node.GetState() != Shutdown {
		t.Fatalf("node should be Shutdown, not %s", node.GetState())
	}

	err := node.SendUntilAcked(ids.Node(2), &proto.Read{}, func(proto.Payload) bool { return true })
	if err == nil {
		t.Fatalf("requests should fail after shutdown")
	}
}

func TestShutdownWhileStarting(t *testing.T) {
	for i := 0; i < 20; i++ {
		client := net.NewInmemTransport(ids.Client(1))
		client.Listen()
		tr := net.NewInmemTransport(ids.Node(1))
		tr.Listen()
		net.ConnectAll(client, tr)

		node := NewNode(config.NewTestConfig(t, common.TestLogLevel), tr)

		req := proto.NewRequest(ids.Client(1), ids.Node(1), 1, &proto.Init{NodeID: 1, NodeIDs: []ids.NodeID{1}})
		if err := client.Send(req); err != nil {
			t.Fatalf("err: %v", err)
		}
		if err := node.Init(); err != nil {
			t.Fatalf("err: %v", err)
		}
		expect(t, client)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			node.RunAsync()
		}()
		node.Shutdown()
		wg.Wait()

		// a loop that got in before Shutdown was waited for; one that came
		// later was refused
		if err := node.Run(); !errors.Is(err, ErrShutdown) {
			t.Fatalf("expected ErrShutdown, got %v", err)
		}

		client.Close()
	}
}
