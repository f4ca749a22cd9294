package unreplicated

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/murmesh/pkg/app"
	"github.com/cuemby/murmesh/pkg/evt"
	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/types"
)

// e2eBus is an in-process stand-in for pkg/netw/udp: it decodes the
// envelope and redelivers it as the matching ServerEvent/ClientEvent
// directly onto the target's Session, skipping the wire entirely.
type e2eBus struct {
	server  evt.SendEvent[ServerEvent]
	clients map[types.ClientID]evt.SendEvent[ClientEvent]
}

func (b *e2eBus) deliver(dest types.Addr, buf []byte) error {
	env, err := netw.Decode(buf)
	if err != nil {
		return err
	}
	if dest.IsReplica {
		if env.Kind != KindRequest {
			return fmt.Errorf("e2eBus: unexpected kind %q to server", env.Kind)
		}
		var req Request
		if err := netw.DecodeInto(env, &req); err != nil {
			return err
		}
		return b.server.Send(EvIngressRequest{From: types.ClientAddr(req.ClientID), Req: req})
	}

	target, ok := b.clients[dest.Client]
	if !ok {
		return fmt.Errorf("e2eBus: unknown client %d", dest.Client)
	}
	if env.Kind != KindReply {
		return fmt.Errorf("e2eBus: unexpected kind %q to client", env.Kind)
	}
	var reply Reply
	if err := netw.DecodeInto(env, &reply); err != nil {
		return err
	}
	return target.Send(EvIngressReply{Reply: reply})
}

type e2eNet struct{ b *e2eBus }

func (n e2eNet) Send(dest types.Addr, buf []byte) error { return n.b.deliver(dest, buf) }

// e2eFixture wires one server and one client over the in-process bus.
type e2eFixture struct {
	b          *e2eBus
	serverSess *evt.Session[ServerEvent]
	clientSess *evt.Session[ClientEvent]
	done       chan []byte
}

func newE2EFixture(t *testing.T) *e2eFixture {
	t.Helper()
	b := &e2eBus{clients: make(map[types.ClientID]evt.SendEvent[ClientEvent])}

	s := NewServer(ServerConfig{Net: e2eNet{b: b}, App: app.NewKVStore()})
	serverSess := evt.NewSession[ServerEvent](s, 64)
	b.server = serverSess

	done := make(chan []byte, 8)
	clientID := types.ClientID(1)
	c := NewClient(ClientConfig{
		ID:      clientID,
		Server:  types.ReplicaAddr(0),
		Net:     e2eNet{b: b},
		OnReply: func(result []byte) { done <- result },
	})
	clientSess := evt.NewSession[ClientEvent](c, 8)
	c.SetTimer(clientSess.Timer())
	b.clients[clientID] = clientSess

	go serverSess.Run()
	go clientSess.Run()

	return &e2eFixture{b: b, serverSess: serverSess, clientSess: clientSess, done: done}
}

func (f *e2eFixture) close() {
	f.serverSess.Close()
	f.clientSess.Close()
}

func mustInsertOp(t *testing.T, key string, fields map[string][]byte) []byte {
	t.Helper()
	buf, err := app.EncodeOp(app.Op{Kind: app.OpInsert, Key: key, Fields: fields})
	require.NoError(t, err)
	return buf
}

func mustReadOp(t *testing.T, key string) []byte {
	t.Helper()
	buf, err := app.EncodeOp(app.Op{Kind: app.OpRead, Key: key})
	require.NoError(t, err)
	return buf
}

func TestServerAndClientCompleteInvocationEndToEnd(t *testing.T) {
	f := newE2EFixture(t)
	defer f.close()

	op := mustInsertOp(t, "k1", map[string][]byte{"v": []byte("hello")})
	require.NoError(t, f.clientSess.Send(EvInvoke{Op: op}))

	select {
	case result := <-f.done:
		res, err := app.DecodeResult(result)
		require.NoError(t, err)
		require.True(t, res.Found)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestServerAndClientApplyOperationsInOrder(t *testing.T) {
	f := newE2EFixture(t)
	defer f.close()

	require.NoError(t, f.clientSess.Send(EvInvoke{Op: mustInsertOp(t, "ctr", map[string][]byte{"n": []byte("1")})}))
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out on first invocation")
	}

	require.NoError(t, f.clientSess.Send(EvInvoke{Op: mustReadOp(t, "ctr")}))
	select {
	case result := <-f.done:
		res, err := app.DecodeResult(result)
		require.NoError(t, err)
		require.True(t, res.Found)
		require.Equal(t, []byte("1"), res.Fields["n"])
	case <-time.After(2 * time.Second):
		t.Fatal("timed out on second invocation")
	}
}
