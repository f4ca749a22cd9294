package unreplicated

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/murmesh/pkg/app"
	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/types"
)

type recordingNet struct {
	sent map[types.Addr][][]byte
}

func newRecordingNet() *recordingNet {
	return &recordingNet{sent: make(map[types.Addr][][]byte)}
}

func (n *recordingNet) Send(dest types.Addr, buf []byte) error {
	n.sent[dest] = append(n.sent[dest], buf)
	return nil
}

func TestServerExecutesAndReplies(t *testing.T) {
	net := newRecordingNet()
	s := NewServer(ServerConfig{Net: net, App: app.NewKVStore()})

	op, err := app.EncodeOp(app.Op{Kind: app.OpInsert, Key: "k", Fields: map[string][]byte{"v": []byte("1")}})
	require.NoError(t, err)

	clientAddr := types.ClientAddr(1)
	require.NoError(t, s.OnEvent(EvIngressRequest{From: clientAddr, Req: Request{ClientID: 1, Seq: 1, Op: op}}))

	require.Len(t, net.sent[clientAddr], 1)
	env, err := netw.Decode(net.sent[clientAddr][0])
	require.NoError(t, err)
	assert.Equal(t, KindReply, env.Kind)
}

func TestServerResendsCachedReplyForRetransmission(t *testing.T) {
	net := newRecordingNet()
	s := NewServer(ServerConfig{Net: net, App: app.NewKVStore()})
	op, _ := app.EncodeOp(app.Op{Kind: app.OpInsert, Key: "k", Fields: map[string][]byte{"v": []byte("1")}})
	clientAddr := types.ClientAddr(1)

	require.NoError(t, s.OnEvent(EvIngressRequest{From: clientAddr, Req: Request{ClientID: 1, Seq: 1, Op: op}}))
	require.NoError(t, s.OnEvent(EvIngressRequest{From: clientAddr, Req: Request{ClientID: 1, Seq: 1, Op: op}}))

	assert.Len(t, net.sent[clientAddr], 2, "retransmission must resend the cached reply, not re-execute")
}

func TestServerDropsStaleRequest(t *testing.T) {
	net := newRecordingNet()
	s := NewServer(ServerConfig{Net: net, App: app.NewKVStore()})
	op, _ := app.EncodeOp(app.Op{Kind: app.OpInsert, Key: "k", Fields: map[string][]byte{"v": []byte("1")}})
	clientAddr := types.ClientAddr(1)

	require.NoError(t, s.OnEvent(EvIngressRequest{From: clientAddr, Req: Request{ClientID: 1, Seq: 2, Op: op}}))
	require.NoError(t, s.OnEvent(EvIngressRequest{From: clientAddr, Req: Request{ClientID: 1, Seq: 1, Op: op}}))

	assert.Len(t, net.sent[clientAddr], 1, "a request older than the cached reply must be dropped silently")
}
