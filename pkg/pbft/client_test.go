package pbft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/murmesh/pkg/evt"
	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/types"
)

// recordingNet captures every broadcast/unicast buffer sent through it.
type recordingNet struct {
	sent [][]byte
}

func (n *recordingNet) Send(_ types.Addr, buf []byte) error {
	n.sent = append(n.sent, buf)
	return nil
}

func (n *recordingNet) SendAll(buf []byte) error {
	n.sent = append(n.sent, buf)
	return nil
}

// manualTimer lets a test control exactly when a Client's resend timer
// fires, without waiting on a real clock.
type manualTimer struct {
	nextID evt.TimerID
	live   map[evt.TimerID]ClientEvent
}

func newManualTimer() *manualTimer {
	return &manualTimer{live: make(map[evt.TimerID]ClientEvent)}
}

func (m *manualTimer) Set(_ time.Duration, event ClientEvent) (evt.TimerID, error) {
	m.nextID++
	m.live[m.nextID] = event
	return m.nextID, nil
}

func (m *manualTimer) Unset(id evt.TimerID) error {
	delete(m.live, id)
	return nil
}

func (m *manualTimer) fire(id evt.TimerID) (ClientEvent, bool) {
	e, ok := m.live[id]
	if ok {
		delete(m.live, id)
	}
	return e, ok
}

func TestClientInvokeBroadcastsRequestAndArmsTimer(t *testing.T) {
	net := &recordingNet{}
	timer := newManualTimer()
	c := NewClient(ClientConfig{ID: 7, N: 4, Net: net})
	c.SetTimer(timer)

	require.NoError(t, c.OnEvent(EvInvoke{Op: []byte("op1")}))
	assert.Len(t, net.sent, 1)
	assert.Len(t, timer.live, 1)

	env, err := netw.Decode(net.sent[0])
	require.NoError(t, err)
	assert.Equal(t, KindRequest, env.Kind)
}

func TestClientResendTimeoutRebroadcastsAndRearms(t *testing.T) {
	net := &recordingNet{}
	timer := newManualTimer()
	c := NewClient(ClientConfig{ID: 7, N: 4, Net: net})
	c.SetTimer(timer)

	require.NoError(t, c.OnEvent(EvInvoke{Op: []byte("op1")}))
	require.Len(t, timer.live, 1)
	var id evt.TimerID
	for k := range timer.live {
		id = k
	}
	event, ok := timer.fire(id)
	require.True(t, ok)

	require.NoError(t, c.OnEvent(event))
	assert.Len(t, net.sent, 2, "resend must rebroadcast the same outstanding request")
	assert.Len(t, timer.live, 1, "resend must rearm a fresh timer")
}

func TestClientIngressReplyCompletesInvocationAndDisarmsTimer(t *testing.T) {
	net := &recordingNet{}
	timer := newManualTimer()
	var got []byte
	c := NewClient(ClientConfig{ID: 7, N: 4, Net: net, OnReply: func(result []byte) { got = result }})
	c.SetTimer(timer)

	require.NoError(t, c.OnEvent(EvInvoke{Op: []byte("op1")}))

	// N=4 tolerates f=1 fault, so a single Reply is never enough: the
	// client must wait for f+1=2 replicas to agree on the same result.
	require.NoError(t, c.OnEvent(EvIngressReply{Reply: types.Reply{RequestNum: 1, Result: []byte("result1"), ReplicaID: 0}}))
	assert.Nil(t, got, "a single reply must not complete the invocation")
	assert.Len(t, timer.live, 1, "still waiting on quorum, timer stays armed")

	require.NoError(t, c.OnEvent(EvIngressReply{Reply: types.Reply{RequestNum: 1, Result: []byte("result1"), ReplicaID: 1}}))

	assert.Equal(t, []byte("result1"), got)
	assert.Empty(t, timer.live, "a matching reply quorum must disarm the resend timer")
}

func TestClientIgnoresReplyForWrongRequestNum(t *testing.T) {
	net := &recordingNet{}
	timer := newManualTimer()
	var calls int
	c := NewClient(ClientConfig{ID: 7, N: 4, Net: net, OnReply: func([]byte) { calls++ }})
	c.SetTimer(timer)

	require.NoError(t, c.OnEvent(EvInvoke{Op: []byte("op1")}))
	require.NoError(t, c.OnEvent(EvIngressReply{Reply: types.Reply{RequestNum: 99}}))

	assert.Equal(t, 0, calls)
	assert.Len(t, timer.live, 1, "a stale reply must not disarm the real timer")
}
