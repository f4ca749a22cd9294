package unreplicated

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/murmesh/pkg/evt"
	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/types"
)

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

var serverAddr = types.ReplicaAddr(0)

func TestClientInvokeSendsRequestAndArmsTimer(t *testing.T) {
	net := newRecordingNet()
	timer := newManualTimer()
	c := NewClient(ClientConfig{ID: 7, Server: serverAddr, Net: net})
	c.SetTimer(timer)

	require.NoError(t, c.OnEvent(EvInvoke{Op: []byte("op1")}))
	require.Len(t, net.sent[serverAddr], 1)
	assert.Len(t, timer.live, 1)

	env, err := netw.Decode(net.sent[serverAddr][0])
	require.NoError(t, err)
	assert.Equal(t, KindRequest, env.Kind)
}

func TestClientResendTimeoutResendsAndRearms(t *testing.T) {
	net := newRecordingNet()
	timer := newManualTimer()
	c := NewClient(ClientConfig{ID: 7, Server: serverAddr, Net: net})
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
	assert.Len(t, net.sent[serverAddr], 2, "resend must resend the same outstanding request")
	assert.Len(t, timer.live, 1, "resend must rearm a fresh timer")
}

func TestClientIngressReplyCompletesInvocationAndDisarmsTimer(t *testing.T) {
	net := newRecordingNet()
	timer := newManualTimer()
	var got []byte
	c := NewClient(ClientConfig{ID: 7, Server: serverAddr, Net: net, OnReply: func(result []byte) { got = result }})
	c.SetTimer(timer)

	require.NoError(t, c.OnEvent(EvInvoke{Op: []byte("op1")}))
	require.NoError(t, c.OnEvent(EvIngressReply{Reply: Reply{Seq: 1, Result: []byte("result1")}}))

	assert.Equal(t, []byte("result1"), got)
	assert.Empty(t, timer.live, "a matching reply must disarm the resend timer")
}

func TestClientIgnoresReplyForWrongSeq(t *testing.T) {
	net := newRecordingNet()
	timer := newManualTimer()
	var calls int
	c := NewClient(ClientConfig{ID: 7, Server: serverAddr, Net: net, OnReply: func([]byte) { calls++ }})
	c.SetTimer(timer)

	require.NoError(t, c.OnEvent(EvInvoke{Op: []byte("op1")}))
	require.NoError(t, c.OnEvent(EvIngressReply{Reply: Reply{Seq: 99}}))

	assert.Equal(t, 0, calls)
	assert.Len(t, timer.live, 1, "a stale reply must not disarm the real timer")
}

func TestClientRejectsInvokeWithOutstandingRequest(t *testing.T) {
	net := newRecordingNet()
	timer := newManualTimer()
	c := NewClient(ClientConfig{ID: 7, Server: serverAddr, Net: net})
	c.SetTimer(timer)

	require.NoError(t, c.OnEvent(EvInvoke{Op: []byte("op1")}))
	assert.Error(t, c.OnEvent(EvInvoke{Op: []byte("op2")}))
}
