package pbft

import (
	"bytes"
	"fmt"
	"time"

	"github.com/cuemby/murmesh/pkg/evt"
	"github.com/cuemby/murmesh/pkg/hlog"
	"github.com/cuemby/murmesh/pkg/metrics"
	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/types"
)

// ResendTimeout is how long a Client waits for a Reply before rebroadcasting
// its outstanding Request to every replica.
const ResendTimeout = 100 * time.Millisecond

// ClientEvent is the sum type a Client's evt.Session dispatches.
type ClientEvent interface{ isClientEvent() }

// EvInvoke asks the client to submit op as a new request. The client only
// ever has one outstanding request at a time; invoking while one is
// outstanding is a programming error the caller must avoid.
type EvInvoke struct {
	Op []byte
}

// EvIngressReply delivers a Reply received from some replica.
type EvIngressReply struct {
	From  types.Addr
	Reply types.Reply
}

// EvResendTimeout fires when ResendTimeout elapses without a matching Reply.
// The evt.Session drops a timer unset before it fires, but one that fired
// and was queued before Unset still arrives; onResendTimeout ignores it
// when no timer is armed or nothing is outstanding.
type EvResendTimeout struct{}

func (EvInvoke) isClientEvent()        {}
func (EvIngressReply) isClientEvent()  {}
func (EvResendTimeout) isClientEvent() {}

// Done is called once per completed invocation with the application result.
type Done func(result []byte)

// ClientConfig configures a Client instance.
type ClientConfig struct {
	ID      types.ClientID
	N       int
	Net     Net
	Timer   evt.Timer[ClientEvent]
	OnReply Done
}

// Client is the PBFT client half of the protocol: one outstanding request
// at a time, broadcast to every replica, resent on a timer until f+1
// replicas report a matching result for it. A single reply is not enough
// to trust: one Byzantine replica could forge a matching RequestNum with a
// bogus result, so the client only completes once it holds f+1 agreeing
// Replies, the smallest quorum that must include at least one correct
// replica.
type Client struct {
	id    types.ClientID
	n     int
	net   Net
	timer evt.Timer[ClientEvent]
	done  Done

	requestNum  uint64
	outstanding *types.Request
	replies     map[types.ReplicaID]types.Reply
	invokedAt   time.Time
	resendTimer evt.TimerID
	haveTimer   bool
}

// NewClient constructs a Client. If cfg.Timer is nil, call SetTimer once the
// owning evt.Session exists (the same two-step wiring Replica.SetSelf uses),
// since a Session's Timer capability is only available once the Session
// itself has been built around its owner.
func NewClient(cfg ClientConfig) *Client {
	return &Client{id: cfg.ID, n: cfg.N, net: cfg.Net, timer: cfg.Timer, done: cfg.OnReply}
}

// SetTimer wires the Timer capability after the owning Session is built.
func (c *Client) SetTimer(t evt.Timer[ClientEvent]) {
	c.timer = t
}

// OnEvent dispatches a ClientEvent.
func (c *Client) OnEvent(event ClientEvent) error {
	switch e := event.(type) {
	case EvInvoke:
		return c.onInvoke(e.Op)
	case EvIngressReply:
		return c.onIngressReply(e.Reply)
	case EvResendTimeout:
		return c.onResendTimeout()
	default:
		return fmt.Errorf("pbft: client %d received unknown event %T", c.id, event)
	}
}

func (c *Client) onInvoke(op []byte) error {
	if c.outstanding != nil {
		return fmt.Errorf("pbft: client %d already has an outstanding request", c.id)
	}
	c.requestNum++
	req := types.Request{ClientID: c.id, RequestNum: c.requestNum, Op: op}
	c.outstanding = &req
	c.replies = make(map[types.ReplicaID]types.Reply)
	c.invokedAt = time.Now()
	if err := c.broadcast(req); err != nil {
		return err
	}
	return c.armResendTimer()
}

func (c *Client) broadcast(req types.Request) error {
	buf, err := netw.Encode(KindRequest, req)
	if err != nil {
		return err
	}
	return c.net.SendAll(buf)
}

func (c *Client) armResendTimer() error {
	if c.haveTimer {
		_ = c.timer.Unset(c.resendTimer)
	}
	id, err := c.timer.Set(ResendTimeout, EvResendTimeout{})
	if err != nil {
		return err
	}
	c.resendTimer = id
	c.haveTimer = true
	return nil
}

func (c *Client) onIngressReply(reply types.Reply) error {
	if c.outstanding == nil || reply.RequestNum != c.outstanding.RequestNum {
		return nil // stale or unexpected reply, drop
	}
	c.replies[reply.ReplicaID] = reply

	matching := 0
	for _, r := range c.replies {
		if bytes.Equal(r.Result, reply.Result) {
			matching++
		}
	}
	if matching < Faulty(c.n)+1 {
		return nil
	}

	if c.haveTimer {
		_ = c.timer.Unset(c.resendTimer)
		c.haveTimer = false
	}
	if !c.invokedAt.IsZero() {
		metrics.ClientInvokeLatency.Observe(time.Since(c.invokedAt).Seconds())
	}
	c.outstanding = nil
	c.replies = nil
	if c.done != nil {
		c.done(reply.Result)
	}
	return nil
}

func (c *Client) onResendTimeout() error {
	if !c.haveTimer || c.outstanding == nil {
		return nil
	}
	hlog.Logger.Debug().Uint32("client_id", uint32(c.id)).Msg("resending outstanding request")
	metrics.ClientResendsTotal.Inc()
	if err := c.broadcast(*c.outstanding); err != nil {
		return err
	}
	return c.armResendTimer()
}
