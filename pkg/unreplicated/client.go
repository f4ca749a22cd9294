package unreplicated

import (
	"fmt"
	"time"

	"github.com/cuemby/murmesh/pkg/evt"
	"github.com/cuemby/murmesh/pkg/hlog"
	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/types"
)

// ResendTimeout mirrors pkg/pbft's resend cadence: the baseline has no
// primary to fail over to, but a dropped packet still needs a retry.
const ResendTimeout = 100 * time.Millisecond

// ClientEvent is the sum type a Client's evt.Session dispatches.
type ClientEvent interface{ isClientEvent() }

type EvInvoke struct{ Op []byte }

type EvIngressReply struct{ Reply Reply }

type EvResendTimeout struct{}

func (EvInvoke) isClientEvent()        {}
func (EvIngressReply) isClientEvent()  {}
func (EvResendTimeout) isClientEvent() {}

// Done is called once per completed invocation with the application result.
type Done func(result []byte)

// Net is the outbound capability the client and server both need: a
// single fixed peer to unicast to (the client's only ever server, the
// server's per-request reply destination), modeled as a generic unicast
// since there is no broadcast in this baseline.
type Net = netw.SendMessage[types.Addr, []byte]

// ClientConfig configures a Client instance.
type ClientConfig struct {
	ID      types.ClientID
	Server  types.Addr
	Net     Net
	Timer   evt.Timer[ClientEvent]
	OnReply Done
}

// Client is the unreplicated baseline's client half: one outstanding
// request at a time, sent to the single server, resent on a timer.
type Client struct {
	id     types.ClientID
	server types.Addr
	net    Net
	timer  evt.Timer[ClientEvent]
	done   Done

	seq         uint32
	outstanding []byte
	haveTimer   bool
	resendTimer evt.TimerID
}

// NewClient constructs a Client. Call SetTimer once the owning Session
// exists, mirroring pkg/pbft.Client's two-step wiring.
func NewClient(cfg ClientConfig) *Client {
	return &Client{id: cfg.ID, server: cfg.Server, net: cfg.Net, timer: cfg.Timer, done: cfg.OnReply}
}

// SetTimer wires the Timer capability after the owning Session is built.
func (c *Client) SetTimer(t evt.Timer[ClientEvent]) { c.timer = t }

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
		return fmt.Errorf("unreplicated: client %d received unknown event %T", c.id, event)
	}
}

func (c *Client) onInvoke(op []byte) error {
	if c.outstanding != nil {
		return fmt.Errorf("unreplicated: client %d already has an outstanding request", c.id)
	}
	c.seq++
	c.outstanding = op
	if err := c.sendRequest(); err != nil {
		return err
	}
	return c.armResendTimer()
}

func (c *Client) sendRequest() error {
	req := Request{ClientID: c.id, Seq: c.seq, Op: c.outstanding}
	buf, err := netw.Encode(KindRequest, req)
	if err != nil {
		return err
	}
	return c.net.Send(c.server, buf)
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

func (c *Client) onIngressReply(reply Reply) error {
	if c.outstanding == nil || reply.Seq != c.seq {
		return nil
	}
	if c.haveTimer {
		_ = c.timer.Unset(c.resendTimer)
		c.haveTimer = false
	}
	c.outstanding = nil
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
	if err := c.sendRequest(); err != nil {
		return err
	}
	return c.armResendTimer()
}
