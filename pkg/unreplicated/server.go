package unreplicated

import (
	"fmt"

	"github.com/cuemby/murmesh/pkg/app"
	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/types"
)

// ServerEvent is the sum type a Server's evt.Session dispatches.
type ServerEvent interface{ isServerEvent() }

// EvIngressRequest delivers a Request received from a client.
type EvIngressRequest struct {
	From types.Addr
	Req  Request
}

func (EvIngressRequest) isServerEvent() {}

// ServerConfig configures a Server instance.
type ServerConfig struct {
	Net Net
	App app.App
}

// Server is the unreplicated baseline's single point of execution: every
// request is applied in arrival order, with the latest reply per client
// cached so a retransmitted request is answered without re-executing.
type Server struct {
	net     Net
	app     app.App
	replies map[types.ClientID]Reply
}

// NewServer constructs a Server.
func NewServer(cfg ServerConfig) *Server {
	return &Server{net: cfg.Net, app: cfg.App, replies: make(map[types.ClientID]Reply)}
}

// OnEvent dispatches a ServerEvent.
func (s *Server) OnEvent(event ServerEvent) error {
	switch e := event.(type) {
	case EvIngressRequest:
		return s.onIngressRequest(e.From, e.Req)
	default:
		return fmt.Errorf("unreplicated: server received unknown event %T", event)
	}
}

func (s *Server) onIngressRequest(from types.Addr, req Request) error {
	if cached, ok := s.replies[req.ClientID]; ok {
		switch {
		case cached.Seq > req.Seq:
			return nil // stale, superseded by a later request already executed
		case cached.Seq == req.Seq:
			return s.sendReply(from, cached)
		}
	}

	result, err := s.app.Execute(req.Op)
	if err != nil {
		return fmt.Errorf("unreplicated: execute request from client %d: %w", req.ClientID, err)
	}
	reply := Reply{Seq: req.Seq, Result: result}
	s.replies[req.ClientID] = reply
	return s.sendReply(from, reply)
}

func (s *Server) sendReply(to types.Addr, reply Reply) error {
	buf, err := netw.Encode(KindReply, reply)
	if err != nil {
		return err
	}
	return s.net.Send(to, buf)
}
