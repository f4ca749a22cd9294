// Package unreplicated is the single-server baseline every PBFT run is
// measured against: no Byzantine tolerance, no quorum, no signatures —
// one server executing client requests in arrival order and caching the
// latest reply per client for retransmission.
package unreplicated

import "github.com/cuemby/murmesh/pkg/types"

// Wire envelope kinds.
const (
	KindRequest = "unreplicated.request"
	KindReply   = "unreplicated.reply"
)

// Request is a client operation, tagged with the sequence number that
// gives the server its at-most-once execution guarantee.
type Request struct {
	ClientID types.ClientID
	Seq      uint32
	Op       []byte
}

// Reply is the result of executing a Request.
type Reply struct {
	Seq    uint32
	Result []byte
}
