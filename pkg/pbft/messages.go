// Package pbft implements the three-phase Byzantine agreement protocol:
// client request/reply, and the replica PrePrepare/Prepare/Commit pipeline
// with quorum tracking, log bookkeeping, and out-of-order-safe signature
// verification via pkg/worker.
package pbft

import (
	"github.com/cuemby/murmesh/pkg/types"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// Wire envelope kinds, dispatched by pkg/netw.Envelope.Kind.
const (
	KindRequest      = "pbft.request"
	KindReply        = "pbft.reply"
	KindPrePrepare   = "pbft.pre-prepare"
	KindPrepare      = "pbft.prepare"
	KindCommit       = "pbft.commit"
	KindViewChange   = "pbft.view-change"
	KindNewView      = "pbft.new-view"
	KindQueryNewView = "pbft.query-new-view"
)

// PrePrepare is broadcast by the primary to open an operation slot. It
// carries the whole batch of requests the primary has bundled under this
// op num; Digest is computed over the batch as a whole, not any single
// request within it.
type PrePrepare struct {
	ViewNum  uint32
	OpNum    uint32
	Digest   [32]byte
	Requests []types.Request
}

func (m PrePrepare) Hash(h xcrypto.DigestHasher) {
	h.WriteUint32(m.ViewNum)
	h.WriteUint32(m.OpNum)
	h.WriteBytes(m.Digest[:])
}

// Prepare is broadcast by every replica (including the primary) once it
// has verified a PrePrepare for op num OpNum.
type Prepare struct {
	ViewNum   uint32
	OpNum     uint32
	Digest    [32]byte
	ReplicaID types.ReplicaID
}

func (m Prepare) Hash(h xcrypto.DigestHasher) {
	h.WriteUint32(m.ViewNum)
	h.WriteUint32(m.OpNum)
	h.WriteBytes(m.Digest[:])
	h.WriteUint8(uint8(m.ReplicaID))
}

// Commit is broadcast by every replica once it has collected a prepare
// quorum (Quorum(n) = 2f+1) for OpNum.
type Commit struct {
	ViewNum   uint32
	OpNum     uint32
	Digest    [32]byte
	ReplicaID types.ReplicaID
}

func (m Commit) Hash(h xcrypto.DigestHasher) {
	h.WriteUint32(m.ViewNum)
	h.WriteUint32(m.OpNum)
	h.WriteBytes(m.Digest[:])
	h.WriteUint8(uint8(m.ReplicaID))
}

// ViewChange, NewView and QueryNewView are defined on the wire so a
// deployment can exchange them, but view-change recovery itself is out of
// scope here (see DESIGN.md's Open Question decision); a replica that
// receives one simply logs it and takes no further action.
type ViewChange struct {
	NewViewNum uint32
	ReplicaID  types.ReplicaID
	LastCommit uint32
}

func (m ViewChange) Hash(h xcrypto.DigestHasher) {
	h.WriteUint32(m.NewViewNum)
	h.WriteUint8(uint8(m.ReplicaID))
	h.WriteUint32(m.LastCommit)
}

type NewView struct {
	ViewNum   uint32
	ReplicaID types.ReplicaID
}

func (m NewView) Hash(h xcrypto.DigestHasher) {
	h.WriteUint32(m.ViewNum)
	h.WriteUint8(uint8(m.ReplicaID))
}

type QueryNewView struct {
	ViewNum   uint32
	ReplicaID types.ReplicaID
}

func (m QueryNewView) Hash(h xcrypto.DigestHasher) {
	h.WriteUint32(m.ViewNum)
	h.WriteUint8(uint8(m.ReplicaID))
}

// Primary returns the replica index that is primary for viewNum over n
// replicas.
func Primary(viewNum uint32, n int) types.ReplicaID {
	return types.ReplicaID(viewNum % uint32(n))
}

// Quorum returns the PBFT quorum size for n replicas tolerating f faults,
// n = 3f+1, quorum = n-f = 2f+1.
func Quorum(n int) int {
	f := (n - 1) / 3
	return n - f
}

// Faulty returns f, the number of Byzantine replicas n can tolerate.
func Faulty(n int) int {
	return (n - 1) / 3
}
