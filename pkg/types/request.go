package types

import "github.com/cuemby/murmesh/pkg/xcrypto"

// Request is a client operation submitted to the replicated service. Op is
// an opaque, application-defined encoding (see pkg/app).
type Request struct {
	ClientID   ClientID
	RequestNum uint64
	Op         []byte
}

// Hash visits Request's fields in declared order for digesting.
func (r Request) Hash(h xcrypto.DigestHasher) {
	h.WriteUint32(uint32(r.ClientID))
	h.WriteUint64(r.RequestNum)
	h.WriteUint32(uint32(len(r.Op)))
	h.WriteBytes(r.Op)
}

// Reply is the result of executing a Request against the application,
// returned to the originating client.
type Reply struct {
	RequestNum uint64
	Result     []byte
	ViewNum    uint32
	ReplicaID  ReplicaID
}

func (r Reply) Hash(h xcrypto.DigestHasher) {
	h.WriteUint64(r.RequestNum)
	h.WriteUint32(uint32(len(r.Result)))
	h.WriteBytes(r.Result)
	h.WriteUint32(r.ViewNum)
	h.WriteUint8(uint8(r.ReplicaID))
}
