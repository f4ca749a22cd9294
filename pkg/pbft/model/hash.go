package model

import (
	"sort"

	"github.com/cuemby/murmesh/pkg/types"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// Hash visits every replica's log and client bookkeeping plus the
// client's own state in a fixed, sorted order, so two independently
// constructed but logically identical SystemStates always produce the
// same digest regardless of the order their maps happened to be built in.
// This is what lets the search engine's discovered-states set recognize
// that two branches converged.
func (s SystemState) Hash(h xcrypto.DigestHasher) {
	h.WriteUint32(uint32(s.N))
	for _, r := range s.Replicas {
		r.hash(h)
	}
	s.Client.hash(h)
	for _, ev := range s.Net.Events() {
		h.WriteBytes([]byte(ev.Dest.String()))
		ev.Message.Hash(h)
	}
}

func (r replicaState) hash(h xcrypto.DigestHasher) {
	h.WriteUint32(r.ViewNum)
	h.WriteUint32(r.OpNum)
	h.WriteUint32(r.CommitNum)

	opNums := make([]uint32, 0, len(r.Log))
	for k := range r.Log {
		opNums = append(opNums, k)
	}
	sort.Slice(opNums, func(i, j int) bool { return opNums[i] < opNums[j] })
	for _, opNum := range opNums {
		entry := r.Log[opNum]
		h.WriteUint32(opNum)
		entry.PrePrepare.Message.Hash(h)
		h.WriteUint8(boolByte(entry.Committed))

		replicaIDs := make([]types.ReplicaID, 0, len(entry.Prepares))
		for id := range entry.Prepares {
			replicaIDs = append(replicaIDs, id)
		}
		sort.Slice(replicaIDs, func(i, j int) bool { return replicaIDs[i] < replicaIDs[j] })
		for _, id := range replicaIDs {
			entry.Prepares[id].Message.Hash(h)
		}

		commitIDs := make([]types.ReplicaID, 0, len(entry.Commits))
		for id := range entry.Commits {
			commitIDs = append(commitIDs, id)
		}
		sort.Slice(commitIDs, func(i, j int) bool { return commitIDs[i] < commitIDs[j] })
		for _, id := range commitIDs {
			entry.Commits[id].Message.Hash(h)
		}
	}

	clientIDs := make([]types.ClientID, 0, len(r.Clients))
	for id := range r.Clients {
		clientIDs = append(clientIDs, id)
	}
	sort.Slice(clientIDs, func(i, j int) bool { return clientIDs[i] < clientIDs[j] })
	for _, id := range clientIDs {
		rec := r.Clients[id]
		h.WriteUint32(uint32(id))
		h.WriteUint64(rec.LastRequestNum)
		h.WriteUint8(boolByte(rec.HasReply))
		if rec.HasReply {
			rec.CachedReply.Hash(h)
		}
	}
}

func (c clientState) hash(h xcrypto.DigestHasher) {
	h.WriteUint32(uint32(c.ID))
	h.WriteUint64(c.RequestNum)
	h.WriteUint8(boolByte(c.HasOutstanding))
	if c.HasOutstanding {
		c.Outstanding.Hash(h)
	}
	h.WriteUint32(uint32(len(c.Completed)))
	for _, reply := range c.Completed {
		reply.Hash(h)
	}

	replicaIDs := make([]types.ReplicaID, 0, len(c.Replies))
	for id := range c.Replies {
		replicaIDs = append(replicaIDs, id)
	}
	sort.Slice(replicaIDs, func(i, j int) bool { return replicaIDs[i] < replicaIDs[j] })
	h.WriteUint32(uint32(len(replicaIDs)))
	for _, id := range replicaIDs {
		h.WriteUint8(uint8(id))
		c.Replies[id].Hash(h)
	}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
