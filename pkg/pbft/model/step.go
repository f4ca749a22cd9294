package model

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/pbft"
	"github.com/cuemby/murmesh/pkg/types"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// Apply is a pure function of (state, event) -> next state, as
// search.State requires: it never mutates the receiver, always starting
// from a fresh clone before reimplementing, inline and synchronously, the
// same PrePrepare/Prepare/Commit cascade pkg/pbft's Replica runs across
// several asynchronous evt.Session events.
func (s SystemState) Apply(event Event) (SystemState, error) {
	next := s.clone()
	var err error
	switch e := event.(type) {
	case EvClientInvoke:
		err = next.applyClientInvoke()
	case EvDeliver:
		err = next.applyDeliver(e)
	default:
		return SystemState{}, fmt.Errorf("model: unknown event %T", event)
	}
	if err != nil {
		return SystemState{}, err
	}
	return next, nil
}

func decodeWire(msg wireMessage, v any) error {
	return netw.DecodeInto(netw.Envelope(msg), v)
}

// digestBatch hashes a batch of requests, mirroring pkg/pbft's digestBatch.
// This model drives a single closed-loop client with at most one
// outstanding request at a time (see SystemState's doc comment), so the
// batch this model ever proposes has exactly one request in it; the
// batch-shaped digest keeps PrePrepare's wire shape identical to the live
// Replica's rather than inventing a singleton-only variant.
func digestBatch(reqs []types.Request) [32]byte {
	h := sha256.New()
	for _, req := range reqs {
		h.Write(xcrypto.HashBytes(req))
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (s *SystemState) applyClientInvoke() error {
	s.Client.RequestNum++
	req := types.Request{
		ClientID:   s.Client.ID,
		RequestNum: s.Client.RequestNum,
		Op:         []byte(fmt.Sprintf("op-%d", s.Client.RequestNum)),
	}
	s.Client.HasOutstanding = true
	s.Client.Outstanding = req
	s.Client.Replies = make(map[types.ReplicaID]types.Reply)

	wire, err := encodeWire(pbft.KindRequest, req)
	if err != nil {
		return err
	}
	for i := 0; i < s.N; i++ {
		if err := s.Net.Send(types.ReplicaAddr(types.ReplicaID(i)), wire); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemState) applyDeliver(e EvDeliver) error {
	switch e.Msg.Kind {
	case pbft.KindRequest:
		var req types.Request
		if err := decodeWire(e.Msg, &req); err != nil {
			return err
		}
		return s.onIngressRequest(e.Dest, req)
	case pbft.KindPrePrepare:
		var pp xcrypto.Verifiable[pbft.PrePrepare]
		if err := decodeWire(e.Msg, &pp); err != nil {
			return err
		}
		return s.onIngressPrePrepare(e.Dest, pp)
	case pbft.KindPrepare:
		var p xcrypto.Verifiable[pbft.Prepare]
		if err := decodeWire(e.Msg, &p); err != nil {
			return err
		}
		return s.onIngressPrepare(e.Dest, p)
	case pbft.KindCommit:
		var c xcrypto.Verifiable[pbft.Commit]
		if err := decodeWire(e.Msg, &c); err != nil {
			return err
		}
		return s.onIngressCommit(e.Dest, c)
	case pbft.KindReply:
		var reply types.Reply
		if err := decodeWire(e.Msg, &reply); err != nil {
			return err
		}
		return s.onIngressReply(e.Dest, reply)
	default:
		// View-change messages are on the wire but recovery itself is out
		// of scope (see pkg/pbft); a delivered one is simply a no-op here.
		return nil
	}
}

func (s *SystemState) broadcastExcept(self types.ReplicaID, wire wireMessage) error {
	for j := 0; j < s.N; j++ {
		if types.ReplicaID(j) == self {
			continue
		}
		if err := s.Net.Send(types.ReplicaAddr(types.ReplicaID(j)), wire); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemState) onIngressRequest(dest types.Addr, req types.Request) error {
	if !dest.IsReplica {
		return nil
	}
	i := dest.Replica
	r := &s.Replicas[i]

	rec, ok := r.Clients[req.ClientID]
	if !ok {
		rec = clientRecordState{}
		r.Clients[req.ClientID] = rec
	}
	switch {
	case req.RequestNum < rec.LastRequestNum:
		return nil // stale retransmission, drop
	case req.RequestNum == rec.LastRequestNum && rec.HasReply:
		return s.sendReply(i, req.ClientID, rec.CachedReply)
	case req.RequestNum > rec.LastRequestNum:
		// fall through to propose, below
	default:
		return nil
	}

	if pbft.Primary(r.ViewNum, s.N) != i {
		// Only the primary proposes; the client broadcasts to everyone
		// and the non-primary replicas have nothing to do with it.
		return nil
	}

	r.OpNum++
	opNum := r.OpNum
	reqs := []types.Request{req}
	digest := digestBatch(reqs)
	pp := pbft.PrePrepare{ViewNum: r.ViewNum, OpNum: opNum, Digest: digest, Requests: reqs}
	signed := xcrypto.Sign(s.crypto[i], pp)
	return s.onPrePreparedLocally(i, signed)
}

func (s *SystemState) onPrePreparedLocally(i types.ReplicaID, pp xcrypto.Verifiable[pbft.PrePrepare]) error {
	wire, err := encodeWire(pbft.KindPrePrepare, pp)
	if err != nil {
		return err
	}
	if err := s.broadcastExcept(i, wire); err != nil {
		return err
	}
	// The primary trusts its own signature and folds it in directly,
	// exactly as onSignedPrePrepare calls onVerifiedPrePrepare(pp, true).
	return s.applyVerifiedPrePrepare(i, pp)
}

func (s *SystemState) onIngressPrePrepare(dest types.Addr, pp xcrypto.Verifiable[pbft.PrePrepare]) error {
	if !dest.IsReplica {
		return nil
	}
	i := dest.Replica
	r := &s.Replicas[i]
	if pp.Message.ViewNum != r.ViewNum {
		return nil
	}
	if entry, ok := r.Log[pp.Message.OpNum]; ok && entry.PrePrepare.Message.Digest == pp.Message.Digest {
		return nil // already processed
	}
	primary := pbft.Primary(pp.Message.ViewNum, s.N)
	if err := xcrypto.Verify(s.crypto[i], uint8(primary), pp); err != nil {
		return nil // invalid signature, drop
	}
	return s.applyVerifiedPrePrepare(i, pp)
}

func (s *SystemState) applyVerifiedPrePrepare(i types.ReplicaID, pp xcrypto.Verifiable[pbft.PrePrepare]) error {
	r := &s.Replicas[i]
	if entry, ok := r.Log[pp.Message.OpNum]; ok && entry.PrePrepare.Message.Digest == pp.Message.Digest {
		return nil
	}
	r.Log[pp.Message.OpNum] = logEntry{
		PrePrepare: pp,
		Prepares:   make(map[types.ReplicaID]xcrypto.Verifiable[pbft.Prepare]),
		Commits:    make(map[types.ReplicaID]xcrypto.Verifiable[pbft.Commit]),
	}

	prepare := pbft.Prepare{ViewNum: pp.Message.ViewNum, OpNum: pp.Message.OpNum, Digest: pp.Message.Digest, ReplicaID: i}
	signed := xcrypto.Sign(s.crypto[i], prepare)
	return s.onPreparedLocally(i, signed)
}

func (s *SystemState) onPreparedLocally(i types.ReplicaID, p xcrypto.Verifiable[pbft.Prepare]) error {
	wire, err := encodeWire(pbft.KindPrepare, p)
	if err != nil {
		return err
	}
	if err := s.broadcastExcept(i, wire); err != nil {
		return err
	}
	return s.insertPrepare(i, p)
}

// insertPrepare folds p into replica i's log entry if it has one open yet.
// If the entry isn't open, the message is simply dropped: it stays
// available in the network's accumulating sent-set (see search.Network),
// so the same EvDeliver remains explorable once the entry does open,
// which is what makes a separate scratch-buffering mechanism unnecessary
// here even though pkg/pbft's live Replica needs one.
func (s *SystemState) insertPrepare(i types.ReplicaID, p xcrypto.Verifiable[pbft.Prepare]) error {
	r := &s.Replicas[i]
	entry, ok := r.Log[p.Message.OpNum]
	if !ok {
		return nil
	}
	if _, already := entry.Prepares[p.Message.ReplicaID]; already {
		return nil
	}
	entry.Prepares[p.Message.ReplicaID] = p
	r.Log[p.Message.OpNum] = entry
	return s.tryAdvance(i, p.Message.OpNum)
}

func (s *SystemState) onIngressPrepare(dest types.Addr, p xcrypto.Verifiable[pbft.Prepare]) error {
	if !dest.IsReplica {
		return nil
	}
	i := dest.Replica
	if err := xcrypto.Verify(s.crypto[i], uint8(p.Message.ReplicaID), p); err != nil {
		return nil
	}
	return s.insertPrepare(i, p)
}

// prepared reports whether opNum has collected a full quorum of matching
// Prepares to move to the commit phase. The PrePrepare itself is not
// counted; the primary earns its place in the quorum with the Prepare it
// signs for its own proposal (onPrePreparedLocally runs
// applyVerifiedPrePrepare).
func (s *SystemState) prepared(entry *logEntry) bool {
	count := 0
	for _, v := range entry.Prepares {
		if v.Message.Digest == entry.PrePrepare.Message.Digest {
			count++
		}
	}
	return count >= pbft.Quorum(s.N)
}

func (s *SystemState) committedReady(entry *logEntry) bool {
	count := 0
	for _, v := range entry.Commits {
		if v.Message.Digest == entry.PrePrepare.Message.Digest {
			count++
		}
	}
	return count >= pbft.Quorum(s.N)
}

func (s *SystemState) tryAdvance(i types.ReplicaID, opNum uint32) error {
	r := &s.Replicas[i]
	entry, ok := r.Log[opNum]
	if !ok || entry.Committed {
		return nil
	}
	if _, sent := entry.Commits[i]; sent {
		return s.tryExecute(i)
	}
	if !s.prepared(&entry) {
		return nil
	}
	commit := pbft.Commit{ViewNum: entry.PrePrepare.Message.ViewNum, OpNum: opNum, Digest: entry.PrePrepare.Message.Digest, ReplicaID: i}
	signed := xcrypto.Sign(s.crypto[i], commit)
	return s.onCommittedLocally(i, signed)
}

func (s *SystemState) onCommittedLocally(i types.ReplicaID, c xcrypto.Verifiable[pbft.Commit]) error {
	wire, err := encodeWire(pbft.KindCommit, c)
	if err != nil {
		return err
	}
	if err := s.broadcastExcept(i, wire); err != nil {
		return err
	}
	return s.insertCommit(i, c)
}

func (s *SystemState) insertCommit(i types.ReplicaID, c xcrypto.Verifiable[pbft.Commit]) error {
	r := &s.Replicas[i]
	entry, ok := r.Log[c.Message.OpNum]
	if !ok {
		return nil
	}
	if _, already := entry.Commits[c.Message.ReplicaID]; already {
		return nil
	}
	entry.Commits[c.Message.ReplicaID] = c
	r.Log[c.Message.OpNum] = entry
	return s.tryExecute(i)
}

func (s *SystemState) onIngressCommit(dest types.Addr, c xcrypto.Verifiable[pbft.Commit]) error {
	if !dest.IsReplica {
		return nil
	}
	i := dest.Replica
	if err := xcrypto.Verify(s.crypto[i], uint8(c.Message.ReplicaID), c); err != nil {
		return nil
	}
	return s.insertCommit(i, c)
}

// tryExecute advances commitNum through every consecutive, committed-ready
// op num, mirroring pkg/pbft's Replica.tryExecute. Execution itself is a
// deterministic identity function over the request's op bytes: this model
// explores protocol state, not application semantics, so there is no need
// to wire in a real app.App.
func (s *SystemState) tryExecute(i types.ReplicaID) error {
	r := &s.Replicas[i]
	for {
		next := r.CommitNum + 1
		entry, ok := r.Log[next]
		if !ok || entry.Committed || !s.committedReady(&entry) {
			return nil
		}
		entry.Committed = true
		r.Log[next] = entry
		r.CommitNum = next

		for _, req := range entry.PrePrepare.Message.Requests {
			result := req.Op
			reply := types.Reply{RequestNum: req.RequestNum, Result: result, ViewNum: entry.PrePrepare.Message.ViewNum, ReplicaID: i}
			rec := r.Clients[req.ClientID]
			rec.LastRequestNum = req.RequestNum
			rec.CachedReply = reply
			rec.HasReply = true
			r.Clients[req.ClientID] = rec

			if err := s.sendReply(i, req.ClientID, reply); err != nil {
				return err
			}
		}
	}
}

func (s *SystemState) sendReply(i types.ReplicaID, clientID types.ClientID, reply types.Reply) error {
	wire, err := encodeWire(pbft.KindReply, reply)
	if err != nil {
		return err
	}
	return s.Net.Send(types.ClientAddr(clientID), wire)
}

func (s *SystemState) onIngressReply(dest types.Addr, reply types.Reply) error {
	if dest.IsReplica || dest.Client != s.Client.ID {
		return nil
	}
	if !s.Client.HasOutstanding || reply.RequestNum != s.Client.Outstanding.RequestNum {
		return nil // stale or unexpected reply, drop
	}
	s.Client.Replies[reply.ReplicaID] = reply

	matching := 0
	for _, r := range s.Client.Replies {
		if bytes.Equal(r.Result, reply.Result) {
			matching++
		}
	}
	if matching < pbft.Faulty(s.N)+1 {
		return nil
	}

	s.Client.HasOutstanding = false
	s.Client.Replies = nil
	s.Client.Completed = append(s.Client.Completed, reply)
	return nil
}
