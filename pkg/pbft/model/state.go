// Package model adapts the PBFT replica and client protocol logic in
// pkg/pbft into the synchronous, value-typed composite system state the
// search engine (pkg/search) requires: a SystemState bundling every
// replica's log and a single client, exchanging messages over a
// search.Network instead of real sockets, so cmd/harness's search
// subcommands can explore actual consensus states rather than a toy model.
//
// Every protocol step that a live Replica or Client performs across
// several asynchronous events (sign, then broadcast, then apply) happens
// here inline within a single Apply call: crypto signing and verification
// are already pure functions in pkg/xcrypto, so there is no worker pool
// to thread through a deterministic search.
package model

import (
	"fmt"

	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/pbft"
	"github.com/cuemby/murmesh/pkg/search"
	"github.com/cuemby/murmesh/pkg/types"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// wireMessage is the model's stand-in for a netw.Envelope: the same
// Kind-discriminated JSON outer format a live replica would send over
// UDP, carried instead through a search.Network.
type wireMessage netw.Envelope

func (w wireMessage) Hash(h xcrypto.DigestHasher) {
	h.WriteBytes([]byte(w.Kind))
	h.WriteBytes(w.Data)
}

func encodeWire(kind string, msg any) (wireMessage, error) {
	env, err := netw.Encode(kind, msg)
	if err != nil {
		return wireMessage{}, err
	}
	decoded, err := netw.Decode(env)
	if err != nil {
		return wireMessage{}, err
	}
	return wireMessage(decoded), nil
}

// logEntry mirrors pbft.LogEntry's shape but is keyed by op num in a plain
// map instead of a grow-as-needed slice, which makes cloning for the
// search engine's branch-per-event exploration a straightforward
// map-of-maps copy instead of reproducing Log's placeholder-slot rules.
type logEntry struct {
	PrePrepare xcrypto.Verifiable[pbft.PrePrepare]
	Prepares   map[types.ReplicaID]xcrypto.Verifiable[pbft.Prepare]
	Commits    map[types.ReplicaID]xcrypto.Verifiable[pbft.Commit]
	Committed  bool
}

func (e logEntry) clone() logEntry {
	prepares := make(map[types.ReplicaID]xcrypto.Verifiable[pbft.Prepare], len(e.Prepares))
	for k, v := range e.Prepares {
		prepares[k] = v
	}
	commits := make(map[types.ReplicaID]xcrypto.Verifiable[pbft.Commit], len(e.Commits))
	for k, v := range e.Commits {
		commits[k] = v
	}
	return logEntry{PrePrepare: e.PrePrepare, Prepares: prepares, Commits: commits, Committed: e.Committed}
}

// clientRecordState is the dedup/cached-reply record replica.go keeps per
// client, reused here to give the model the same at-most-once guarantee.
type clientRecordState struct {
	LastRequestNum uint64
	CachedReply    types.Reply
	HasReply       bool
}

// replicaState is one replica's entire mutable protocol state: view and
// op bookkeeping, the op-num-keyed log, and per-client dedup records.
type replicaState struct {
	ViewNum   uint32
	OpNum     uint32
	CommitNum uint32
	Log       map[uint32]logEntry
	Clients   map[types.ClientID]clientRecordState
}

func newReplicaState() replicaState {
	return replicaState{Log: make(map[uint32]logEntry), Clients: make(map[types.ClientID]clientRecordState)}
}

func (r replicaState) clone() replicaState {
	log := make(map[uint32]logEntry, len(r.Log))
	for k, v := range r.Log {
		log[k] = v.clone()
	}
	clients := make(map[types.ClientID]clientRecordState, len(r.Clients))
	for k, v := range r.Clients {
		clients[k] = v
	}
	return replicaState{ViewNum: r.ViewNum, OpNum: r.OpNum, CommitNum: r.CommitNum, Log: log, Clients: clients}
}

// clientState is the single client this model drives. A single client is
// enough to explore every replica-side safety property PBFT promises;
// adding more clients would only multiply branching factor, not protocol
// coverage.
type clientState struct {
	ID             types.ClientID
	RequestNum     uint64
	HasOutstanding bool
	Outstanding    types.Request
	Replies        map[types.ReplicaID]types.Reply
	Completed      []types.Reply
}

func (c clientState) clone() clientState {
	completed := make([]types.Reply, len(c.Completed))
	copy(completed, c.Completed)
	replies := make(map[types.ReplicaID]types.Reply, len(c.Replies))
	for k, v := range c.Replies {
		replies[k] = v
	}
	return clientState{
		ID:             c.ID,
		RequestNum:     c.RequestNum,
		HasOutstanding: c.HasOutstanding,
		Outstanding:    c.Outstanding,
		Replies:        replies,
		Completed:      completed,
	}
}

// Event is the sum type SystemState.Events() offers: either a message
// becoming deliverable, or the single client being given a chance to
// invoke a fresh request.
type Event interface{ isModelEvent() }

// EvDeliver delivers a previously-sent wireMessage to dest. Because
// search.Network never retires a message once sent, the same EvDeliver
// remains explorable at any later depth too, which is what gives this
// model duplicate and out-of-order delivery coverage without a separate
// resend-timer model.
type EvDeliver struct {
	Dest types.Addr
	Msg  wireMessage
}

// EvClientInvoke asks the single client to submit its next request, so
// long as it has no outstanding request and hasn't already reached
// maxRequests.
type EvClientInvoke struct{}

func (EvDeliver) isModelEvent()      {}
func (EvClientInvoke) isModelEvent() {}

// SystemState is the composite PBFT system the search engine explores: N
// replicas, one client, and the virtual network between them.
type SystemState struct {
	N           int
	Replicas    []replicaState
	Client      clientState
	Net         *search.Network[types.Addr, wireMessage]
	MaxRequests int

	// crypto is shared by reference across every clone this state
	// branches into: a *xcrypto.Crypto is immutable once constructed, so
	// there is nothing for independent branches to race on.
	crypto []*xcrypto.Crypto
}

// NewSystemState builds the initial state for an n-replica group (n must
// be 3f+1 for some f >= 0) using the given crypto flavor, bounding the
// client to at most maxRequests invocations so the explored state space
// stays finite.
func NewSystemState(n int, flavor xcrypto.Flavor, maxRequests int) (SystemState, error) {
	replicas := make([]replicaState, n)
	crypto := make([]*xcrypto.Crypto, n)
	for i := 0; i < n; i++ {
		replicas[i] = newReplicaState()
		c, err := xcrypto.NewHardcoded(n, uint8(i), flavor)
		if err != nil {
			return SystemState{}, fmt.Errorf("model: derive replica %d crypto: %w", i, err)
		}
		crypto[i] = c
	}
	return SystemState{
		N:           n,
		Replicas:    replicas,
		Client:      clientState{ID: 1},
		Net:         search.NewNetwork[types.Addr, wireMessage](),
		MaxRequests: maxRequests,
		crypto:      crypto,
	}, nil
}

func (s SystemState) clone() SystemState {
	replicas := make([]replicaState, len(s.Replicas))
	for i, r := range s.Replicas {
		replicas[i] = r.clone()
	}
	return SystemState{
		N:           s.N,
		Replicas:    replicas,
		Client:      s.Client.clone(),
		Net:         s.Net.Clone(),
		MaxRequests: s.MaxRequests,
		crypto:      s.crypto,
	}
}

// Events enumerates every deliverable message plus, when eligible, the
// client's next invocation.
func (s SystemState) Events() []Event {
	netEvents := s.Net.Events()
	out := make([]Event, 0, len(netEvents)+1)
	for _, ev := range netEvents {
		out = append(out, EvDeliver{Dest: ev.Dest, Msg: ev.Message})
	}
	if !s.Client.HasOutstanding && len(s.Client.Completed) < s.MaxRequests {
		out = append(out, EvClientInvoke{})
	}
	return out
}
