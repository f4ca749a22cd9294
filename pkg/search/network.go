package search

import (
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// Network is the virtual netw.SendMessage a State under search sends
// through: rather than crossing any socket, a send accumulates into a
// deterministic set keyed by (destination, message digest), so two
// branches that end up having sent the same messages compare equal
// regardless of the order Apply happened to call Send in.
//
// Network satisfies netw.SendMessage[A, M]; a State wanting a broadcast
// capability wraps one in netw.IndexNet the same way a live replica
// wraps its UDP transport.
type Network[A comparable, M xcrypto.DigestHash] struct {
	messages map[networkKey[A]]NetworkEvent[A, M]
}

type networkKey[A comparable] struct {
	dest   A
	digest [32]byte
}

// NetworkEvent is one distinct (destination, message) pair a Network has
// observed.
type NetworkEvent[A comparable, M xcrypto.DigestHash] struct {
	Dest    A
	Message M
}

// NewNetwork returns an empty virtual network.
func NewNetwork[A comparable, M xcrypto.DigestHash]() *Network[A, M] {
	return &Network[A, M]{messages: make(map[networkKey[A]]NetworkEvent[A, M])}
}

// Clone returns an independent copy sharing no mutable state.
func (n *Network[A, M]) Clone() *Network[A, M] {
	cp := NewNetwork[A, M]()
	for k, v := range n.messages {
		cp.messages[k] = v
	}
	return cp
}

// Send implements netw.SendMessage[A, M].
func (n *Network[A, M]) Send(dest A, msg M) error {
	key := networkKey[A]{dest: dest, digest: sha256.Sum256(xcrypto.HashBytes(msg))}
	n.messages[key] = NetworkEvent[A, M]{Dest: dest, Message: msg}
	return nil
}

// Events enumerates every distinct message this network has ever seen
// sent, in a fixed deterministic order so that replaying the same
// sequence of Send calls always yields the same exploration order.
func (n *Network[A, M]) Events() []NetworkEvent[A, M] {
	out := make([]NetworkEvent[A, M], 0, len(n.messages))
	keys := make([]networkKey[A], 0, len(n.messages))
	for k := range n.messages {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprintf("%v:%x", keys[i].dest, keys[i].digest) <
			fmt.Sprintf("%v:%x", keys[j].dest, keys[j].digest)
	})
	for _, k := range keys {
		out = append(out, n.messages[k])
	}
	return out
}
