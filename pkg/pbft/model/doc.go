/*
Package model is the synchronous composite PBFT system the model-checking
search engine (pkg/search) drives through cmd/harness's search
subcommands: a SystemState bundling every replica's log and dedup table,
a single client, and a virtual network, with every protocol step
pkg/pbft's Replica and Client perform reimplemented inline instead of
across asynchronous evt.Session events.

# Why a separate model from pkg/pbft

pkg/pbft's Replica and Client are built around evt.Session and
worker.Lane: signing and verification are offloaded to a goroutine pool
and their results post back as events. That shape is right for a live
deployment but wrong for search.State, whose Apply(event) (S, error)
contract must be a pure function with no goroutines of its own.

Since pkg/xcrypto's Sign and Verify are already pure, synchronous
functions, this package calls them directly within Apply rather than
threading a worker pool through the search engine. A PrePrepare that a
live Replica would sign, broadcast, and only later fold back in via its
own verified-event happens here as one inline sequence: sign, broadcast
to every other replica, then apply to the signer's own log immediately,
exactly mirroring how onSignedPrePrepare calls onVerifiedPrePrepare(pp,
true) directly for the primary's own assent.

# Duplicate and reordered delivery

search.Network never retires a message once sent — Events() re-offers
every (destination, message) pair ever accumulated. A Prepare delivered
to a replica before its PrePrepare arrived is simply dropped rather than
buffered, because the same EvDeliver remains explorable at any later
depth once the entry does open. This gives duplicate and out-of-order
delivery coverage for free, without a resend-timer model: pkg/pbft's
live Client resends on a 100ms timer purely to cope with real packet
loss, which this model doesn't need to simulate.

# Scope

One client is enough to explore every replica-side safety property PBFT
promises; more clients would only multiply branching factor. Execution
is a deterministic identity function over the request's op bytes — this
model explores protocol state, not application semantics, so it doesn't
wire in a real app.App. View-change messages are on the wire but
recovery itself is out of scope, matching pkg/pbft.

# Usage

	initial, err := model.NewSystemState(4, xcrypto.Plain, 2)
	settings := search.Settings[model.SystemState, model.Event]{
		Goal: func(s model.SystemState) bool { return len(s.Client.Completed) > 0 },
	}
	result, err := search.BreadthFirst(initial, settings, 4, time.Minute)
*/
package model
