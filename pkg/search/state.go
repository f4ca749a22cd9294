// Package search is the deterministic model-checking engine: it drives a
// State through every event it can produce, breadth-first or by random
// probing, looking for an invariant violation or a goal state without
// ever touching a real clock or socket.
//
// A State under search never talks to evt.Session or pkg/netw directly.
// Instead it holds a Schedule for its virtual timers and a Network for
// its virtual outbound messages, both of which accumulate deterministic
// event sets that Events() folds into the single stream the search
// explores branch by branch.
package search

import (
	"time"

	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// State is implemented by whatever system a search explores: a replica
// group, a client, or some composite of both. Apply must be a pure
// function of (current state, event) -> next state; it must never
// mutate the receiver, since the search engine keeps many branches of
// the same ancestor state alive at once. Events lists every event that
// could plausibly happen next, in an arbitrary but deterministic order;
// the search engine tries each of them from the same starting point.
//
// S implements xcrypto.DigestHash so the engine can use its digest as a
// stable key for the discovered-states set, the same mechanism pkg/pbft
// and pkg/xcrypto use to identify signed messages.
type State[S any, E any] interface {
	xcrypto.DigestHash
	Apply(event E) (S, error)
	Events() []E
}

// TimerID identifies a timer armed against a Schedule. Unlike
// evt.TimerID, a search Schedule never actually fires anything: ids only
// exist so Unset can find the right envelope to remove.
type TimerID uint32

// timerEnvelope is one outstanding virtual timer: a period (used only to
// rank candidate firings relative to each other, never to measure real
// elapsed time) and the event it delivers when chosen to fire.
type timerEnvelope[E any] struct {
	id     TimerID
	period time.Duration
	event  E
}

// Schedule is the virtual timer board a State under search consults
// instead of evt.Timer: Set and Unset mutate it exactly like a live
// Session's timer map, but Events walks it to enumerate which timers
// could plausibly be the next one to fire, rather than waiting on a
// real clock.
//
// Firing order is modeled, not simulated: a real deployment's timers
// race by wall-clock period, so the search only trusts an envelope to
// fire next if every earlier envelope in declared order has a period
// no smaller than it — the envelopes are walked front to back and the
// walk stops at the first one that is not strictly shorter than every
// period seen so far. Tick moves a chosen envelope to the back of the
// list once its event has been explored, so it drops in priority
// exactly the way a timer that just fired and was rearmed would.
type Schedule[E any] struct {
	envelopes []timerEnvelope[E]
	nextID    TimerID
}

// NewSchedule returns an empty virtual timer board.
func NewSchedule[E any]() *Schedule[E] {
	return &Schedule[E]{}
}

// Clone returns an independent copy, the operation a State performs
// before branching into Apply so sibling branches never share mutable
// timer state.
func (s *Schedule[E]) Clone() *Schedule[E] {
	cp := &Schedule[E]{nextID: s.nextID, envelopes: make([]timerEnvelope[E], len(s.envelopes))}
	copy(cp.envelopes, s.envelopes)
	return cp
}

// Set arms a new virtual timer and returns its id.
func (s *Schedule[E]) Set(period time.Duration, event E) TimerID {
	s.nextID++
	id := s.nextID
	s.envelopes = append(s.envelopes, timerEnvelope[E]{id: id, period: period, event: event})
	return id
}

// Unset removes a previously armed timer. Unsetting an unknown id is a
// no-op, matching evt.Timer's tolerance of the fire/cancel race.
func (s *Schedule[E]) Unset(id TimerID) {
	for i, env := range s.envelopes {
		if env.id == id {
			s.envelopes = append(s.envelopes[:i], s.envelopes[i+1:]...)
			return
		}
	}
}

// Tick marks id as having fired: its envelope moves to the back of the
// list, so its relative firing priority resets.
func (s *Schedule[E]) Tick(id TimerID) {
	for i, env := range s.envelopes {
		if env.id == id {
			s.envelopes = append(s.envelopes[:i], s.envelopes[i+1:]...)
			s.envelopes = append(s.envelopes, env)
			return
		}
	}
}

// ScheduleEvent pairs a candidate timer id with the event it would
// deliver if chosen to fire next.
type ScheduleEvent[E any] struct {
	ID    TimerID
	Event E
}

// Events enumerates the timers that could plausibly fire next, in the
// front-to-back, strictly-decreasing-period order described on
// Schedule.
func (s *Schedule[E]) Events() []ScheduleEvent[E] {
	var out []ScheduleEvent[E]
	limit := time.Duration(1<<63 - 1) // time.Duration max
	for _, env := range s.envelopes {
		if env.period >= limit {
			break
		}
		limit = env.period
		out = append(out, ScheduleEvent[E]{ID: env.id, Event: env.event})
	}
	return out
}
