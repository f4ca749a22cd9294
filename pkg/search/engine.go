package search

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/murmesh/pkg/hlog"
	"github.com/cuemby/murmesh/pkg/metrics"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// resultStatusLabel maps a Status to the label value SearchResultsTotal is
// partitioned by.
func resultStatusLabel(s Status) string {
	switch s {
	case StatusGoalFound:
		return "goal_found"
	case StatusInvariantViolation:
		return "invariant_violation"
	case StatusErr:
		return "err"
	case StatusSpaceExhausted:
		return "space_exhausted"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// step runs one Apply call with a recover() guard, turning a handler
// panic into an ordinary error instead of taking down the worker
// goroutine. A State under search is free to assert invariants with a
// panic (out-of-bounds index, a nil map write) the same way a live
// handler might; the search engine treats it exactly like an Apply
// error so one bad branch doesn't abort the whole run.
func step[S State[S, E], E any](state S, event E) (next S, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("search: state.Apply panicked: %v", r)
		}
	}()
	return state.Apply(event)
}

// Settings configures one search run against a State.
type Settings[S any, E any] struct {
	// Invariant is checked against every newly discovered state. A
	// non-nil error ends the search with StatusInvariantViolation.
	Invariant func(S) error
	// Goal ends the search with StatusGoalFound the first time it
	// returns true for a newly discovered state.
	Goal func(S) bool
	// Prune stops a branch from being explored further without failing
	// the search, e.g. to bound an otherwise-infinite retry loop.
	Prune func(S) bool
	// MaxDepth bounds how many Apply steps a single branch may take from
	// the initial state. Zero means unbounded.
	MaxDepth int
}

func (s Settings[S, E]) invariant(state S) error {
	if s.Invariant == nil {
		return nil
	}
	return s.Invariant(state)
}

func (s Settings[S, E]) goal(state S) bool {
	return s.Goal != nil && s.Goal(state)
}

func (s Settings[S, E]) prune(state S) bool {
	return s.Prune != nil && s.Prune(state)
}

func digestOf[S xcrypto.DigestHash](state S) [32]byte {
	return sha256.Sum256(xcrypto.HashBytes(state))
}

// stateInfo is what the discovered set remembers about one reached
// state: enough to reconstruct the trace that reached it, and the depth
// it was first reached at (kept for diagnostics, not correctness).
type stateInfo[S any, E any] struct {
	state      S
	hasPrev    bool
	prevDigest [32]byte
	prevEvent  E
	depth      int
}

// discovered is the concurrent set of every state a search has reached,
// keyed by digest so S need not be a Go-comparable type. A mutex-guarded
// map is enough here: every worker's critical section is a single
// lookup-or-insert, never a long-held lock.
type discovered[S any, E any] struct {
	mu    sync.Mutex
	items map[[32]byte]stateInfo[S, E]
}

func newDiscovered[S any, E any]() *discovered[S, E] {
	return &discovered[S, E]{items: make(map[[32]byte]stateInfo[S, E])}
}

// insertIfAbsent records info for digest if it is not already present,
// preserving whichever trace discovered it first (which may be shorter
// than one found later). Reports whether this call actually inserted.
func (d *discovered[S, E]) insertIfAbsent(digest [32]byte, info stateInfo[S, E]) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.items[digest]; ok {
		return false
	}
	d.items[digest] = info
	return true
}

func (d *discovered[S, E]) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func (d *discovered[S, E]) get(digest [32]byte) (stateInfo[S, E], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	info, ok := d.items[digest]
	return info, ok
}

// trace walks prev links back to the initial state (which has no prev)
// and returns the path forward from it, oldest first.
func trace[S any, E any](d *discovered[S, E], target [32]byte) []TraceStep[S, E] {
	info, ok := d.get(target)
	if !ok || !info.hasPrev {
		return nil
	}
	path := trace(d, info.prevDigest)
	return append(path, TraceStep[S, E]{Event: info.prevEvent, State: info.state})
}

// searchFinished is the single-writer-wins completion signal every
// worker and the status loop race against: the first finish() call
// records the result and closes done; every later call is a no-op.
type searchFinished[R any] struct {
	mu     sync.Mutex
	result *R
	once   sync.Once
	done   chan struct{}
}

func newSearchFinished[R any]() *searchFinished[R] {
	return &searchFinished[R]{done: make(chan struct{})}
}

func (f *searchFinished[R]) finish(r R) {
	f.mu.Lock()
	if f.result == nil {
		f.result = &r
	}
	f.mu.Unlock()
	f.once.Do(func() { close(f.done) })
}

func (f *searchFinished[R]) isFinished() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// barrier is a reusable cyclic barrier for a fixed number of goroutines,
// the same role std::sync::Barrier plays in the original worker loop:
// every depth's workers must all finish exploring before any of them
// swaps in the next depth's queue.
type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	n     int
	count int
	gen   int
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// wait blocks until n goroutines have called wait for the current
// generation, then releases all of them. The caller whose arrival
// completed the generation gets leader == true.
func (b *barrier) wait() (leader bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return true
	}
	for gen == b.gen {
		b.cond.Wait()
	}
	return false
}

// runStatusLoop starts a goroutine that logs status(elapsed) every 5
// seconds until done is closed, then logs a final line and closes the
// returned channel. It runs independently of the search's own Status,
// mirroring the original implementation's periodic status reporting.
func runStatusLoop(done <-chan struct{}, status func(elapsed time.Duration) (string, int)) <-chan struct{} {
	finishedLog := make(chan struct{})
	go func() {
		defer close(finishedLog)
		start := time.Now()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func(elapsed time.Duration) (string, int) {
			msg, n := status(elapsed)
			metrics.SearchStatesDiscovered.Set(float64(n))
			if elapsed > 0 {
				metrics.SearchStatesPerSecond.Set(float64(n) / elapsed.Seconds())
			}
			return msg, n
		}
		for {
			select {
			case <-done:
				msg, n := report(time.Since(start))
				hlog.Logger.Info().Int("discovered", n).Str("summary", msg).Msg("search finished")
				return
			case <-ticker.C:
				msg, n := report(time.Since(start))
				hlog.Logger.Info().Int("discovered", n).Str("summary", msg).Msg("search in progress")
			}
		}
	}()
	return finishedLog
}

// waitOrTimeout blocks until finished.done closes or, if maxDuration is
// positive, until maxDuration elapses first. On a real timeout it calls
// finished.finish with a StatusTimeout result so every worker observing
// isFinished() stops promptly.
func waitOrTimeout[S any, E any](finished *searchFinished[Result[S, E]], maxDuration time.Duration) {
	if maxDuration > 0 {
		select {
		case <-finished.done:
		case <-time.After(maxDuration):
		}
	} else {
		<-finished.done
	}
	if !finished.isFinished() {
		finished.finish(Result[S, E]{Status: StatusTimeout})
	}
}
