package search

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/murmesh/pkg/metrics"
)

// BreadthFirst explores every state reachable from initial, depth by
// depth, across numWorkers goroutines. It stops at the first invariant
// violation or goal state, or reports StatusSpaceExhausted once the
// reachable set is fully enumerated. A zero maxDuration means no
// deadline.
//
// Depths are processed in lockstep: every worker drains the current
// depth's queue into the next depth's queue, then waits at a barrier
// before any of them starts on the next depth, matching the original
// breadth-first worker's queue-swap discipline.
func BreadthFirst[S State[S, E], E any](initial S, settings Settings[S, E], numWorkers int, maxDuration time.Duration) (Result[S, E], error) {
	if numWorkers < 1 {
		numWorkers = 1
	}

	disc := newDiscovered[S, E]()
	disc.insertIfAbsent(digestOf(initial), stateInfo[S, E]{state: initial, depth: 0})

	queue := &fifo[S]{}
	pushingQueue := &fifo[S]{}
	queue.push(initial)

	b := newBarrier(numWorkers)
	finished := newSearchFinished[Result[S, E]]()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			bfsWorker[S, E](settings, disc, queue, pushingQueue, b, finished)
		}()
	}

	statusDone := runStatusLoop(finished.done, func(elapsed time.Duration) (string, int) {
		n := disc.len()
		return fmt.Sprintf("explored %d states, %.2fs elapsed, %.2fK states/s",
			n, elapsed.Seconds(), float64(n)/elapsed.Seconds()/1000), n
	})

	waitOrTimeout(finished, maxDuration)
	wg.Wait()
	<-statusDone

	metrics.SearchResultsTotal.WithLabelValues(resultStatusLabel(finished.result.Status)).Inc()
	return *finished.result, nil
}

func bfsWorker[S State[S, E], E any](
	settings Settings[S, E],
	disc *discovered[S, E],
	queue, pushingQueue *fifo[S],
	b *barrier,
	finished *searchFinished[Result[S, E]],
) {
	for localDepth := 0; ; localDepth++ {
	innerLoop:
		for {
			state, ok := queue.pop()
			if !ok {
				break innerLoop
			}
			stateDigest := digestOf(state)
			for _, event := range state.Events() {
				next, err := step[S, E](state, event)
				if err != nil {
					finished.finish(Result[S, E]{
						Status: StatusErr, State: state, Event: event, Err: err,
						Trace: trace(disc, stateDigest),
					})
					break innerLoop
				}
				nextDigest := digestOf(next)
				inserted := disc.insertIfAbsent(nextDigest, stateInfo[S, E]{
					state: next, hasPrev: true, prevDigest: stateDigest, prevEvent: event, depth: localDepth + 1,
				})
				if !inserted {
					continue
				}
				if err := settings.invariant(next); err != nil {
					finished.finish(Result[S, E]{
						Status: StatusInvariantViolation, State: next, Err: err,
						Trace: trace(disc, nextDigest),
					})
					break innerLoop
				}
				if settings.goal(next) {
					finished.finish(Result[S, E]{Status: StatusGoalFound, State: next})
					break innerLoop
				}
				atMaxDepth := settings.MaxDepth != 0 && localDepth+1 == settings.MaxDepth
				if !atMaxDepth && !settings.prune(next) {
					pushingQueue.push(next)
				}
			}
			if finished.isFinished() {
				break innerLoop
			}
		}

		b.wait()
		exhausted := pushingQueue.empty()
		b.wait()
		if finished.isFinished() {
			return
		}
		if exhausted {
			finished.finish(Result[S, E]{Status: StatusSpaceExhausted})
			return
		}
		queue, pushingQueue = pushingQueue, queue
	}
}
