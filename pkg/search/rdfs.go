package search

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/murmesh/pkg/metrics"
)

// RandomDepthFirst repeatedly walks a random path from initial,
// choosing one event uniformly at random at each step, until it finds
// an invariant violation, a goal state, a dead end (no events left), or
// runs out of time. Unlike BreadthFirst it never claims the search
// space is exhausted — it is a probe, not an enumeration — so a clean
// run only ever ends in StatusTimeout.
func RandomDepthFirst[S State[S, E], E any](initial S, settings Settings[S, E], numWorkers int, maxDuration time.Duration) (Result[S, E], error) {
	if numWorkers < 1 {
		numWorkers = 1
	}

	var numProbe, numState uint64
	finished := newSearchFinished[Result[S, E]]()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		seed := time.Now().UnixNano() + int64(i)
		go func(seed int64) {
			defer wg.Done()
			rdfsWorker[S, E](settings, initial, &numProbe, &numState, seed, finished)
		}(seed)
	}

	statusDone := runStatusLoop(finished.done, func(elapsed time.Duration) (string, int) {
		n := int(atomic.LoadUint64(&numState))
		return fmt.Sprintf("%d probes, %d explored, %.2fs elapsed, %.2fK explored/s",
			atomic.LoadUint64(&numProbe), n, elapsed.Seconds(), float64(n)/elapsed.Seconds()/1000), n
	})

	waitOrTimeout(finished, maxDuration)
	wg.Wait()
	<-statusDone

	metrics.SearchResultsTotal.WithLabelValues(resultStatusLabel(finished.result.Status)).Inc()
	return *finished.result, nil
}

func rdfsWorker[S State[S, E], E any](
	settings Settings[S, E],
	initial S,
	numProbe, numState *uint64,
	seed int64,
	finished *searchFinished[Result[S, E]],
) {
	rng := rand.New(rand.NewSource(seed))
	for !finished.isFinished() {
		atomic.AddUint64(numProbe, 1)
		state := initial
		var path []TraceStep[S, E]

		for depth := 0; ; depth++ {
			events := state.Events()
			if len(events) == 0 {
				break
			}
			event := events[rng.Intn(len(events))]
			next, err := step[S, E](state, event)
			if err != nil {
				finished.finish(Result[S, E]{Status: StatusErr, State: state, Event: event, Err: err, Trace: path})
				break
			}
			atomic.AddUint64(numState, 1)
			path = append(path, TraceStep[S, E]{Event: event, State: next})

			if err := settings.invariant(next); err != nil {
				finished.finish(Result[S, E]{Status: StatusInvariantViolation, State: next, Err: err, Trace: path})
				break
			}
			if settings.goal(next) {
				finished.finish(Result[S, E]{Status: StatusGoalFound, State: next})
				break
			}
			atMaxDepth := settings.MaxDepth != 0 && depth+1 == settings.MaxDepth
			if settings.prune(next) || atMaxDepth || finished.isFinished() {
				break
			}
			state = next
		}
	}
}
