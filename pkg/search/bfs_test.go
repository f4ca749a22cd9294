package search

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// boundedWalk is a toy model for exercising the search engine: a signed
// counter confined to [-2, 2] by which events it offers at each bound.
type boundedWalk struct {
	n      int
	boomAt int // Apply errors the first time n reaches this value; 0 disables it
}

func (w boundedWalk) Hash(h xcrypto.DigestHasher) {
	h.WriteUint32(uint32(int32(w.n)))
}

func (w boundedWalk) Apply(event string) (boundedWalk, error) {
	switch event {
	case "inc":
		return boundedWalk{n: w.n + 1, boomAt: w.boomAt}, nil
	case "dec":
		return boundedWalk{n: w.n - 1, boomAt: w.boomAt}, nil
	case "boom":
		return boundedWalk{}, fmt.Errorf("boom at n=%d", w.n)
	default:
		return boundedWalk{}, fmt.Errorf("unknown event %q", event)
	}
}

func (w boundedWalk) Events() []string {
	var events []string
	if w.boomAt != 0 && w.n == w.boomAt {
		return []string{"boom"}
	}
	if w.n < 2 {
		events = append(events, "inc")
	}
	if w.n > -2 {
		events = append(events, "dec")
	}
	return events
}

func TestBreadthFirstFindsGoal(t *testing.T) {
	settings := Settings[boundedWalk, string]{
		Goal: func(s boundedWalk) bool { return s.n == 2 },
	}
	result, err := BreadthFirst[boundedWalk, string](boundedWalk{}, settings, 2, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusGoalFound, result.Status)
	assert.Equal(t, 2, result.State.n)
}

func TestBreadthFirstReportsInvariantViolation(t *testing.T) {
	settings := Settings[boundedWalk, string]{
		Invariant: func(s boundedWalk) error {
			if s.n >= 2 {
				return fmt.Errorf("n must stay below 2, got %d", s.n)
			}
			return nil
		},
	}
	result, err := BreadthFirst[boundedWalk, string](boundedWalk{}, settings, 2, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusInvariantViolation, result.Status)
	assert.Equal(t, 2, result.State.n)
	assert.NotEmpty(t, result.Trace)
	assert.Equal(t, 2, result.State.n)
	assert.Equal(t, result.State.n, result.Trace[len(result.Trace)-1].State.n)
}

func TestBreadthFirstExhaustsSmallSpace(t *testing.T) {
	settings := Settings[boundedWalk, string]{}
	result, err := BreadthFirst[boundedWalk, string](boundedWalk{}, settings, 3, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusSpaceExhausted, result.Status)
}

func TestBreadthFirstSurfacesApplyError(t *testing.T) {
	settings := Settings[boundedWalk, string]{}
	result, err := BreadthFirst[boundedWalk, string](boundedWalk{boomAt: 1}, settings, 2, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusErr, result.Status)
	assert.Equal(t, 1, result.State.n)
	assert.Error(t, result.Err)
}

// panicker is a toy model whose Apply panics instead of erroring, to
// exercise the engine's recover() guard around handler steps.
type panicker struct{ n int }

func (w panicker) Hash(h xcrypto.DigestHasher) { h.WriteUint32(uint32(w.n)) }

func (w panicker) Apply(event string) (panicker, error) {
	if event == "boom" {
		panic("simulated handler panic")
	}
	return panicker{n: w.n + 1}, nil
}

func (w panicker) Events() []string {
	if w.n == 1 {
		return []string{"boom"}
	}
	return []string{"inc"}
}

func TestBreadthFirstRecoversApplyPanic(t *testing.T) {
	settings := Settings[panicker, string]{}
	result, err := BreadthFirst[panicker, string](panicker{}, settings, 1, 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusErr, result.Status)
	assert.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "panicked")
}

func TestBreadthFirstRespectsMaxDepth(t *testing.T) {
	settings := Settings[boundedWalk, string]{
		Goal:     func(s boundedWalk) bool { return s.n == 2 },
		MaxDepth: 1,
	}
	result, err := BreadthFirst[boundedWalk, string](boundedWalk{}, settings, 1, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusSpaceExhausted, result.Status, "goal at depth 2 must be unreachable with max depth 1")
}
