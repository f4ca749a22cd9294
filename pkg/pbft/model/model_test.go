package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/murmesh/pkg/search"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

func TestBreadthFirstCommitsOneRequest(t *testing.T) {
	initial, err := NewSystemState(4, xcrypto.Plain, 1)
	require.NoError(t, err)

	settings := search.Settings[SystemState, Event]{
		Goal:     func(s SystemState) bool { return len(s.Client.Completed) > 0 },
		MaxDepth: 30,
	}
	result, err := search.BreadthFirst[SystemState, Event](initial, settings, 4, 20*time.Second)
	require.NoError(t, err)
	require.Equal(t, search.StatusGoalFound, result.Status)
	require.Len(t, result.State.Client.Completed, 1)
	assert.Equal(t, uint64(1), result.State.Client.Completed[0].RequestNum)
}

func TestBreadthFirstNeverCommitsWithoutQuorum(t *testing.T) {
	initial, err := NewSystemState(4, xcrypto.Plain, 1)
	require.NoError(t, err)

	settings := search.Settings[SystemState, Event]{
		Invariant: func(s SystemState) error {
			for _, r := range s.Replicas {
				for opNum, entry := range r.Log {
					if !entry.Committed {
						continue
					}
					matching := 0
					for _, v := range entry.Commits {
						if v.Message.Digest == entry.PrePrepare.Message.Digest {
							matching++
						}
					}
					if matching < 3 { // Quorum(4) == 3
						t.Fatalf("replica committed op %d with only %d matching commits", opNum, matching)
					}
				}
			}
			return nil
		},
		MaxDepth: 40,
	}
	result, err := search.BreadthFirst[SystemState, Event](initial, settings, 4, 20*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, search.StatusInvariantViolation, result.Status)
}

func TestRandomDepthFirstExploresWithoutError(t *testing.T) {
	initial, err := NewSystemState(4, xcrypto.Plain, 3)
	require.NoError(t, err)

	settings := search.Settings[SystemState, Event]{
		Prune: func(s SystemState) bool { return len(s.Client.Completed) >= 3 },
	}
	result, err := search.RandomDepthFirst[SystemState, Event](initial, settings, 2, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, search.StatusTimeout, result.Status)
}

func TestSystemStateHashIsOrderIndependent(t *testing.T) {
	a, err := NewSystemState(4, xcrypto.Plain, 1)
	require.NoError(t, err)
	b, err := NewSystemState(4, xcrypto.Plain, 1)
	require.NoError(t, err)

	assert.Equal(t, xcrypto.HashBytes(a), xcrypto.HashBytes(b))
}
