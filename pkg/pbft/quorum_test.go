package pbft

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/murmesh/pkg/types"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

func TestScratchTakePrepareQuorumFiltersByDigest(t *testing.T) {
	s := newScratch()
	digest := [32]byte{1}
	other := [32]byte{2}
	s.insertPrepare(5, xcrypto.Verifiable[Prepare]{Message: Prepare{OpNum: 5, Digest: digest, ReplicaID: 0}})
	s.insertPrepare(5, xcrypto.Verifiable[Prepare]{Message: Prepare{OpNum: 5, Digest: other, ReplicaID: 1}})

	got := s.takePrepareQuorum(5, digest)
	assert.Len(t, got, 1)
	assert.Contains(t, got, types.ReplicaID(0))

	// Once taken, the scratch entry for op num 5 is gone.
	assert.Empty(t, s.takePrepareQuorum(5, digest))
}

func TestScratchCommitQuorumIndependentOfPrepareQuorum(t *testing.T) {
	s := newScratch()
	digest := [32]byte{9}
	s.insertCommit(3, xcrypto.Verifiable[Commit]{Message: Commit{OpNum: 3, Digest: digest, ReplicaID: 2}})

	assert.Empty(t, s.takePrepareQuorum(3, digest))
	got := s.takeCommitQuorum(3, digest)
	assert.Len(t, got, 1)
}

func TestPrePrepareVerifyInFlightDedup(t *testing.T) {
	s := newScratch()
	assert.False(t, s.enqueuePrePrepareVerify(1))
	assert.True(t, s.enqueuePrePrepareVerify(1))
	s.clearPrePrepareVerify(1)
	assert.False(t, s.enqueuePrePrepareVerify(1))
}

func TestLogOpenGrowsAndPreservesEarlierEntries(t *testing.T) {
	l := NewLog()
	pp1 := xcrypto.Verifiable[PrePrepare]{Message: PrePrepare{OpNum: 1}}
	pp3 := xcrypto.Verifiable[PrePrepare]{Message: PrePrepare{OpNum: 3}}
	l.Open(1, pp1)
	l.Open(3, pp3)

	e1, ok := l.Get(1)
	assert.True(t, ok)
	assert.Equal(t, uint32(1), e1.PrePrepare.Message.OpNum)

	e2, ok := l.Get(2)
	assert.True(t, ok) // slot exists (grown), but never opened with a PrePrepare
	assert.Equal(t, uint32(0), e2.PrePrepare.Message.OpNum)

	_, ok = l.Get(10)
	assert.False(t, ok)
}
