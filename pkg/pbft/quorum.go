package pbft

import (
	"github.com/cuemby/murmesh/pkg/types"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// scratch holds Prepare/Commit messages that arrived before their op num's
// PrePrepare did, plus the one-in-flight-verification-per-op-num guard for
// PrePrepares: since exactly one replica ever proposes a given op num, a
// retransmitted PrePrepare racing ahead of its own original is the only
// case that needs deduplicating before verification completes.
type scratch struct {
	prepareQuorums map[uint32]map[types.ReplicaID]xcrypto.Verifiable[Prepare]
	commitQuorums  map[uint32]map[types.ReplicaID]xcrypto.Verifiable[Commit]

	prePrepareVerifyInFlight map[uint32]bool
}

func newScratch() *scratch {
	return &scratch{
		prepareQuorums:           make(map[uint32]map[types.ReplicaID]xcrypto.Verifiable[Prepare]),
		commitQuorums:            make(map[uint32]map[types.ReplicaID]xcrypto.Verifiable[Commit]),
		prePrepareVerifyInFlight: make(map[uint32]bool),
	}
}

func (s *scratch) insertPrepare(opNum uint32, v xcrypto.Verifiable[Prepare]) {
	m, ok := s.prepareQuorums[opNum]
	if !ok {
		m = make(map[types.ReplicaID]xcrypto.Verifiable[Prepare])
		s.prepareQuorums[opNum] = m
	}
	m[v.Message.ReplicaID] = v
}

func (s *scratch) insertCommit(opNum uint32, v xcrypto.Verifiable[Commit]) {
	m, ok := s.commitQuorums[opNum]
	if !ok {
		m = make(map[types.ReplicaID]xcrypto.Verifiable[Commit])
		s.commitQuorums[opNum] = m
	}
	m[v.Message.ReplicaID] = v
}

// takePrepareQuorum removes and returns any scratch Prepares matching
// digest for opNum, for folding into a freshly-opened LogEntry.
func (s *scratch) takePrepareQuorum(opNum uint32, digest [32]byte) map[types.ReplicaID]xcrypto.Verifiable[Prepare] {
	m, ok := s.prepareQuorums[opNum]
	if !ok {
		return nil
	}
	delete(s.prepareQuorums, opNum)
	out := make(map[types.ReplicaID]xcrypto.Verifiable[Prepare])
	for id, v := range m {
		if v.Message.Digest == digest {
			out[id] = v
		}
	}
	return out
}

func (s *scratch) takeCommitQuorum(opNum uint32, digest [32]byte) map[types.ReplicaID]xcrypto.Verifiable[Commit] {
	m, ok := s.commitQuorums[opNum]
	if !ok {
		return nil
	}
	delete(s.commitQuorums, opNum)
	out := make(map[types.ReplicaID]xcrypto.Verifiable[Commit])
	for id, v := range m {
		if v.Message.Digest == digest {
			out[id] = v
		}
	}
	return out
}

// enqueuePrePrepareVerify marks opNum's PrePrepare verification as in
// flight and reports whether one was already running.
func (s *scratch) enqueuePrePrepareVerify(opNum uint32) (alreadyInFlight bool) {
	alreadyInFlight = s.prePrepareVerifyInFlight[opNum]
	s.prePrepareVerifyInFlight[opNum] = true
	return alreadyInFlight
}

// clearPrePrepareVerify marks opNum's PrePrepare verification as complete.
func (s *scratch) clearPrePrepareVerify(opNum uint32) {
	delete(s.prePrepareVerifyInFlight, opNum)
}
