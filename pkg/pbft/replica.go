package pbft

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/cuemby/murmesh/pkg/app"
	"github.com/cuemby/murmesh/pkg/evt"
	"github.com/cuemby/murmesh/pkg/hlog"
	"github.com/cuemby/murmesh/pkg/metrics"
	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/types"
	"github.com/cuemby/murmesh/pkg/worker"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// Net is the outbound capability a Replica needs: unicast to a client or
// peer replica, broadcast to every other replica.
type Net = netw.Net[types.Addr, []byte]

// ReplicaEvent is the sum type a Replica's evt.Session dispatches. Go has
// no algebraic enum, so each variant is its own type implementing the
// marker method; OnEvent type-switches on it exactly like the original
// Rust ReplicaEvent enum's match arms.
type ReplicaEvent interface{ isReplicaEvent() }

type EvIngressRequest struct {
	From    types.Addr
	Request types.Request
}

// EvBatchTimeout fires when BatchTimeout elapses with a nonempty pending
// queue and no size trigger has closed the batch yet.
type EvBatchTimeout struct{}

type EvIngressPrePrepare struct {
	From types.Addr
	Msg  xcrypto.Verifiable[PrePrepare]
}

type EvSignedPrePrepare struct {
	Msg xcrypto.Verifiable[PrePrepare]
}

type EvVerifiedPrePrepare struct {
	Msg xcrypto.Verifiable[PrePrepare]
	Ok  bool
}

type EvIngressPrepare struct {
	From types.Addr
	Msg  xcrypto.Verifiable[Prepare]
}

type EvSignedPrepare struct {
	Msg xcrypto.Verifiable[Prepare]
}

type EvVerifiedPrepare struct {
	Msg xcrypto.Verifiable[Prepare]
	Ok  bool
}

type EvIngressCommit struct {
	From types.Addr
	Msg  xcrypto.Verifiable[Commit]
}

type EvSignedCommit struct {
	Msg xcrypto.Verifiable[Commit]
}

type EvVerifiedCommit struct {
	Msg xcrypto.Verifiable[Commit]
	Ok  bool
}

func (EvIngressRequest) isReplicaEvent()     {}
func (EvBatchTimeout) isReplicaEvent()       {}
func (EvIngressPrePrepare) isReplicaEvent()  {}
func (EvSignedPrePrepare) isReplicaEvent()   {}
func (EvVerifiedPrePrepare) isReplicaEvent() {}
func (EvIngressPrepare) isReplicaEvent()     {}
func (EvSignedPrepare) isReplicaEvent()      {}
func (EvVerifiedPrepare) isReplicaEvent()    {}
func (EvIngressCommit) isReplicaEvent()      {}
func (EvSignedCommit) isReplicaEvent()       {}
func (EvVerifiedCommit) isReplicaEvent()     {}

// clientRecord is the dedup/cached-reply entry for one client, keyed by
// client id: the heart of the "execute at most once" guarantee.
type clientRecord struct {
	lastRequestNum uint64
	cachedReply    *types.Reply
}

// ReplicaConfig configures a Replica instance.
type ReplicaConfig struct {
	ID     types.ReplicaID
	N      int
	Net    Net
	App    app.App
	Crypto *xcrypto.Crypto
	Lane   *worker.Lane
	Timer  evt.Timer[ReplicaEvent]
	// BatchSize is the primary's size trigger: once this many requests
	// are pending, the batch closes immediately regardless of the timer.
	// A value <= 1 closes the batch on every single request, the
	// teacher's original one-request-per-PrePrepare behavior.
	BatchSize int
	// BatchTimeout is the primary's time trigger: once a pending batch
	// has sat open this long, it closes even if it never reached
	// BatchSize. Zero disables the timer, leaving only the size trigger.
	BatchTimeout time.Duration
	// OnCommit, if set, is called synchronously from the owning Session
	// goroutine immediately after a batch is executed and its replies
	// cached, letting a caller persist the committed entries and client
	// records (e.g. to pkg/storage) without reaching into Replica's
	// private state.
	OnCommit func(opNum uint32, reqs []types.Request, replies []types.Reply)
}

// Replica is one PBFT replica's state machine. Every field is only ever
// touched from the owning evt.Session goroutine except where a comment
// says otherwise (crypto worker continuations, which only ever call Self,
// a thread-safe SendEvent).
type Replica struct {
	id     types.ReplicaID
	n      int
	net    Net
	app    app.App
	crypto *xcrypto.Crypto
	lane   *worker.Lane
	self   evt.SendEvent[ReplicaEvent]
	timer  evt.Timer[ReplicaEvent]

	batchSize    int
	batchTimeout time.Duration

	viewNum   uint32
	opNum     uint32
	commitNum uint32
	log       *Log
	scratch   *scratch
	clients   map[types.ClientID]*clientRecord
	onCommit  func(opNum uint32, reqs []types.Request, replies []types.Reply)

	pending      []types.Request
	haveBatchTmr bool
	batchTimer   evt.TimerID
}

// NewReplica constructs a Replica ready to have its Self wired to a
// Session and then Run.
func NewReplica(cfg ReplicaConfig) *Replica {
	metrics.ViewNumber.Set(0)
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Replica{
		id:           cfg.ID,
		n:            cfg.N,
		net:          cfg.Net,
		app:          cfg.App,
		crypto:       cfg.Crypto,
		lane:         cfg.Lane,
		timer:        cfg.Timer,
		batchSize:    batchSize,
		batchTimeout: cfg.BatchTimeout,
		log:          NewLog(),
		scratch:      newScratch(),
		clients:      make(map[types.ClientID]*clientRecord),
		onCommit:     cfg.OnCommit,
	}
}

// SetSelf wires the SendEvent the replica uses to post crypto-worker
// completion events back onto its own Session. Callers construct the
// Replica, build an evt.Session around it, then call SetSelf(session).
func (r *Replica) SetSelf(self evt.SendEvent[ReplicaEvent]) {
	r.self = self
}

// SetTimer wires the Timer capability the replica uses to arm a batch
// close timeout, the same two-step wiring Client.SetTimer uses: a
// Session's Timer is only available once the Session itself is built
// around its owner.
func (r *Replica) SetTimer(t evt.Timer[ReplicaEvent]) {
	r.timer = t
}

func (r *Replica) isPrimary() bool {
	return Primary(r.viewNum, r.n) == r.id
}

// OnEvent dispatches a ReplicaEvent to the matching normal-path step.
func (r *Replica) OnEvent(event ReplicaEvent) error {
	switch e := event.(type) {
	case EvIngressRequest:
		return r.onIngressRequest(e.From, e.Request)
	case EvBatchTimeout:
		return r.onBatchTimeout()
	case EvIngressPrePrepare:
		return r.onIngressPrePrepare(e.From, e.Msg)
	case EvSignedPrePrepare:
		return r.onSignedPrePrepare(e.Msg)
	case EvVerifiedPrePrepare:
		return r.onVerifiedPrePrepare(e.Msg, e.Ok)
	case EvIngressPrepare:
		return r.onIngressPrepare(e.From, e.Msg)
	case EvSignedPrepare:
		return r.onSignedPrepare(e.Msg)
	case EvVerifiedPrepare:
		return r.onVerifiedPrepare(e.Msg, e.Ok)
	case EvIngressCommit:
		return r.onIngressCommit(e.From, e.Msg)
	case EvSignedCommit:
		return r.onSignedCommit(e.Msg)
	case EvVerifiedCommit:
		return r.onVerifiedCommit(e.Msg, e.Ok)
	default:
		return fmt.Errorf("pbft: replica %d received unknown event %T", r.id, event)
	}
}

func digestBatch(reqs []types.Request) [32]byte {
	h := sha256.New()
	for _, req := range reqs {
		h.Write(xcrypto.HashBytes(req))
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (r *Replica) onIngressRequest(from types.Addr, req types.Request) error {
	rec, ok := r.clients[req.ClientID]
	if !ok {
		rec = &clientRecord{}
		r.clients[req.ClientID] = rec
	}
	switch {
	case req.RequestNum < rec.lastRequestNum:
		metrics.RequestsTotal.WithLabelValues("stale").Inc()
		return nil // stale retransmission, drop
	case req.RequestNum == rec.lastRequestNum && rec.cachedReply != nil:
		metrics.RequestsTotal.WithLabelValues("resent").Inc()
		return r.sendReply(from, *rec.cachedReply)
	case req.RequestNum > rec.lastRequestNum:
		// fallthrough to propose, handled below
	default:
		return nil
	}

	if !r.isPrimary() {
		// Only the primary proposes; a non-primary replica has nothing
		// useful to do with a fresh client request. The client broadcasts
		// every request to all replicas, so the primary gets its own copy.
		return nil
	}

	r.pending = append(r.pending, req)
	metrics.RequestsTotal.WithLabelValues("queued").Inc()

	if len(r.pending) >= r.batchSize {
		return r.closeBatch()
	}
	return r.armBatchTimer()
}

// armBatchTimer starts the batch-close timeout the first time a pending
// queue goes nonempty without immediately reaching BatchSize. A zero
// BatchTimeout leaves batches waiting on the size trigger alone.
func (r *Replica) armBatchTimer() error {
	if r.batchTimeout <= 0 || r.haveBatchTmr {
		return nil
	}
	id, err := r.timer.Set(r.batchTimeout, EvBatchTimeout{})
	if err != nil {
		return err
	}
	r.batchTimer = id
	r.haveBatchTmr = true
	return nil
}

func (r *Replica) onBatchTimeout() error {
	r.haveBatchTmr = false
	if len(r.pending) == 0 || !r.isPrimary() {
		return nil
	}
	return r.closeBatch()
}

// closeBatch allocates the next op num for the whole pending queue,
// computes a single digest over the batch, and signs the resulting
// PrePrepare. This is the only place a primary proposes.
func (r *Replica) closeBatch() error {
	if r.haveBatchTmr {
		_ = r.timer.Unset(r.batchTimer)
		r.haveBatchTmr = false
	}

	reqs := r.pending
	r.pending = nil

	r.opNum++
	opNum := r.opNum
	metrics.OpNum.Set(float64(opNum))
	metrics.RequestsTotal.WithLabelValues("proposed").Add(float64(len(reqs)))
	digest := digestBatch(reqs)
	pp := PrePrepare{ViewNum: r.viewNum, OpNum: opNum, Digest: digest, Requests: reqs}

	var signed xcrypto.Verifiable[PrePrepare]
	r.lane.Submit(
		func() error {
			timer := metrics.NewTimer()
			signed = xcrypto.Sign(r.crypto, pp)
			timer.ObserveDurationVec(metrics.CryptoOpDuration, "sign")
			return nil
		},
		func(error) {
			_ = r.self.Send(EvSignedPrePrepare{Msg: signed})
		},
	)
	return nil
}

func (r *Replica) sendReply(to types.Addr, reply types.Reply) error {
	buf, err := netw.Encode(KindReply, reply)
	if err != nil {
		return err
	}
	return r.net.Send(to, buf)
}

func (r *Replica) onSignedPrePrepare(pp xcrypto.Verifiable[PrePrepare]) error {
	buf, err := netw.Encode(KindPrePrepare, pp)
	if err != nil {
		return err
	}
	if err := r.net.SendAll(buf); err != nil {
		hlog.Errorf("pbft: broadcast pre-prepare failed", err)
	}
	// The primary trusts its own signature; it folds the PrePrepare in
	// directly instead of round-tripping through verification.
	return r.onVerifiedPrePrepare(pp, true)
}

func (r *Replica) onIngressPrePrepare(_ types.Addr, pp xcrypto.Verifiable[PrePrepare]) error {
	if pp.Message.ViewNum != r.viewNum {
		return nil
	}
	if entry, ok := r.log.Get(pp.Message.OpNum); ok && entry.Prepares != nil {
		return nil // this op num already holds a PrePrepare
	}

	opNum := pp.Message.OpNum
	if r.scratch.enqueuePrePrepareVerify(opNum) {
		// A verification of this exact op num's PrePrepare is already in
		// flight (a retransmission raced ahead of its own original); only
		// one replica ever proposes a given op num, so skipping the
		// duplicate submission loses nothing.
		return nil
	}
	primary := Primary(pp.Message.ViewNum, r.n)
	r.lane.Submit(
		func() error {
			timer := metrics.NewTimer()
			err := xcrypto.Verify(r.crypto, uint8(primary), pp)
			timer.ObserveDurationVec(metrics.CryptoOpDuration, "verify")
			return err
		},
		func(err error) {
			_ = r.self.Send(EvVerifiedPrePrepare{Msg: pp, Ok: err == nil})
		},
	)
	return nil
}

func (r *Replica) onVerifiedPrePrepare(pp xcrypto.Verifiable[PrePrepare], ok bool) error {
	r.scratch.clearPrePrepareVerify(pp.Message.OpNum)
	if !ok {
		hlog.Logger.Warn().Uint32("op_num", pp.Message.OpNum).Msg("pre-prepare signature invalid, dropping")
		return nil
	}

	entry := r.log.Open(pp.Message.OpNum, pp)
	// Prepares/Commits that arrived before this PrePrepare were only
	// buffered, never trusted; fold them back through the normal
	// verify-then-insert path instead of installing them directly.
	for _, v := range r.scratch.takePrepareQuorum(pp.Message.OpNum, pp.Message.Digest) {
		r.verifyAndInsertPrepare(v)
	}
	for _, v := range r.scratch.takeCommitQuorum(pp.Message.OpNum, pp.Message.Digest) {
		r.verifyAndInsertCommit(v)
	}

	prepare := Prepare{ViewNum: pp.Message.ViewNum, OpNum: pp.Message.OpNum, Digest: pp.Message.Digest, ReplicaID: r.id}
	var signedPrepare xcrypto.Verifiable[Prepare]
	r.lane.Submit(
		func() error {
			timer := metrics.NewTimer()
			signedPrepare = xcrypto.Sign(r.crypto, prepare)
			timer.ObserveDurationVec(metrics.CryptoOpDuration, "sign")
			return nil
		},
		func(error) {
			_ = r.self.Send(EvSignedPrepare{Msg: signedPrepare})
		},
	)
	return r.tryAdvance(pp.Message.OpNum)
}

func (r *Replica) onSignedPrepare(p xcrypto.Verifiable[Prepare]) error {
	buf, err := netw.Encode(KindPrepare, p)
	if err != nil {
		return err
	}
	if err := r.net.SendAll(buf); err != nil {
		hlog.Errorf("pbft: broadcast prepare failed", err)
	}
	entry, ok := r.log.Get(p.Message.OpNum)
	if !ok {
		return nil
	}
	entry.Prepares[p.Message.ReplicaID] = p
	return r.tryAdvance(p.Message.OpNum)
}

func (r *Replica) onIngressPrepare(_ types.Addr, p xcrypto.Verifiable[Prepare]) error {
	if _, ok := r.log.Get(p.Message.OpNum); !ok {
		r.scratch.insertPrepare(p.Message.OpNum, p)
		return nil
	}
	r.verifyAndInsertPrepare(p)
	return nil
}

// verifyAndInsertPrepare submits p for signature verification unless this
// sender's Prepare for this op num is already recorded; the result lands
// back as EvVerifiedPrepare regardless of whether the op num's LogEntry
// was already open (this call) or only just opened (the scratch fold in
// onVerifiedPrePrepare).
func (r *Replica) verifyAndInsertPrepare(p xcrypto.Verifiable[Prepare]) {
	entry, ok := r.log.Get(p.Message.OpNum)
	if ok {
		if _, already := entry.Prepares[p.Message.ReplicaID]; already {
			return
		}
	}
	r.lane.Submit(
		func() error {
			timer := metrics.NewTimer()
			err := xcrypto.Verify(r.crypto, uint8(p.Message.ReplicaID), p)
			timer.ObserveDurationVec(metrics.CryptoOpDuration, "verify")
			return err
		},
		func(err error) {
			_ = r.self.Send(EvVerifiedPrepare{Msg: p, Ok: err == nil})
		},
	)
}

func (r *Replica) onVerifiedPrepare(p xcrypto.Verifiable[Prepare], ok bool) error {
	if !ok {
		hlog.Logger.Warn().Uint32("op_num", p.Message.OpNum).Msg("prepare signature invalid, dropping")
		return nil
	}
	entry, ok2 := r.log.Get(p.Message.OpNum)
	if !ok2 {
		r.scratch.insertPrepare(p.Message.OpNum, p)
		return nil
	}
	entry.Prepares[p.Message.ReplicaID] = p
	return r.tryAdvance(p.Message.OpNum)
}

// prepared reports whether opNum has collected a full quorum of matching
// Prepares to move to the commit phase. The PrePrepare itself is not
// counted; the primary earns its place in the quorum with the Prepare it
// signs for its own proposal (onSignedPrePrepare runs onVerifiedPrePrepare).
func (r *Replica) prepared(entry *LogEntry) bool {
	count := 0
	for _, v := range entry.Prepares {
		if v.Message.Digest == entry.PrePrepare.Message.Digest {
			count++
		}
	}
	return count >= Quorum(r.n)
}

// committedReady reports whether opNum has collected a full commit
// quorum and is ready to execute.
func (r *Replica) committedReady(entry *LogEntry) bool {
	count := 0
	for _, v := range entry.Commits {
		if v.Message.Digest == entry.PrePrepare.Message.Digest {
			count++
		}
	}
	return count >= Quorum(r.n)
}

// tryAdvance checks whether opNum just reached "prepared" for the first
// time and, if so, signs and broadcasts this replica's Commit.
func (r *Replica) tryAdvance(opNum uint32) error {
	entry, ok := r.log.Get(opNum)
	if !ok || entry.Committed {
		return nil
	}
	if _, sent := entry.Commits[r.id]; sent {
		return r.tryExecute()
	}
	if !r.prepared(entry) {
		return nil
	}
	commit := Commit{ViewNum: entry.PrePrepare.Message.ViewNum, OpNum: opNum, Digest: entry.PrePrepare.Message.Digest, ReplicaID: r.id}
	var signedCommit xcrypto.Verifiable[Commit]
	r.lane.Submit(
		func() error {
			timer := metrics.NewTimer()
			signedCommit = xcrypto.Sign(r.crypto, commit)
			timer.ObserveDurationVec(metrics.CryptoOpDuration, "sign")
			return nil
		},
		func(error) {
			_ = r.self.Send(EvSignedCommit{Msg: signedCommit})
		},
	)
	return nil
}

func (r *Replica) onSignedCommit(c xcrypto.Verifiable[Commit]) error {
	buf, err := netw.Encode(KindCommit, c)
	if err != nil {
		return err
	}
	if err := r.net.SendAll(buf); err != nil {
		hlog.Errorf("pbft: broadcast commit failed", err)
	}
	entry, ok := r.log.Get(c.Message.OpNum)
	if !ok {
		return nil
	}
	entry.Commits[c.Message.ReplicaID] = c
	return r.tryExecute()
}

func (r *Replica) onIngressCommit(_ types.Addr, c xcrypto.Verifiable[Commit]) error {
	if _, ok := r.log.Get(c.Message.OpNum); !ok {
		r.scratch.insertCommit(c.Message.OpNum, c)
		return nil
	}
	r.verifyAndInsertCommit(c)
	return nil
}

// verifyAndInsertCommit mirrors verifyAndInsertPrepare for the commit phase.
func (r *Replica) verifyAndInsertCommit(c xcrypto.Verifiable[Commit]) {
	entry, ok := r.log.Get(c.Message.OpNum)
	if ok {
		if _, already := entry.Commits[c.Message.ReplicaID]; already {
			return
		}
	}
	r.lane.Submit(
		func() error {
			timer := metrics.NewTimer()
			err := xcrypto.Verify(r.crypto, uint8(c.Message.ReplicaID), c)
			timer.ObserveDurationVec(metrics.CryptoOpDuration, "verify")
			return err
		},
		func(err error) {
			_ = r.self.Send(EvVerifiedCommit{Msg: c, Ok: err == nil})
		},
	)
}

func (r *Replica) onVerifiedCommit(c xcrypto.Verifiable[Commit], ok bool) error {
	if !ok {
		hlog.Logger.Warn().Uint32("op_num", c.Message.OpNum).Msg("commit signature invalid, dropping")
		return nil
	}
	entry, ok2 := r.log.Get(c.Message.OpNum)
	if !ok2 {
		r.scratch.insertCommit(c.Message.OpNum, c)
		return nil
	}
	entry.Commits[c.Message.ReplicaID] = c
	return r.tryExecute()
}

// tryExecute advances commitNum through every consecutive, committed-ready
// op num and executes each request in its batch against the application,
// in batch order, exactly once. This is the only place state is applied
// to the app, which is what gives the replica log-prefix invariant its
// executable meaning.
func (r *Replica) tryExecute() error {
	for {
		next := r.commitNum + 1
		entry, ok := r.log.Get(next)
		if !ok || entry.Committed || !r.committedReady(entry) {
			return nil
		}

		reqs := entry.PrePrepare.Message.Requests
		replies := make([]types.Reply, 0, len(reqs))
		for _, req := range reqs {
			result, err := r.app.Execute(req.Op)
			if err != nil {
				return fmt.Errorf("pbft: replica %d execute op %d: %w", r.id, next, err)
			}
			reply := types.Reply{RequestNum: req.RequestNum, Result: result, ViewNum: entry.PrePrepare.Message.ViewNum, ReplicaID: r.id}
			replies = append(replies, reply)

			rec, ok := r.clients[req.ClientID]
			if !ok {
				rec = &clientRecord{}
				r.clients[req.ClientID] = rec
			}
			rec.lastRequestNum = req.RequestNum
			rec.cachedReply = &reply

			if err := r.sendReply(types.ClientAddr(req.ClientID), reply); err != nil {
				hlog.Errorf("pbft: send reply failed", err)
			}
		}

		entry.Committed = true
		r.commitNum = next
		metrics.CommitNum.Set(float64(next))
		metrics.CommitsTotal.Inc()
		if !entry.OpenedAt.IsZero() {
			metrics.QuorumLatency.Observe(time.Since(entry.OpenedAt).Seconds())
		}
		if r.onCommit != nil {
			r.onCommit(next, reqs, replies)
		}
	}
}
