// Package bench is the closed-loop workload driver used to exercise a PBFT
// replica group end to end: each simulated client keeps exactly one
// invocation outstanding, issuing the next only once the previous
// completes, the same discipline original_source/src/pbft/tests.rs's
// CloseLoop upcall enforces around client::State.
package bench

import (
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/murmesh/pkg/app"
	"github.com/cuemby/murmesh/pkg/evt"
	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/pbft"
	"github.com/cuemby/murmesh/pkg/types"
	"github.com/cuemby/murmesh/pkg/worker"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

// Config parameterizes a closed-loop run.
type Config struct {
	Replicas     int
	Clients      int
	OpsPerClient int
	CryptoFlavor xcrypto.Flavor
}

// Result summarizes one run.
type Result struct {
	TotalOps    int
	Elapsed     time.Duration
	Throughput  float64 // completed ops per second
	MeanLatency time.Duration
}

// bus is the in-process stand-in for a real transport: it decodes the
// wire envelope and redelivers it directly onto the destination's
// Session, the same role NetworkContext plays over a virtualized Network
// in the original test harness.
type bus struct {
	mu       sync.RWMutex
	replicas []evt.SendEvent[pbft.ReplicaEvent]
	clients  map[types.ClientID]evt.SendEvent[pbft.ClientEvent]
}

func (b *bus) deliver(dest types.Addr, buf []byte) error {
	env, err := netw.Decode(buf)
	if err != nil {
		return err
	}
	if dest.IsReplica {
		b.mu.RLock()
		target := b.replicas[dest.Replica]
		b.mu.RUnlock()
		switch env.Kind {
		case pbft.KindRequest:
			var req types.Request
			if err := netw.DecodeInto(env, &req); err != nil {
				return err
			}
			return target.Send(pbft.EvIngressRequest{From: types.ClientAddr(req.ClientID), Request: req})
		case pbft.KindPrePrepare:
			var v xcrypto.Verifiable[pbft.PrePrepare]
			if err := netw.DecodeInto(env, &v); err != nil {
				return err
			}
			return target.Send(pbft.EvIngressPrePrepare{Msg: v})
		case pbft.KindPrepare:
			var v xcrypto.Verifiable[pbft.Prepare]
			if err := netw.DecodeInto(env, &v); err != nil {
				return err
			}
			return target.Send(pbft.EvIngressPrepare{Msg: v})
		case pbft.KindCommit:
			var v xcrypto.Verifiable[pbft.Commit]
			if err := netw.DecodeInto(env, &v); err != nil {
				return err
			}
			return target.Send(pbft.EvIngressCommit{Msg: v})
		default:
			return fmt.Errorf("bench: unexpected kind %q to replica", env.Kind)
		}
	}

	b.mu.RLock()
	target, ok := b.clients[dest.Client]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("bench: unknown client %d", dest.Client)
	}
	if env.Kind != pbft.KindReply {
		return fmt.Errorf("bench: unexpected kind %q to client", env.Kind)
	}
	var reply types.Reply
	if err := netw.DecodeInto(env, &reply); err != nil {
		return err
	}
	return target.Send(pbft.EvIngressReply{Reply: reply})
}

type replicaNet struct {
	b    *bus
	self types.ReplicaID
	n    int
}

func (rn replicaNet) Send(dest types.Addr, buf []byte) error { return rn.b.deliver(dest, buf) }

func (rn replicaNet) SendAll(buf []byte) error {
	for i := 0; i < rn.n; i++ {
		if types.ReplicaID(i) == rn.self {
			continue
		}
		if err := rn.b.deliver(types.ReplicaAddr(types.ReplicaID(i)), buf); err != nil {
			return err
		}
	}
	return nil
}

type clientNet struct {
	b *bus
	n int
}

func (cn clientNet) Send(dest types.Addr, buf []byte) error { return cn.b.deliver(dest, buf) }

func (cn clientNet) SendAll(buf []byte) error {
	for i := 0; i < cn.n; i++ {
		if err := cn.b.deliver(types.ReplicaAddr(types.ReplicaID(i)), buf); err != nil {
			return err
		}
	}
	return nil
}

// closeLoopClient drives one simulated client: invoke, wait for the reply,
// invoke again, for Config.OpsPerClient iterations.
type closeLoopClient struct {
	id        types.ClientID
	session   *evt.Session[pbft.ClientEvent]
	completed chan struct{}
}

// Run wires Config.Replicas replicas and Config.Clients closed-loop
// clients over the in-process bus and drives every client to completion,
// returning aggregate throughput and mean latency.
func Run(cfg Config) (Result, error) {
	b := &bus{clients: make(map[types.ClientID]evt.SendEvent[pbft.ClientEvent])}
	b.replicas = make([]evt.SendEvent[pbft.ReplicaEvent], cfg.Replicas)

	pool := worker.NewPool(cfg.Replicas + cfg.Clients)
	defer pool.Stop()

	replicaSessions := make([]*evt.Session[pbft.ReplicaEvent], cfg.Replicas)
	for i := 0; i < cfg.Replicas; i++ {
		crypto, err := xcrypto.NewHardcoded(cfg.Replicas, uint8(i), cfg.CryptoFlavor)
		if err != nil {
			return Result{}, fmt.Errorf("bench: derive replica %d crypto: %w", i, err)
		}
		r := pbft.NewReplica(pbft.ReplicaConfig{
			ID:     types.ReplicaID(i),
			N:      cfg.Replicas,
			Net:    replicaNet{b: b, self: types.ReplicaID(i), n: cfg.Replicas},
			App:    app.NewKVStore(),
			Crypto: crypto,
			Lane:   pool.NewLane(),
		})
		sess := evt.NewSession[pbft.ReplicaEvent](r, 256)
		r.SetSelf(sess)
		replicaSessions[i] = sess
		b.replicas[i] = sess
	}

	clients := make([]*closeLoopClient, cfg.Clients)
	for i := 0; i < cfg.Clients; i++ {
		id := types.ClientID(i + 1)
		completed := make(chan struct{}, 1)
		c := pbft.NewClient(pbft.ClientConfig{
			ID:      id,
			N:       cfg.Replicas,
			Net:     clientNet{b: b, n: cfg.Replicas},
			OnReply: func([]byte) { completed <- struct{}{} },
		})
		sess := evt.NewSession[pbft.ClientEvent](c, 8)
		c.SetTimer(sess.Timer())
		b.mu.Lock()
		b.clients[id] = sess
		b.mu.Unlock()
		clients[i] = &closeLoopClient{id: id, session: sess, completed: completed}

		go sess.Run()
	}
	for _, s := range replicaSessions {
		go s.Run()
	}
	defer func() {
		for _, s := range replicaSessions {
			s.Close()
		}
		for _, c := range clients {
			c.session.Close()
		}
	}()

	start := time.Now()
	var wg sync.WaitGroup
	var totalLatency time.Duration
	var mu sync.Mutex
	for _, c := range clients {
		wg.Add(1)
		go func(c *closeLoopClient) {
			defer wg.Done()
			for j := 0; j < cfg.OpsPerClient; j++ {
				op, err := app.EncodeOp(app.Op{Kind: app.OpInsert, Key: fmt.Sprintf("c%d-k%d", c.id, j), Fields: map[string][]byte{"v": []byte("x")}})
				if err != nil {
					return
				}
				issued := time.Now()
				if err := c.session.Send(pbft.EvInvoke{Op: op}); err != nil {
					return
				}
				<-c.completed
				latency := time.Since(issued)
				mu.Lock()
				totalLatency += latency
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	elapsed := time.Since(start)

	totalOps := cfg.Clients * cfg.OpsPerClient
	result := Result{TotalOps: totalOps, Elapsed: elapsed}
	if elapsed > 0 {
		result.Throughput = float64(totalOps) / elapsed.Seconds()
	}
	if totalOps > 0 {
		result.MeanLatency = totalLatency / time.Duration(totalOps)
	}
	return result, nil
}
