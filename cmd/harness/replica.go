package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/murmesh/pkg/app"
	"github.com/cuemby/murmesh/pkg/config"
	"github.com/cuemby/murmesh/pkg/evt"
	"github.com/cuemby/murmesh/pkg/hlog"
	"github.com/cuemby/murmesh/pkg/metrics"
	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/netw/udp"
	"github.com/cuemby/murmesh/pkg/pbft"
	"github.com/cuemby/murmesh/pkg/storage"
	"github.com/cuemby/murmesh/pkg/types"
	"github.com/cuemby/murmesh/pkg/worker"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

var replicaCmd = &cobra.Command{
	Use:   "replica",
	Short: "Start one live PBFT replica over UDP",
	RunE:  runReplica,
}

func init() {
	replicaCmd.Flags().String("config", "", "Path to a PublicParameters YAML document (required)")
	replicaCmd.Flags().Int("id", -1, "This replica's index into spec.replicaAddrs (required)")
	_ = replicaCmd.MarkFlagRequired("config")
	_ = replicaCmd.MarkFlagRequired("id")
}

// replicaTransport adapts the configured replica address book and a
// discovered client address book onto netw.Net[types.Addr, []byte] over a
// single UDP socket, the live-deployment counterpart of pkg/pbft/bench's
// in-process bus.
type replicaTransport struct {
	conn         *udp.Conn
	replicaAddrs []string
	self         types.ReplicaID

	mu          sync.RWMutex
	clientAddrs map[types.ClientID]string
}

func (t *replicaTransport) Send(dest types.Addr, buf []byte) error {
	if dest.IsReplica {
		return t.conn.SendBuf(t.replicaAddrs[dest.Replica], buf)
	}
	t.mu.RLock()
	addr, ok := t.clientAddrs[dest.Client]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("harness: no known address for client %d", dest.Client)
	}
	return t.conn.SendBuf(addr, buf)
}

func (t *replicaTransport) SendAll(buf []byte) error {
	for i, addr := range t.replicaAddrs {
		if types.ReplicaID(i) == t.self {
			continue
		}
		if err := t.conn.SendBuf(addr, buf); err != nil {
			return err
		}
	}
	return nil
}

func (t *replicaTransport) rememberClient(id types.ClientID, addr string) {
	t.mu.Lock()
	t.clientAddrs[id] = addr
	t.mu.Unlock()
}

func runReplica(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	idFlag, _ := cmd.Flags().GetInt("id")
	if idFlag < 0 {
		return fmt.Errorf("harness: --id is required")
	}
	id := types.ReplicaID(idFlag)

	params, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if int(id) >= params.NumReplica {
		return fmt.Errorf("harness: --id %d out of range for %d replicas", id, params.NumReplica)
	}
	flavor, err := params.CryptoFlavorValue()
	if err != nil {
		return err
	}

	store, err := storage.NewBoltStore(params.DataDir, id)
	if err != nil {
		return fmt.Errorf("harness: open storage: %w", err)
	}
	defer store.Close()

	crypto, err := xcrypto.NewHardcoded(params.NumReplica, uint8(id), flavor)
	if err != nil {
		return fmt.Errorf("harness: derive crypto: %w", err)
	}

	conn, err := udp.Listen(params.ReplicaAddrs[id])
	if err != nil {
		return fmt.Errorf("harness: listen %s: %w", params.ReplicaAddrs[id], err)
	}
	defer conn.Close()

	transport := &replicaTransport{
		conn:         conn,
		replicaAddrs: params.ReplicaAddrs,
		self:         id,
		clientAddrs:  make(map[types.ClientID]string),
	}

	pool := worker.NewPool(1)
	defer pool.Stop()

	replica := pbft.NewReplica(pbft.ReplicaConfig{
		ID:           id,
		N:            params.NumReplica,
		Net:          transport,
		App:          app.NewKVStore(),
		Crypto:       crypto,
		Lane:         pool.NewLane(),
		BatchSize:    params.BatchSizeOrTrigger,
		BatchTimeout: params.ResendInterval.Duration,
		OnCommit: func(opNum uint32, reqs []types.Request, replies []types.Reply) {
			if err := store.SaveCommittedEntry(storage.CommittedEntry{OpNum: opNum, Requests: reqs, Replies: replies}); err != nil {
				hlog.Errorf("harness: persist committed entry failed", err)
			}
			for i, req := range reqs {
				if err := store.SaveClientRecord(storage.ClientRecord{ClientID: req.ClientID, LastRequestNum: req.RequestNum, CachedReply: &replies[i]}); err != nil {
					hlog.Errorf("harness: persist client record failed", err)
				}
			}
		},
	})
	session := evt.NewSession[pbft.ReplicaEvent](replica, 256)
	replica.SetSelf(session)
	replica.SetTimer(session.Timer())
	go session.Run()
	defer session.Close()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		hlog.Logger.Info().Str("addr", params.MetricsAddr).Msg("metrics endpoint listening")
		if err := http.ListenAndServe(params.MetricsAddr, mux); err != nil {
			hlog.Errorf("harness: metrics server failed", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hlog.Logger.Info().Uint8("replica_id", uint8(id)).Str("addr", params.ReplicaAddrs[id]).Msg("replica listening")
	return conn.RecvSession(ctx, func(from string, buf []byte) {
		if err := dispatchToReplica(session, transport, from, buf); err != nil {
			hlog.Errorf("harness: dispatch failed", err)
		}
	})
}

func dispatchToReplica(session evt.SendEvent[pbft.ReplicaEvent], transport *replicaTransport, from string, buf []byte) error {
	env, err := netw.Decode(buf)
	if err != nil {
		return err
	}
	switch env.Kind {
	case pbft.KindRequest:
		var req types.Request
		if err := netw.DecodeInto(env, &req); err != nil {
			return err
		}
		transport.rememberClient(req.ClientID, from)
		return session.Send(pbft.EvIngressRequest{From: types.ClientAddr(req.ClientID), Request: req})
	case pbft.KindPrePrepare:
		var v xcrypto.Verifiable[pbft.PrePrepare]
		if err := netw.DecodeInto(env, &v); err != nil {
			return err
		}
		return session.Send(pbft.EvIngressPrePrepare{Msg: v})
	case pbft.KindPrepare:
		var v xcrypto.Verifiable[pbft.Prepare]
		if err := netw.DecodeInto(env, &v); err != nil {
			return err
		}
		return session.Send(pbft.EvIngressPrepare{Msg: v})
	case pbft.KindCommit:
		var v xcrypto.Verifiable[pbft.Commit]
		if err := netw.DecodeInto(env, &v); err != nil {
			return err
		}
		return session.Send(pbft.EvIngressCommit{Msg: v})
	default:
		return fmt.Errorf("harness: replica received unexpected kind %q", env.Kind)
	}
}
