package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/murmesh/pkg/app"
	"github.com/cuemby/murmesh/pkg/config"
	"github.com/cuemby/murmesh/pkg/evt"
	"github.com/cuemby/murmesh/pkg/hlog"
	"github.com/cuemby/murmesh/pkg/netw"
	"github.com/cuemby/murmesh/pkg/netw/udp"
	"github.com/cuemby/murmesh/pkg/pbft"
	"github.com/cuemby/murmesh/pkg/pbft/bench"
	"github.com/cuemby/murmesh/pkg/types"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Drive a PBFT replica group as a client",
}

var clientInvokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Submit one key/value insert against a live replica group and print the reply",
	RunE:  runClientInvoke,
}

var clientBenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run an in-process closed-loop benchmark against a simulated replica group",
	RunE:  runClientBench,
}

func init() {
	clientInvokeCmd.Flags().String("config", "", "Path to a PublicParameters YAML document (required)")
	clientInvokeCmd.Flags().String("bind", "127.0.0.1:0", "Local UDP address this client binds")
	clientInvokeCmd.Flags().String("key", "harness-key", "Record key to insert")
	clientInvokeCmd.Flags().String("value", "harness-value", "Field value to insert")
	_ = clientInvokeCmd.MarkFlagRequired("config")

	clientBenchCmd.Flags().Int("replicas", 4, "Number of simulated replicas (must be 3f+1)")
	clientBenchCmd.Flags().Int("clients", 4, "Number of simulated closed-loop clients")
	clientBenchCmd.Flags().Int("ops", 100, "Operations per client")
	clientBenchCmd.Flags().String("crypto-flavor", "plain", "Crypto scheme: plain, secp256k1, schnorrkel")

	clientCmd.AddCommand(clientInvokeCmd)
	clientCmd.AddCommand(clientBenchCmd)
}

// udpNet adapts a single udp.Conn, plus a dense replica address list, onto
// the Net a pbft.Client needs: unicast by types.Addr, broadcast to every
// configured replica.
type udpNet struct {
	conn         *udp.Conn
	replicaAddrs []string
}

func (n udpNet) Send(dest types.Addr, buf []byte) error {
	if !dest.IsReplica {
		return fmt.Errorf("harness: client transport cannot address another client")
	}
	return n.conn.SendBuf(n.replicaAddrs[dest.Replica], buf)
}

func (n udpNet) SendAll(buf []byte) error {
	for _, addr := range n.replicaAddrs {
		if err := n.conn.SendBuf(addr, buf); err != nil {
			return err
		}
	}
	return nil
}

func runClientInvoke(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	bindAddr, _ := cmd.Flags().GetString("bind")
	key, _ := cmd.Flags().GetString("key")
	value, _ := cmd.Flags().GetString("value")

	params, err := config.Load(configPath)
	if err != nil {
		return err
	}

	conn, err := udp.Listen(bindAddr)
	if err != nil {
		return fmt.Errorf("harness: bind %s: %w", bindAddr, err)
	}
	defer conn.Close()

	// A random, session-scoped client id: every invocation this process
	// issues shares it, but two concurrent `client invoke` runs against
	// the same replica group won't collide.
	id := uuid.New()
	clientID := types.ClientID(binary.BigEndian.Uint32(id[:4]))

	op, err := app.EncodeOp(app.Op{Kind: app.OpInsert, Key: key, Fields: map[string][]byte{"value": []byte(value)}})
	if err != nil {
		return fmt.Errorf("harness: encode op: %w", err)
	}

	result := make(chan []byte, 1)
	c := pbft.NewClient(pbft.ClientConfig{
		ID:      clientID,
		N:       params.NumReplica,
		Net:     udpNet{conn: conn, replicaAddrs: params.ReplicaAddrs},
		OnReply: func(r []byte) { result <- r },
	})
	session := evt.NewSession[pbft.ClientEvent](c, 8)
	c.SetTimer(session.Timer())
	go session.Run()
	defer session.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go func() {
		_ = conn.RecvSession(ctx, func(from string, buf []byte) {
			env, err := netw.Decode(buf)
			if err != nil || env.Kind != pbft.KindReply {
				return
			}
			var reply types.Reply
			if err := netw.DecodeInto(env, &reply); err != nil {
				return
			}
			_ = session.Send(pbft.EvIngressReply{Reply: reply})
		})
	}()

	if err := session.Send(pbft.EvInvoke{Op: op}); err != nil {
		return err
	}

	select {
	case raw := <-result:
		res, err := app.DecodeResult(raw)
		if err != nil {
			return fmt.Errorf("harness: decode result: %w", err)
		}
		fmt.Printf("OK: found=%v fields=%v\n", res.Found, res.Fields)
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("harness: no reply within 10s, is a replica group listening?")
	}
}

func runClientBench(cmd *cobra.Command, args []string) error {
	replicas, _ := cmd.Flags().GetInt("replicas")
	clients, _ := cmd.Flags().GetInt("clients")
	ops, _ := cmd.Flags().GetInt("ops")
	flavorName, _ := cmd.Flags().GetString("crypto-flavor")

	var flavor xcrypto.Flavor
	switch flavorName {
	case "", "plain":
		flavor = xcrypto.Plain
	case "secp256k1":
		flavor = xcrypto.Secp256k1
	case "schnorrkel":
		flavor = xcrypto.Schnorrkel
	default:
		return fmt.Errorf("harness: unknown crypto flavor %q", flavorName)
	}

	hlog.Logger.Info().Int("replicas", replicas).Int("clients", clients).Int("ops", ops).Msg("starting closed-loop benchmark")
	result, err := bench.Run(bench.Config{Replicas: replicas, Clients: clients, OpsPerClient: ops, CryptoFlavor: flavor})
	if err != nil {
		return err
	}
	fmt.Printf("total ops:    %d\n", result.TotalOps)
	fmt.Printf("elapsed:      %s\n", result.Elapsed)
	fmt.Printf("throughput:   %.2f ops/s\n", result.Throughput)
	fmt.Printf("mean latency: %s\n", result.MeanLatency)
	return nil
}
