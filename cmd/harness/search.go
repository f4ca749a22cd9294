package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/murmesh/pkg/pbft"
	"github.com/cuemby/murmesh/pkg/pbft/model"
	"github.com/cuemby/murmesh/pkg/search"
	"github.com/cuemby/murmesh/pkg/xcrypto"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Explore the PBFT system model with the model-checking search engine",
}

var searchBFSCmd = &cobra.Command{
	Use:   "bfs",
	Short: "Breadth-first search: every reachable state, or the first invariant violation",
	RunE:  runSearchBFS,
}

var searchRDFSCmd = &cobra.Command{
	Use:   "rdfs",
	Short: "Random-walk probing: repeated random paths until an invariant violation or timeout",
	RunE:  runSearchRDFS,
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().Int("replicas", 4, "Number of replicas in the modeled group (must be 3f+1)")
	cmd.Flags().Int("max-requests", 2, "How many client requests the model may invoke before stopping")
	cmd.Flags().Int("max-depth", 0, "Bound on Apply steps per branch, 0 for unbounded")
	cmd.Flags().Int("workers", 4, "Number of explorer goroutines")
	cmd.Flags().Duration("timeout", 30*time.Second, "Maximum wall-clock time for the search")
	cmd.Flags().String("crypto-flavor", "plain", "Crypto scheme: plain, secp256k1, schnorrkel")
}

func init() {
	addSearchFlags(searchBFSCmd)
	addSearchFlags(searchRDFSCmd)
	searchCmd.AddCommand(searchBFSCmd)
	searchCmd.AddCommand(searchRDFSCmd)
}

func cryptoFlavorFromFlag(name string) (xcrypto.Flavor, error) {
	switch name {
	case "", "plain":
		return xcrypto.Plain, nil
	case "secp256k1":
		return xcrypto.Secp256k1, nil
	case "schnorrkel":
		return xcrypto.Schnorrkel, nil
	default:
		return 0, fmt.Errorf("harness: unknown crypto flavor %q", name)
	}
}

// commitsWithoutQuorum is the invariant every search run checks: no
// replica may ever mark an entry committed without a full commit quorum
// of matching signatures, the safety property the whole protocol exists
// to guarantee.
func commitsWithoutQuorum(s model.SystemState) error {
	for i, r := range s.Replicas {
		for opNum, entry := range r.Log {
			if !entry.Committed {
				continue
			}
			count := 0
			for _, c := range entry.Commits {
				if c.Message.Digest == entry.PrePrepare.Message.Digest {
					count++
				}
			}
			if count < pbft.Quorum(s.N) {
				return fmt.Errorf("replica %d committed op %d with only %d/%d matching commits", i, opNum, count, pbft.Quorum(s.N))
			}
		}
	}
	return nil
}

func buildSettings(maxDepth int) search.Settings[model.SystemState, model.Event] {
	return search.Settings[model.SystemState, model.Event]{
		Invariant: commitsWithoutQuorum,
		MaxDepth:  maxDepth,
	}
}

func runSearchBFS(cmd *cobra.Command, args []string) error {
	replicas, maxRequests, maxDepth, workers, timeout, flavor, err := searchArgs(cmd)
	if err != nil {
		return err
	}
	initial, err := model.NewSystemState(replicas, flavor, maxRequests)
	if err != nil {
		return err
	}
	runID := uuid.New()
	fmt.Printf("search run %s: bfs over %d replicas, max %d requests\n", runID, replicas, maxRequests)
	result, err := search.BreadthFirst[model.SystemState, model.Event](initial, buildSettings(maxDepth), workers, timeout)
	if err != nil {
		return err
	}
	return reportSearchResult(result)
}

func runSearchRDFS(cmd *cobra.Command, args []string) error {
	replicas, maxRequests, maxDepth, workers, timeout, flavor, err := searchArgs(cmd)
	if err != nil {
		return err
	}
	initial, err := model.NewSystemState(replicas, flavor, maxRequests)
	if err != nil {
		return err
	}
	runID := uuid.New()
	fmt.Printf("search run %s: random depth-first over %d replicas, max %d requests\n", runID, replicas, maxRequests)
	result, err := search.RandomDepthFirst[model.SystemState, model.Event](initial, buildSettings(maxDepth), workers, timeout)
	if err != nil {
		return err
	}
	return reportSearchResult(result)
}

func searchArgs(cmd *cobra.Command) (replicas, maxRequests, maxDepth, workers int, timeout time.Duration, flavor xcrypto.Flavor, err error) {
	replicas, _ = cmd.Flags().GetInt("replicas")
	maxRequests, _ = cmd.Flags().GetInt("max-requests")
	maxDepth, _ = cmd.Flags().GetInt("max-depth")
	workers, _ = cmd.Flags().GetInt("workers")
	timeout, _ = cmd.Flags().GetDuration("timeout")
	flavorName, _ := cmd.Flags().GetString("crypto-flavor")
	flavor, err = cryptoFlavorFromFlag(flavorName)
	return
}

func reportSearchResult(result search.Result[model.SystemState, model.Event]) error {
	fmt.Printf("status: %s\n", result.Status)
	switch result.Status {
	case search.StatusInvariantViolation, search.StatusErr:
		fmt.Printf("error: %v\n", result.Err)
		fmt.Printf("trace length: %d\n", len(result.Trace))
	case search.StatusGoalFound:
		fmt.Printf("client completed requests: %d\n", len(result.State.Client.Completed))
	}
	return nil
}
