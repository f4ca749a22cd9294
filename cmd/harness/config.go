package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/murmesh/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate murmesh deployment configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Load a PublicParameters YAML document and report whether it is valid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := config.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("OK: %d replicas, %d faulty, crypto=%s\n", params.NumReplica, params.NumFaulty, params.CryptoFlavor)
		fmt.Printf("  replicaAddrs:       %v\n", params.ReplicaAddrs)
		fmt.Printf("  resendInterval:     %s\n", params.ResendInterval.Duration)
		fmt.Printf("  viewChangeInterval: %s\n", params.ViewChangeInterval.Duration)
		fmt.Printf("  dataDir:            %s\n", params.DataDir)
		fmt.Printf("  metricsAddr:        %s\n", params.MetricsAddr)
		fmt.Printf("  search:             maxDepth=%d numWorker=%d\n", params.Search.MaxDepth, params.Search.NumWorker)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
