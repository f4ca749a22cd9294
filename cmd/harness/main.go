// Command harness is the replication-protocol research harness: it starts
// live PBFT replicas and clients over UDP, drives a closed-loop benchmark
// in-process, and runs the model-checking search engine against the
// synchronous PBFT system model in pkg/pbft/model.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/murmesh/pkg/hlog"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "harness",
	Short: "murmesh - a PBFT research harness with a built-in model checker",
	Long: `murmesh drives a small replication-protocol research stack: an
event-driven PBFT replica and client pair over UDP, a closed-loop
benchmark driver, and a breadth-first/random-walk model checker that
explores the same protocol logic synchronously, off the network.`,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(replicaCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(configCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	hlog.Init(hlog.Config{
		Level:      hlog.Level(logLevel),
		JSONOutput: logJSON,
	})
}
