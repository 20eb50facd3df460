package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var nodeConfigPath = "node.yaml"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tpwsn",
	Short: "Wireless sensor node",
	Long: `tpwsn runs sensor nodes that discover neighbours, relay messages to a sink over random walks,
and agree on a shared token with trickle.
Nodes can run alone over UDP multicast or together in an in-memory simulation.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddGroup(&cobra.Group{
		ID:    "init",
		Title: "Configure Nodes",
	})
	rootCmd.AddGroup(&cobra.Group{
		ID:    "node",
		Title: "Node Commands",
	})
}
