package cmd

import (
	"fmt"

	"github.com/encodeous/tpwsn/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

var newCmd = &cobra.Command{
	Use:   "new <id>",
	Short: "Prints a node config with default protocol settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := state.ParseNodeId(args[0])
		if err != nil {
			return err
		}
		cfg := state.DefaultLocalCfg(id)
		if ok, _ := cmd.Flags().GetBool("sink"); ok {
			cfg.Sink = true
		}
		if ok, _ := cmd.Flags().GetBool("source"); ok {
			cfg.Source = true
		}
		if err := state.LocalConfigValidator(&cfg); err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	},
	GroupID: "init",
}

func init() {
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().Bool("sink", false, "start as a sink")
	newCmd.Flags().Bool("source", false, "start as a token source")
}
