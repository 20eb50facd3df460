package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/encodeous/tpwsn/core"
	"github.com/spf13/cobra"
)

var controlSocket = "tpwsn.sock"

func ipcRequest(request string) {
	result, err := core.IPCGet(controlSocket, request)
	if err != nil {
		fmt.Println("Error:", err.Error())
		return
	}
	fmt.Print(result)
}

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	Aliases: []string{"i"},
	Short:   "Inspects the current state of a running node",
	Run: func(cmd *cobra.Command, args []string) {
		ipcRequest("inspect")
	},
	GroupID: "node",
}

var execCmd = &cobra.Command{
	Use:   "exec <command...>",
	Short: "Sends a console command to a running node",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ipcRequest("exec " + strings.Join(args, " "))
	},
	GroupID: "node",
}

var pressCmd = &cobra.Command{
	Use:   "press",
	Short: "Presses the button of a running node",
	Run: func(cmd *cobra.Command, args []string) {
		ipcRequest("press")
	},
	GroupID: "node",
}

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Prints every frame a running node sends or accepts",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
		defer cancel()
		if err := core.IPCTrace(ctx, controlSocket, os.Stdout); err != nil {
			fmt.Println("Error:", err.Error())
		}
	},
	GroupID: "node",
}

func init() {
	for _, c := range []*cobra.Command{inspectCmd, execCmd, pressCmd, traceCmd} {
		c.Flags().StringVarP(&controlSocket, "socket", "s", controlSocket, "control socket of the node")
		rootCmd.AddCommand(c)
	}
}
