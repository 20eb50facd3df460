package cmd

import (
	"log/slog"
	"os"

	"github.com/encodeous/tpwsn/core"
	"github.com/encodeous/tpwsn/medium"
	"github.com/encodeous/tpwsn/perf"
	"github.com/encodeous/tpwsn/state"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a node",
	Long: `Runs a single node on this host. Frames are exchanged over link-local UDP multicast.
Console commands are read from stdin, and SIGUSR1 presses the button.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := state.ReadLocalConfig(nodeConfigPath)
		if err != nil {
			panic(err)
		}
		if logPath, _ := cmd.Flags().GetString("log"); logPath != "" {
			cfg.LogPath = logPath
		}
		if addr, _ := cmd.Flags().GetString("metrics"); addr != "" {
			cfg.MetricsAddr = addr
		}
		if path, _ := cmd.Flags().GetString("socket"); path != "" {
			cfg.ControlSocket = path
		}

		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}

		if cfg.MetricsAddr != "" {
			go func() {
				if err := perf.Serve(cfg.MetricsAddr); err != nil {
					slog.Error("metrics server stopped", "error", err)
				}
			}()
		}

		err = core.Start(*cfg, core.Options{
			Level:   level,
			Dial:    dialUDP,
			Console: os.Stdout,
		}, func(s *state.State) {
			go readConsole(s.Env, os.Stdin)
			go watchButton(s.Env)
			if cfg.ControlSocket != "" {
				if err := core.ServeIPC(s.Env, cfg.ControlSocket); err != nil {
					s.Log.Error("failed to open control socket", "path", cfg.ControlSocket, "error", err)
				}
			}
		})
		if err != nil {
			panic(err)
		}
	},
	GroupID: "node",
}

func dialUDP(cfg state.LocalCfg, log *slog.Logger, handler state.FrameHandler) (state.Link, error) {
	return medium.ListenUDP(cfg.UDP, log, handler)
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&nodeConfigPath, "node-config", "n", nodeConfigPath, "node config")
	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().String("log", "", "also write logs to this file")
	runCmd.Flags().String("metrics", "", "serve metrics on this address")
	runCmd.Flags().String("socket", "", "listen for control requests on this unix socket")
}
