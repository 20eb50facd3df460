package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/encodeous/tpwsn/core"
	"github.com/encodeous/tpwsn/medium"
	"github.com/encodeous/tpwsn/perf"
	"github.com/encodeous/tpwsn/state"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var topologyPath = "topology.yaml"

var errQuit = errors.New("quit")

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Simulate a network of nodes in memory",
	Long: `Runs every node of a topology in this process over an in-memory radio.
Each stdin line is one of:
  <node> <command>        console command for a node, e.g. "1.0 set sink"
  press <node>            press the button of a node
  crash <node> <seconds>  crash a node and restart it later
  quit`,
	Run: func(cmd *cobra.Command, args []string) {
		topo, err := state.ReadTopology(topologyPath)
		if err != nil {
			panic(err)
		}
		if err := state.TopologyValidator(topo); err != nil {
			panic(err)
		}
		links, err := topo.Links()
		if err != nil {
			panic(err)
		}
		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}
		loss, _ := cmd.Flags().GetFloat64("loss")
		tracing, _ := cmd.Flags().GetBool("trace")
		if addr, _ := cmd.Flags().GetString("metrics"); addr != "" {
			go func() {
				if err := perf.Serve(addr); err != nil {
					slog.Error("metrics server stopped", "error", err)
				}
			}()
		}

		net := medium.NewNetwork()
		net.PacketLoss = loss
		for _, l := range links {
			net.Connect(l.V1, l.V2)
		}

		console := &syncWriter{w: os.Stdout}
		nodes := make(map[state.NodeId]*state.State)
		for _, cfg := range topo.Nodes {
			s, err := core.New(cfg, core.Options{
				Level: level,
				Dial: func(cfg state.LocalCfg, log *slog.Logger, handler state.FrameHandler) (state.Link, error) {
					return net.Attach(cfg.Id, handler), nil
				},
				Console: console,
			})
			if err != nil {
				panic(err)
			}
			nodes[cfg.Id] = s
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		g, ctx := errgroup.WithContext(ctx)
		if tracing {
			for _, s := range nodes {
				tr, _ := core.Get[*core.Trace](s)
				ch := make(chan any, 256)
				tr.Register(ch)
				g.Go(func() error {
					for {
						select {
						case <-s.Context.Done():
							return nil
						case ev := <-ch:
							fmt.Fprintln(console, ev)
						}
					}
				})
			}
		}
		for _, s := range nodes {
			g.Go(func() error {
				return core.Run(s)
			})
		}
		g.Go(func() error {
			err := readSimConsole(ctx, os.Stdin, nodes)
			for _, s := range nodes {
				s.Cancel(context.Canceled)
			}
			if errors.Is(err, errQuit) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		go func() {
			<-ctx.Done()
			for _, s := range nodes {
				s.Cancel(context.Cause(ctx))
			}
		}()

		slog.Info("simulation is up", "nodes", len(nodes), "links", len(links))
		if err := g.Wait(); err != nil {
			panic(err)
		}
	},
	GroupID: "node",
}

// readSimConsole routes stdin lines to nodes until EOF, quit or ctx is done
func readSimConsole(ctx context.Context, r io.Reader, nodes map[state.NodeId]*state.State) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			target, ev, err := parseSimLine(line)
			if err != nil {
				if errors.Is(err, errQuit) {
					return err
				}
				slog.Warn("bad console line", "line", line, "error", err)
				continue
			}
			if ev == nil {
				continue
			}
			s, ok := nodes[target]
			if !ok {
				slog.Warn("no such node", "node", target)
				continue
			}
			core.Inject(s.Env, ev)
		}
	}
}

// parseSimLine turns a console line into the event for one node. Blank lines give a nil event.
func parseSimLine(line string) (state.NodeId, core.Event, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return state.NodeId{}, nil, nil
	}
	switch fields[0] {
	case "quit", "exit":
		return state.NodeId{}, nil, errQuit
	case "press":
		if len(fields) != 2 {
			return state.NodeId{}, nil, errors.New("usage: press <node>")
		}
		id, err := state.ParseNodeId(fields[1])
		return id, core.ButtonPressed{}, err
	case "crash":
		if len(fields) != 3 {
			return state.NodeId{}, nil, errors.New("usage: crash <node> <seconds>")
		}
		id, err := state.ParseNodeId(fields[1])
		if err != nil {
			return id, nil, err
		}
		secs, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || secs <= 0 {
			return id, nil, fmt.Errorf("bad crash duration %q", fields[2])
		}
		return id, core.CrashRequested{Delay: time.Duration(secs * float64(time.Second))}, nil
	}
	id, err := state.ParseNodeId(fields[0])
	if err != nil {
		return id, nil, err
	}
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
	return id, core.CommandReceived{Line: rest}, nil
}

func init() {
	rootCmd.AddCommand(simCmd)

	simCmd.Flags().StringVarP(&topologyPath, "topology", "t", topologyPath, "topology config")
	simCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	simCmd.Flags().Float64("loss", 0, "probability that a frame is lost on a link")
	simCmd.Flags().String("metrics", "", "serve metrics on this address")
	simCmd.Flags().Bool("trace", false, "print every frame sent or accepted")
}
