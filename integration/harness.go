//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/pprof"
	"slices"
	"sync"
	"time"

	"github.com/encodeous/tpwsn/core"
	"github.com/encodeous/tpwsn/medium"
	"github.com/encodeous/tpwsn/state"
)

// VirtualHarness runs a set of nodes in process over an in-memory radio
type VirtualHarness struct {
	Context context.Context
	Cancel  context.CancelCauseFunc
	Local   []state.LocalCfg
	Edges   []state.Pair[state.NodeId, state.NodeId]
	Net     *medium.Network
	States  []*state.State
	Verbose bool
	wg      sync.WaitGroup
}

func (v *VirtualHarness) IndexOf(id state.NodeId) int {
	return slices.IndexFunc(v.Local, func(cfg state.LocalCfg) bool {
		return cfg.Id == id
	})
}

func (v *VirtualHarness) NewNode(id string, mutate ...func(cfg *state.LocalCfg)) state.NodeId {
	cfg := state.DefaultLocalCfg(state.MustParseNodeId(id))
	for _, m := range mutate {
		m(&cfg)
	}
	v.Local = append(v.Local, cfg)
	return cfg.Id
}

func (v *VirtualHarness) AddLink(a, b state.NodeId) {
	v.Edges = append(v.Edges, state.Pair[state.NodeId, state.NodeId]{V1: a, V2: b})
}

// Line links the given nodes in a chain
func (v *VirtualHarness) Line(ids ...state.NodeId) {
	for i := 1; i < len(ids); i++ {
		v.AddLink(ids[i-1], ids[i])
	}
}

func (v *VirtualHarness) Start() chan error {
	ctx, cancel := context.WithCancelCause(context.Background())
	v.Context = ctx
	v.Cancel = cancel
	v.Net = medium.NewNetwork()
	for _, e := range v.Edges {
		v.Net.Connect(e.V1, e.V2)
	}
	errChan := make(chan error, 128) // a large number so we dont get blocked

	level := slog.LevelInfo
	if v.Verbose {
		level = slog.LevelDebug
	}
	v.States = make([]*state.State, len(v.Local))
	for idx, cfg := range v.Local {
		opts := core.Options{
			Level: level,
			Dial: func(cfg state.LocalCfg, log *slog.Logger, handler state.FrameHandler) (state.Link, error) {
				return v.Net.Attach(cfg.Id, handler), nil
			},
			Console: io.Discard,
		}
		s, err := core.New(cfg, opts)
		if err != nil {
			errChan <- err
			return errChan
		}
		v.States[idx] = s
	}
	for _, s := range v.States {
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			labels := pprof.Labels("tpwsn node", s.Id.String())
			pprof.Do(context.Background(), labels, func(_ context.Context) {
				if err := core.Run(s); err != nil {
					errChan <- fmt.Errorf("node %s: %w", s.Id, err)
				}
			})
		}()
	}
	go func() {
		<-ctx.Done()
		for _, s := range v.States {
			s.Cancel(context.Cause(ctx))
		}
	}()
	// wait for all nodes to start
	for {
		started := true
		for _, s := range v.States {
			if !s.Started.Load() {
				started = false
				break
			}
		}
		if started {
			break
		}
		select {
		case <-time.After(time.Millisecond * 10):
		case err := <-errChan:
			errChan <- err
			return errChan
		}
	}
	return errChan
}

func (v *VirtualHarness) Stop() {
	v.Cancel(context.Canceled)
	v.wg.Wait()
}

func (v *VirtualHarness) Node(id state.NodeId) *state.State {
	return v.States[v.IndexOf(id)]
}

// Query runs fn on the node's dispatch goroutine
func Query[T any](v *VirtualHarness, id state.NodeId, fn func(s *state.State) T) (T, bool) {
	res, err := v.Node(id).DispatchWait(func(s *state.State) (any, error) {
		return fn(s), nil
	})
	if err != nil {
		var zero T
		return zero, false
	}
	return res.(T), true
}

func (v *VirtualHarness) Inject(id state.NodeId, ev core.Event) {
	core.Inject(v.Node(id).Env, ev)
}
