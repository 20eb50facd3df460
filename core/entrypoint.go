package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/encodeous/tint"
	"github.com/encodeous/tpwsn/perf"
	"github.com/encodeous/tpwsn/state"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Dialer attaches a node to its link layer. Inbound frames must be passed to handler.
type Dialer func(cfg state.LocalCfg, log *slog.Logger, handler state.FrameHandler) (state.Link, error)

type Options struct {
	Level slog.Level
	Dial  Dialer
	// Timers defaults to wall clock timers feeding the dispatch loop
	Timers  state.Timers
	Console io.Writer
	// Logger replaces the handlers built from the node config
	Logger *slog.Logger
	// Handlers are added to the fanout next to the console and file handlers
	Handlers []slog.Handler
}

// NewLogger builds the node logger. The returned closer is nil unless a log file is open.
func NewLogger(cfg state.LocalCfg, level slog.Level, extra ...slog.Handler) (*slog.Logger, io.Closer, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: cfg.Id.String(),
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	var closer io.Closer
	if cfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(cfg.LogPath), 0700)
		if err != nil {
			return nil, nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.LogPath,
			MaxSize:    cfg.LogMaxSizeMb,
			MaxBackups: cfg.LogMaxBackups,
		}
		handlers = append(handlers, slog.NewTextHandler(lj, &slog.HandlerOptions{Level: level}).
			WithAttrs([]slog.Attr{slog.String("node", cfg.Id.String())}))
		closer = lj
	}
	handlers = append(handlers, extra...)
	return slog.New(slogmulti.Fanout(handlers...)), closer, nil
}

// New builds a powered on node. Nothing runs until Run is called, so tests may drive
// the returned state directly with HandleEvent and virtual timers.
func New(cfg state.LocalCfg, opts Options) (*state.State, error) {
	if err := state.LocalConfigValidator(&cfg); err != nil {
		return nil, err
	}
	if opts.Dial == nil {
		return nil, errors.New("no link layer configured")
	}
	ctx, cancel := context.WithCancelCause(context.Background())

	dispatch := make(chan func(env *state.State) error, 128)

	logger := opts.Logger
	if logger == nil {
		l, closer, err := NewLogger(cfg, opts.Level, opts.Handlers...)
		if err != nil {
			cancel(err)
			return nil, err
		}
		logger = l
		if closer != nil {
			context.AfterFunc(ctx, func() {
				_ = closer.Close()
			})
		}
	}

	seed := cfg.RandSeed()
	s := &state.State{
		DispatchQueue: dispatch,
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			LocalCfg:        cfg,
			Log:             logger,
			Rand:            rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
			Console:         opts.Console,
		},
	}
	s.Timers = opts.Timers
	if s.Timers == nil {
		s.Timers = state.NewRealTimers(s.Dispatch)
	}

	env := s.Env
	link, err := opts.Dial(cfg, logger, func(f state.Frame) {
		env.Dispatch(func(s *state.State) error {
			return HandleFrame(s, f)
		})
	})
	if err != nil {
		cancel(err)
		return nil, fmt.Errorf("failed to attach to link layer: %w", err)
	}
	s.Radio = state.NewRadio(cfg.Id, link)

	s.Log.Info("init modules", "protocols", cfg.Protocols)
	s.Modules = buildModules(cfg)
	if err := PowerOn(s); err != nil {
		_ = link.Close()
		cancel(err)
		return nil, err
	}
	s.Log.Info("init modules complete")
	return s, nil
}

// buildModules picks the protocol modules to run. Multihop comes first so that it is
// torn down before the token engine on a crash.
func buildModules(cfg state.LocalCfg) []state.NyModule {
	var modules []state.NyModule
	if cfg.Runs(state.ProtoRmh) {
		modules = append(modules, &Rmh{})
	}
	if cfg.Runs(state.ProtoTrickle) {
		modules = append(modules, &Trickle{})
	}
	modules = append(modules, &Trace{})
	return modules
}

// Start runs a node until it is stopped or receives SIGINT/SIGTERM.
// ready, if set, is called with the node state before the main loop starts.
func Start(cfg state.LocalCfg, opts Options, ready func(s *state.State)) error {
	s, err := New(cfg, opts)
	if err != nil {
		return err
	}
	if ready != nil {
		ready(s)
	}

	s.Log.Info("node is up. To gracefully exit, send SIGINT or Ctrl+C.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		select {
		case <-c:
			s.Cancel(errShutdown)
		case <-s.Context.Done():
			return
		}
	}()

	return Run(s)
}

// Run drives the dispatch loop until the node context is cancelled
func Run(s *state.State) error {
	return MainLoop(s, s.DispatchQueue)
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				s.Cancel(err)
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.DispatchWarnThreshold {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	cause := context.Cause(s.Context)
	s.Log.Info("stopped main loop", "reason", cause.Error())
	Stop(s)
	if errors.Is(cause, context.Canceled) || errors.Is(cause, errShutdown) {
		return nil
	}
	return cause
}

var errShutdown = errors.New("received shutdown signal")

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Info("cleaning up modules")
	for _, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", fmt.Sprintf("%T", module), "error", err)
		}
	}
	s.Timers.CancelAll()
	if err := s.Radio.Close(); err != nil {
		s.Log.Warn("failed to close link", "error", err)
	}
	s.Log.Info("stopped")
}
