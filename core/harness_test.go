package core

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/encodeous/tpwsn/state"
	"github.com/encodeous/tpwsn/trickle"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var (
	sink  = state.SinkAddr
	nodeB = state.NodeId{2, 0}
	nodeC = state.NodeId{3, 0}
	nodeD = state.NodeId{4, 0}
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

type HarnessEvents []HarnessEvent

func (e HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range e {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	return strings.Join(out, "\n")
}

// Only keeps events with the given message
func (e HarnessEvents) Only(msg string) HarnessEvents {
	x := make(HarnessEvents, 0)
	for _, event := range e {
		if event.Message == msg {
			x = append(x, event)
		}
	}
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message != msg || len(event.Args) < len(args) {
			continue
		}
		match := true
		for i, arg := range args {
			if !cmp.Equal(event.Args[i], arg) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	t.Helper()
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

// NodeHarness drives a single node on virtual time and records everything it does
type NodeHarness struct {
	t       *testing.T
	Timers  *state.VirtualTimers
	S       *state.State
	Console *bytes.Buffer
	actions []HarnessEvent
}

type recordingLink struct {
	h      *NodeHarness
	closed bool
}

func (l *recordingLink) Send(f state.Frame) error {
	if l.closed {
		return io.ErrClosedPipe
	}
	switch f.Port {
	case state.PortAnnounce:
		a, err := UnmarshalAnnouncement(f.Payload)
		require.NoError(l.h.t, err)
		l.h.record("ANNOUNCE", f.Dst, a.Id)
	case state.PortMultihop:
		r, err := UnmarshalRelay(f.Payload)
		require.NoError(l.h.t, err)
		l.h.record("RELAY", f.Dst, r.Originator, r.Dest, r.Hops, string(r.Data))
	case state.PortTrickle:
		require.Len(l.h.t, f.Payload, 1)
		l.h.record("TOKEN", f.Dst, f.Payload[0])
	default:
		l.h.record("FRAME", f)
	}
	return nil
}

func (l *recordingLink) Close() error {
	l.closed = true
	return nil
}

// recordingTimer stands in for the trickle primitive
type recordingTimer struct {
	h *NodeHarness
	c int
}

func (r *recordingTimer) Start()                  { r.h.record("TT_START") }
func (r *recordingTimer) Stop()                   { r.h.record("TT_STOP") }
func (r *recordingTimer) Consistency()            { r.c++; r.h.record("TT_CONSISTENT") }
func (r *recordingTimer) Inconsistency()          { r.h.record("TT_INCONSISTENT") }
func (r *recordingTimer) ResetEvent()             { r.h.record("TT_RESET") }
func (r *recordingTimer) Interval() time.Duration { return time.Second }
func (r *recordingTimer) Counter() int            { return r.c }

func NewHarness(t *testing.T, cfg state.LocalCfg) *NodeHarness {
	t.Helper()
	h := &NodeHarness{
		t:       t,
		Timers:  state.NewVirtualTimers(time.Unix(1000, 0)),
		Console: &bytes.Buffer{},
	}
	s, err := New(cfg, Options{
		Dial: func(cfg state.LocalCfg, log *slog.Logger, handler state.FrameHandler) (state.Link, error) {
			return &recordingLink{h: h}, nil
		},
		Timers:  h.Timers,
		Console: h.Console,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	h.S = s
	t.Cleanup(func() {
		Stop(s)
	})
	return h
}

func testCfg(id state.NodeId, protocols ...state.Protocol) state.LocalCfg {
	cfg := state.DefaultLocalCfg(id)
	if len(protocols) != 0 {
		cfg.Protocols = protocols
	}
	return cfg
}

// StubTrickle swaps the trickle primitive for a recording one and restarts the engine
func (h *NodeHarness) StubTrickle() *Trickle {
	h.t.Helper()
	tr, ok := Get[*Trickle](h.S)
	require.True(h.t, ok)
	tr.NewTimer = func(s *state.State, p state.TrickleParams, tx trickle.TxFunc) TrickleTimer {
		return &recordingTimer{h: h}
	}
	tr.Restart(h.S)
	h.GetActions()
	return tr
}

func (h *NodeHarness) record(msg string, args ...any) {
	h.actions = append(h.actions, MakeEvent(msg, args...))
}

// GetActions returns everything recorded so far and clears the log
func (h *NodeHarness) GetActions() HarnessEvents {
	x := h.actions
	h.actions = make([]HarnessEvent, 0)
	return x
}

func (h *NodeHarness) Advance(d time.Duration) {
	h.t.Helper()
	require.NoError(h.t, h.Timers.Advance(h.S, d))
}

func (h *NodeHarness) Frame(f state.Frame) {
	h.t.Helper()
	require.NoError(h.t, HandleFrame(h.S, f))
}

func (h *NodeHarness) Announce(from state.NodeId) {
	h.t.Helper()
	h.Frame(state.Frame{
		Src:     from,
		Dst:     state.BroadcastAddr,
		Port:    state.PortAnnounce,
		Payload: Announcement{Id: state.AnnouncementId}.Marshal(),
	})
}

func (h *NodeHarness) Relay(from state.NodeId, r Relay) {
	h.t.Helper()
	h.Frame(state.Frame{
		Src:     from,
		Dst:     h.S.Id,
		Port:    state.PortMultihop,
		Payload: r.Marshal(),
	})
}

func (h *NodeHarness) Token(from state.NodeId, v uint8) {
	h.t.Helper()
	h.Frame(state.Frame{
		Src:     from,
		Dst:     state.BroadcastAddr,
		Port:    state.PortTrickle,
		Payload: []byte{v},
	})
}

func (h *NodeHarness) Command(line string) {
	h.t.Helper()
	require.NoError(h.t, HandleEvent(h.S, CommandReceived{Line: line}))
}

func (h *NodeHarness) Neighbours() []state.NodeId {
	if h.S.Neighbours == nil {
		return nil
	}
	return h.S.Neighbours.Ids()
}
