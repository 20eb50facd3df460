package core

import (
	"fmt"
	"strconv"
	"time"

	"github.com/encodeous/tpwsn/perf"
	"github.com/encodeous/tpwsn/state"
)

// Event is anything a node reacts to. Events are handled one at a time on the dispatch goroutine.
type Event interface {
	event()
}

type AnnouncementReceived struct {
	From  state.NodeId
	Id    uint16
	Value uint16
}

type RelayReceived struct {
	Originator state.NodeId
	Dest       state.NodeId
	PrevHop    state.NodeId
	Hops       uint8
	Payload    []byte
}

type TokenReceived struct {
	From  state.NodeId
	Value uint8
}

// CommandReceived is one line from the serial console
type CommandReceived struct {
	Line string
}

// ButtonPressed originates a message to the sink
type ButtonPressed struct{}

// CrashRequested simulates a crash with a restart after Delay
type CrashRequested struct {
	Delay time.Duration
}

type TimerFired struct {
	Kind   state.TimerKind
	Handle state.TimerHandle
}

func (AnnouncementReceived) event() {}
func (RelayReceived) event()        {}
func (TokenReceived) event()        {}
func (CommandReceived) event()      {}
func (ButtonPressed) event()        {}
func (CrashRequested) event()       {}
func (TimerFired) event()           {}

func HandleEvent(s *state.State, ev Event) error {
	switch ev := ev.(type) {
	case AnnouncementReceived:
		if r, ok := Get[*Rmh](s); ok {
			return r.OnAnnouncement(s, ev.From)
		}
	case RelayReceived:
		if r, ok := Get[*Rmh](s); ok {
			return r.OnRelay(s, ev)
		}
	case TokenReceived:
		if t, ok := Get[*Trickle](s); ok {
			t.OnTokenReceived(s, ev.From, ev.Value)
		}
	case CommandReceived:
		return ExecCommand(s, ev.Line)
	case ButtonPressed:
		if r, ok := Get[*Rmh](s); ok {
			return r.Press(s)
		}
	case CrashRequested:
		return ScheduleCrash(s, ev.Delay)
	case TimerFired:
		return s.Timers.Fire(s, ev.Handle)
	default:
		return fmt.Errorf("unknown event %T", ev)
	}
	return nil
}

// HandleFrame demultiplexes an inbound frame into an event
func HandleFrame(s *state.State, f state.Frame) error {
	if !s.Radio.Accept(f) {
		return nil
	}
	perf.FramesPerSecond.Add(1)
	perf.FramesReceived.WithLabelValues(s.Id.String(), strconv.Itoa(int(f.Port))).Inc()
	traceFrame(s, "rx", f)
	switch f.Port {
	case state.PortAnnounce:
		a, err := UnmarshalAnnouncement(f.Payload)
		if err != nil {
			s.Log.Debug("dropped announcement", "from", f.Src, "error", err)
			return nil
		}
		return HandleEvent(s, AnnouncementReceived{From: f.Src, Id: a.Id, Value: a.Value})
	case state.PortMultihop:
		r, err := UnmarshalRelay(f.Payload)
		if err != nil {
			s.Log.Debug("dropped multihop message", "from", f.Src, "error", err)
			return nil
		}
		return HandleEvent(s, RelayReceived{
			Originator: r.Originator,
			Dest:       r.Dest,
			PrevHop:    f.Src,
			Hops:       r.Hops,
			Payload:    r.Data,
		})
	case state.PortTrickle:
		if len(f.Payload) != 1 {
			s.Log.Debug("dropped token datagram", "from", f.Src, "len", len(f.Payload))
			return nil
		}
		return HandleEvent(s, TokenReceived{From: f.Src, Value: f.Payload[0]})
	}
	return nil
}

// Inject hands an event to the node's dispatch loop. Safe from any goroutine.
func Inject(e *state.Env, ev Event) {
	e.Dispatch(func(s *state.State) error {
		return HandleEvent(s, ev)
	})
}
