package core

import (
	"fmt"
	"time"

	"github.com/dustin/go-broadcast"
	"github.com/encodeous/tpwsn/state"
)

// Trace fans out every frame the node sends or accepts to registered observers.
// It outlives simulated crashes and is only closed when the node stops.
type Trace struct {
	broadcast.Broadcaster
}

type TraceEvent struct {
	At    time.Time
	Node  state.NodeId
	Dir   string
	Frame state.Frame
}

func (e TraceEvent) String() string {
	return fmt.Sprintf("%s %s %s %s", e.At.Format("15:04:05.000"), e.Node, e.Dir, e.Frame)
}

func (t *Trace) Init(s *state.State) error {
	if t.Broadcaster == nil {
		t.Broadcaster = broadcast.NewBroadcaster(1024)
	}
	return nil
}

func (t *Trace) Cleanup(s *state.State) error {
	if !s.Stopping.Load() || t.Broadcaster == nil {
		return nil
	}
	err := t.Broadcaster.Close()
	t.Broadcaster = nil
	return err
}

// traceFrame never blocks the dispatch loop; events are dropped when observers lag
func traceFrame(s *state.State, dir string, f state.Frame) {
	t, ok := Get[*Trace](s)
	if !ok || t.Broadcaster == nil {
		return
	}
	t.TrySubmit(TraceEvent{
		At:    s.Timers.Now(),
		Node:  s.Id,
		Dir:   dir,
		Frame: f,
	})
}
