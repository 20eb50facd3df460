package core

import (
	"fmt"
	"time"

	"github.com/encodeous/tpwsn/perf"
	"github.com/encodeous/tpwsn/state"
)

// Rmh is the random multihop module. Neighbours are learnt from announcements
// and every message that is not for us goes to a uniformly random neighbour.
type Rmh struct {
	open       bool
	announcing bool
	announce   state.TimerHandle
}

// ButtonPayload is what a button press sends to the sink
var ButtonPayload = []byte("hello\x00")

func (r *Rmh) Init(s *state.State) error {
	s.Log.Debug("init rmh")
	clearNeighbours(s)
	s.Neighbours = state.NewNeighbourTable(state.MaxNeighbours)
	s.Captured = make([]byte, 0, state.DataBufSize)
	r.open = true
	r.startAnnouncing(s)
	perf.Neighbours.WithLabelValues(s.Id.String()).Set(0)
	return nil
}

func (r *Rmh) Cleanup(s *state.State) error {
	clearNeighbours(s)
	r.open = false
	r.stopAnnouncing(s)
	s.Captured = nil
	return nil
}

// clearNeighbours stops every eviction timer, then drops every entry
func clearNeighbours(s *state.State) {
	if s.Neighbours == nil {
		return
	}
	refs := s.Neighbours.Refs()
	for _, ref := range refs {
		if e, ok := s.Neighbours.Entry(ref); ok {
			s.Timers.Cancel(e.Evict)
		}
	}
	for _, ref := range refs {
		_ = s.Neighbours.Release(ref)
	}
	perf.Neighbours.WithLabelValues(s.Id.String()).Set(0)
}

// Silence closes the multihop connection and stops announcing, leaving the table intact
func (r *Rmh) Silence(s *state.State) {
	r.open = false
	r.stopAnnouncing(s)
}

func (r *Rmh) Open() bool {
	return r.open
}

func (r *Rmh) startAnnouncing(s *state.State) {
	r.announcing = true
	first := time.Duration(s.Rand.Int64N(int64(state.AnnouncementInterval)))
	r.announce = s.Timers.Schedule(state.TimerAnnounce, first, r.announceTick)
}

func (r *Rmh) stopAnnouncing(s *state.State) {
	r.announcing = false
	s.Timers.Cancel(r.announce)
	r.announce = 0
}

func (r *Rmh) announceTick(s *state.State) error {
	r.announce = 0
	if !r.announcing {
		return nil
	}
	send(s, state.BroadcastAddr, state.PortAnnounce, Announcement{Id: state.AnnouncementId}.Marshal())
	r.announce = s.Timers.Schedule(state.TimerAnnounce, state.AnnouncementInterval, r.announceTick)
	return nil
}

// OnAnnouncement refreshes or inserts the sender. A full table ignores new senders.
func (r *Rmh) OnAnnouncement(s *state.State, from state.NodeId) error {
	if !r.open {
		return nil
	}
	now := s.Timers.Now()
	if ref, ok := s.Neighbours.Lookup(from); ok {
		e, _ := s.Neighbours.Entry(ref)
		s.Timers.Cancel(e.Evict)
		e.LastRefresh = now
		e.Evict = r.armEviction(s, ref)
		s.Log.Debug("refreshed neighbour", "id", from)
		return nil
	}
	ref, ok := s.Neighbours.Alloc(from, now)
	if !ok {
		s.Log.Debug("neighbour table full, ignoring announcement", "from", from, "size", s.Neighbours.Len())
		perf.AnnouncementsDropped.WithLabelValues(s.Id.String()).Inc()
		return nil
	}
	e, _ := s.Neighbours.Entry(ref)
	e.Evict = r.armEviction(s, ref)
	s.Log.Debug("added neighbour", "id", from, "size", s.Neighbours.Len())
	perf.Neighbours.WithLabelValues(s.Id.String()).Set(float64(s.Neighbours.Len()))
	return nil
}

func (r *Rmh) armEviction(s *state.State, ref state.NeighbourRef) state.TimerHandle {
	return s.Timers.Schedule(state.TimerNeighbourEviction, state.NeighbourTimeout, func(s *state.State) error {
		return r.onTimeout(s, ref)
	})
}

func (r *Rmh) onTimeout(s *state.State, ref state.NeighbourRef) error {
	e, ok := s.Neighbours.Entry(ref)
	if !ok {
		return fmt.Errorf("eviction of neighbour slot %d: %w", ref.Slot, state.ErrStaleNeighbour)
	}
	id := e.Id
	if err := s.Neighbours.Release(ref); err != nil {
		return err
	}
	s.Log.Debug("neighbour timed out", "id", id, "size", s.Neighbours.Len())
	perf.NeighbourEvictions.WithLabelValues(s.Id.String()).Inc()
	perf.Neighbours.WithLabelValues(s.Id.String()).Set(float64(s.Neighbours.Len()))
	return nil
}

// DecideNextHop picks a random neighbour. hops is only used for diagnostics.
func (r *Rmh) DecideNextHop(s *state.State, originator, dest, prevHop state.NodeId, hops uint8) (state.NodeId, bool) {
	nh, ok := s.Neighbours.PickRandom(s.Rand)
	if !ok {
		s.Log.Debug("did not find a neighbour to forward to", "originator", originator, "dest", dest, "hops", hops)
		return state.NodeId{}, false
	}
	s.Log.Debug("forwarding", "nh", nh, "originator", originator, "dest", dest, "prev", prevHop, "hops", hops, "neighbours", s.Neighbours.Len())
	return nh, true
}

func (r *Rmh) OnRelay(s *state.State, ev RelayReceived) error {
	if !r.open {
		return nil
	}
	capture(s, ev.Payload)
	if ev.Dest == s.Id {
		r.deliver(s, ev)
		return nil
	}
	s.Log.Debug("multihop message received", "data", string(s.Captured), "from", ev.PrevHop)
	r.route(s, ev.Originator, ev.Dest, ev.PrevHop, ev.Hops, ev.Payload)
	return nil
}

func (r *Rmh) deliver(s *state.State, ev RelayReceived) {
	s.Log.Info("sink received", "data", string(s.Captured), "originator", ev.Originator, "hops", ev.Hops)
	perf.Relays.WithLabelValues(s.Id.String(), "delivered").Inc()
}

func (r *Rmh) route(s *state.State, originator, dest, prevHop state.NodeId, hops uint8, payload []byte) bool {
	nh, ok := r.DecideNextHop(s, originator, dest, prevHop, hops)
	if !ok {
		perf.Relays.WithLabelValues(s.Id.String(), "dropped").Inc()
		return false
	}
	msg := Relay{
		Originator: originator,
		Dest:       dest,
		Hops:       hops + 1,
		Data:       payload,
	}
	if !send(s, nh, state.PortMultihop, msg.Marshal()) {
		perf.Relays.WithLabelValues(s.Id.String(), "dropped").Inc()
		return false
	}
	perf.Relays.WithLabelValues(s.Id.String(), "forwarded").Inc()
	return true
}

// Send originates a message from this node
func (r *Rmh) Send(s *state.State, dest state.NodeId, payload []byte) error {
	if !r.open {
		return nil
	}
	if dest == s.Id {
		capture(s, payload)
		r.deliver(s, RelayReceived{Originator: s.Id, Dest: dest, PrevHop: s.Id, Payload: payload})
		return nil
	}
	r.route(s, s.Id, dest, s.Id, 0, payload)
	return nil
}

func (r *Rmh) Press(s *state.State) error {
	s.Log.Info("button pressed, starting multihop send", "dest", state.SinkAddr)
	return r.Send(s, state.SinkAddr, ButtonPayload)
}
