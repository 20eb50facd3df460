package core

import (
	"errors"
	"time"

	"github.com/encodeous/tpwsn/perf"
	"github.com/encodeous/tpwsn/state"
	"github.com/encodeous/tpwsn/trickle"
)

var ErrNotSource = errors.New("node is not a source")

// TrickleTimer is the scheduling primitive that decides when the token is retransmitted
type TrickleTimer interface {
	Start()
	Stop()
	Consistency()
	Inconsistency()
	ResetEvent()
	Interval() time.Duration
	Counter() int
}

type RxOutcome int

const (
	RxIgnored RxOutcome = iota
	RxConsistent
	RxNewer
	RxOlder
)

func (o RxOutcome) String() string {
	switch o {
	case RxConsistent:
		return "consistent"
	case RxNewer:
		return "newer"
	case RxOlder:
		return "older"
	}
	return "ignored"
}

// Trickle disseminates a single serial numbered token. A node that hears a token
// different from its own reports an inconsistency; it adopts the token only if it is newer.
type Trickle struct {
	// NewTimer builds the trickle primitive, trickle.New when nil
	NewTimer func(s *state.State, p state.TrickleParams, tx trickle.TxFunc) TrickleTimer
	tt       TrickleTimer
	genToken state.TimerHandle
}

func newTrickleTimer(s *state.State, p state.TrickleParams, tx trickle.TxFunc) TrickleTimer {
	return trickle.New(trickle.Config{
		IMin:          p.MinInterval(),
		IMaxDoublings: int(p.IMax),
		K:             int(p.K),
	}, s.Timers, s.Rand, tx)
}

func (t *Trickle) Init(s *state.State) error {
	s.Log.Debug("init trickle", "imin", s.Trickle.Params.IMin, "imax", s.Trickle.Params.IMax, "k", s.Trickle.Params.K)
	t.start(s)
	return nil
}

func (t *Trickle) Cleanup(s *state.State) error {
	t.stop(s)
	return nil
}

// Restart reinitialises the engine at token 0 with the current parameters
func (t *Trickle) Restart(s *state.State) {
	t.stop(s)
	t.start(s)
}

func (t *Trickle) start(s *state.State) {
	s.Trickle.Token = 0
	s.Trickle.Suppress = false
	s.Trickle.Open = true
	newTimer := t.NewTimer
	if newTimer == nil {
		newTimer = newTrickleTimer
	}
	t.tt = newTimer(s, s.Trickle.Params, t.Transmit)
	// every node starts out agreeing that the token is 0
	t.tt.Start()
	t.genToken = s.Timers.Schedule(state.TimerNewToken, state.NewTokenInterval, t.tokenTick)
}

func (t *Trickle) stop(s *state.State) {
	if t.tt != nil {
		t.tt.Stop()
		t.tt = nil
	}
	s.Timers.Cancel(t.genToken)
	t.genToken = 0
	s.Trickle.Open = false
}

func (t *Trickle) Timer() TrickleTimer {
	return t.tt
}

func (t *Trickle) tokenTick(s *state.State) error {
	t.genToken = s.Timers.Schedule(state.TimerNewToken, state.NewTokenInterval, t.tokenTick)
	if !s.Roles.Source {
		return nil
	}
	if s.Rand.IntN(state.NewTokenProb) == 0 && int64(s.Trickle.Token) < s.Trickle.Limit {
		return t.OnLocalTokenGenerated(s, s.Trickle.Token+1)
	}
	return nil
}

// OnLocalTokenGenerated replaces the token and starts a fresh dissemination interval
func (t *Trickle) OnLocalTokenGenerated(s *state.State, value uint8) error {
	if !s.Roles.Source {
		return ErrNotSource
	}
	s.Trickle.Token = value
	s.Log.Info("generated a new token", "token", value)
	if t.tt != nil {
		t.tt.ResetEvent()
	}
	return nil
}

func (t *Trickle) OnTokenReceived(s *state.State, from state.NodeId, value uint8) RxOutcome {
	if !s.Trickle.Open || t.tt == nil || !s.Radio.IsOn() {
		return RxIgnored
	}
	ours := s.Trickle.Token
	if s.Roles.Sink {
		s.Log.Info("sink received token", "ours", ours, "theirs", value, "from", from, "i", t.tt.Interval(), "c", t.tt.Counter())
	} else {
		s.Log.Debug("received token", "ours", ours, "theirs", value, "from", from, "i", t.tt.Interval(), "c", t.tt.Counter())
	}

	var outcome RxOutcome
	switch {
	case value == ours:
		outcome = RxConsistent
		t.tt.Consistency()
	case TokenNewer(ours, value):
		outcome = RxNewer
		s.Trickle.Token = value
		t.tt.Inconsistency()
	default:
		// they are behind, our next transmission corrects them
		outcome = RxOlder
		t.tt.Inconsistency()
	}
	if outcome != RxConsistent {
		s.Log.Debug("trickle inconsistency", "outcome", outcome, "token", s.Trickle.Token)
	}
	perf.TokenRx.WithLabelValues(s.Id.String(), outcome.String()).Inc()
	return outcome
}

// Transmit is called by the trickle primitive once per interval
func (t *Trickle) Transmit(s *state.State, suppressed bool) error {
	if suppressed || s.Trickle.Suppress || !s.Trickle.Open {
		perf.TokenTx.WithLabelValues(s.Id.String(), "suppressed").Inc()
		return nil
	}
	s.Log.Debug("trickle tx", "token", s.Trickle.Token)
	if send(s, state.BroadcastAddr, state.PortTrickle, []byte{s.Trickle.Token}) {
		perf.TokenTx.WithLabelValues(s.Id.String(), "sent").Inc()
	}
	return nil
}
