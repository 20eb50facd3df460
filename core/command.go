package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/encodeous/tpwsn/state"
)

// Directive is one instruction recognised on a console line
type Directive interface {
	apply(s *state.State) error
}

// argConsumer is a directive that binds the numeric tokens following its keyword
type argConsumer interface {
	accept(v int64) bool
}

// InitDirective binds its values by position, not by name: the first number after
// "init" is imax, the second imin and the third the redundancy constant.
// Numbers beyond the third are not bound.
type InitDirective struct {
	Values []int64
}

type LimitDirective struct {
	Value int64
	Bound bool
}

type PrintDirective struct{}

type SetDirective struct {
	Sink   bool
	Source bool
}

// largest sleep that still fits in a time.Duration
const maxSleepSeconds = int64(math.MaxInt64 / time.Second)

type SleepDirective struct {
	Seconds int64
	Bound   bool
}

func (d *InitDirective) accept(v int64) bool {
	if len(d.Values) == 3 {
		return false
	}
	d.Values = append(d.Values, v)
	return true
}

func (d *LimitDirective) accept(v int64) bool {
	if d.Bound {
		return false
	}
	d.Value, d.Bound = v, true
	return true
}

func (d *SleepDirective) accept(v int64) bool {
	if d.Bound {
		return false
	}
	d.Seconds, d.Bound = v, true
	return true
}

// Params overlays the bound values on p
func (d *InitDirective) Params(p state.TrickleParams) state.TrickleParams {
	fields := []*int64{&p.IMax, &p.IMin, &p.K}
	for i, v := range d.Values {
		*fields[i] = v
	}
	return p
}

// ParseCommand walks the whitespace separated tokens of line from left to right.
// Numbers bind to the most recent keyword that takes arguments; anything unrecognised is skipped.
func ParseCommand(line string) []Directive {
	directives := make([]Directive, 0)
	var open argConsumer
	var set *SetDirective
	for _, tok := range strings.Fields(line) {
		switch tok {
		case "init":
			d := &InitDirective{}
			directives = append(directives, d)
			open = d
			continue
		case "limit":
			d := &LimitDirective{}
			directives = append(directives, d)
			open = d
			continue
		case "sleep":
			d := &SleepDirective{}
			directives = append(directives, d)
			open = d
			continue
		case "print":
			directives = append(directives, &PrintDirective{})
			open = nil
			continue
		case "set":
			set = &SetDirective{}
			directives = append(directives, set)
			open = nil
			continue
		case "sink":
			if set != nil {
				set.Sink = true
			}
			continue
		case "source":
			if set != nil {
				set.Source = true
			}
			continue
		}
		v, err := strconv.ParseInt(tok, 10, 64)
		if err != nil || open == nil {
			continue
		}
		open.accept(v)
	}
	return directives
}

// ExecCommand runs a console line. Only sleep is honoured while the node is down.
func ExecCommand(s *state.State, line string) error {
	for _, d := range ParseCommand(line) {
		if _, ok := d.(*SleepDirective); !ok && s.Phase != state.PhaseRunning {
			s.Log.Debug("node is down, ignoring directive", "directive", fmt.Sprintf("%T", d), "phase", s.Phase)
			continue
		}
		if err := d.apply(s); err != nil {
			return err
		}
	}
	return nil
}

func (d *InitDirective) apply(s *state.State) error {
	p := d.Params(s.Trickle.Params)
	if err := state.TrickleParamsValidator(p); err != nil {
		s.Log.Warn("ignoring init", "error", err)
		return nil
	}
	s.Trickle.Params = p
	s.Log.Info("trickle reconfigured", "imax", p.IMax, "imin", p.IMin, "k", p.K)
	if t, ok := Get[*Trickle](s); ok {
		t.Restart(s)
	}
	return nil
}

func (d *LimitDirective) apply(s *state.State) error {
	if !d.Bound {
		return nil
	}
	if d.Value < 0 || d.Value > 255 {
		s.Log.Warn("ignoring limit outside the token range", "limit", d.Value)
		return nil
	}
	s.Log.Info("setting limit", "limit", d.Value)
	s.Trickle.Limit = d.Value
	return nil
}

func (d *PrintDirective) apply(s *state.State) error {
	s.Radio.Off()
	s.Trickle.Suppress = true
	if r, ok := Get[*Rmh](s); ok {
		r.Silence(s)
	}
	s.Log.Info("current token", "token", s.Trickle.Token, "data", string(s.Captured))
	if s.Console != nil {
		_, err := fmt.Fprint(s.Console, Report(s))
		if err != nil {
			s.Log.Warn("failed to write report", "error", err)
		}
	}
	return nil
}

func (d *SetDirective) apply(s *state.State) error {
	if !d.Sink && !d.Source {
		return nil
	}
	if d.Sink {
		s.Log.Info("setting node status to SINK")
		s.Roles.Sink = true
	}
	if d.Source {
		s.Log.Info("setting node status to SOURCE")
		s.Roles.Source = true
	}
	if t, ok := Get[*Trickle](s); ok {
		t.Restart(s)
	}
	return nil
}

func (d *SleepDirective) apply(s *state.State) error {
	if !d.Bound || d.Seconds <= 0 {
		return nil
	}
	if d.Seconds > maxSleepSeconds {
		s.Log.Warn("clamping sleep", "seconds", d.Seconds, "max", maxSleepSeconds)
		d.Seconds = maxSleepSeconds
	}
	return ScheduleCrash(s, time.Duration(d.Seconds)*time.Second)
}
