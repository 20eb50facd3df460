// Package trickle implements the trickle timer of RFC 6206 on top of the node's timer service.
package trickle

import (
	"math/rand/v2"
	"time"

	"github.com/encodeous/tpwsn/state"
)

type Config struct {
	IMin          time.Duration
	IMaxDoublings int
	// K is the redundancy constant, 0 disables suppression
	K int
}

// IMax is the largest interval, IMin doubled IMaxDoublings times
func (c Config) IMax() time.Duration {
	imax := c.IMin
	for range c.IMaxDoublings {
		if imax > time.Duration(1<<62)/2 {
			break
		}
		imax *= 2
	}
	return imax
}

// TxFunc runs once per interval at the randomly chosen point t.
// suppress is set when at least K consistent transmissions were heard this interval.
type TxFunc func(s *state.State, suppress bool) error

type Timer struct {
	cfg    Config
	timers state.Timers
	rand   *rand.Rand
	tx     TxFunc

	iCur    time.Duration
	c       int
	txAt    state.TimerHandle
	end     state.TimerHandle
	running bool
}

func New(cfg Config, timers state.Timers, rnd *rand.Rand, tx TxFunc) *Timer {
	return &Timer{
		cfg:    cfg,
		timers: timers,
		rand:   rnd,
		tx:     tx,
	}
}

// Start begins the first interval at IMin
func (t *Timer) Start() {
	t.running = true
	t.iCur = t.cfg.IMin
	t.newInterval()
}

func (t *Timer) Stop() {
	t.running = false
	t.timers.Cancel(t.txAt)
	t.timers.Cancel(t.end)
	t.txAt, t.end = 0, 0
}

func (t *Timer) Consistency() {
	if t.running {
		t.c++
	}
}

// Inconsistency shrinks the interval back to IMin. Nothing happens if it is already there.
func (t *Timer) Inconsistency() {
	if !t.running || t.iCur == t.cfg.IMin {
		return
	}
	t.iCur = t.cfg.IMin
	t.newInterval()
}

// ResetEvent is an external event, such as new local data
func (t *Timer) ResetEvent() {
	t.Inconsistency()
}

func (t *Timer) Interval() time.Duration {
	return t.iCur
}

func (t *Timer) Counter() int {
	return t.c
}

func (t *Timer) Running() bool {
	return t.running
}

func (t *Timer) newInterval() {
	t.timers.Cancel(t.txAt)
	t.timers.Cancel(t.end)
	t.c = 0
	half := t.iCur / 2
	at := half
	if span := t.iCur - half; span > 0 {
		at += time.Duration(t.rand.Int64N(int64(span)))
	}
	t.txAt = t.timers.Schedule(state.TimerTrickle, at, t.fireTx)
	t.end = t.timers.Schedule(state.TimerTrickle, t.iCur, t.fireEnd)
}

func (t *Timer) fireTx(s *state.State) error {
	t.txAt = 0
	return t.tx(s, t.cfg.K != 0 && t.c >= t.cfg.K)
}

func (t *Timer) fireEnd(s *state.State) error {
	t.end = 0
	t.iCur = min(2*t.iCur, t.cfg.IMax())
	t.newInterval()
	return nil
}
