package state

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"
)

type NyModule interface {
	Init(s *State) error
	Cleanup(s *State) error
}

// Phase is the lifecycle phase of a node
type Phase int

const (
	PhaseRunning Phase = iota
	PhaseCrashScheduled
	PhaseRestarting
)

func (p Phase) String() string {
	switch p {
	case PhaseRunning:
		return "RUNNING"
	case PhaseCrashScheduled:
		return "CRASH_SCHEDULED"
	case PhaseRestarting:
		return "RESTARTING"
	}
	return "UNKNOWN"
}

type Roles struct {
	Source bool
	Sink   bool
}

// TrickleParams are the tunables of the trickle primitive, in the units the console uses
type TrickleParams struct {
	IMin int64 `yaml:"imin"` // minimum interval, in TrickleTick units
	IMax int64 `yaml:"imax"` // number of interval doublings
	K    int64 `yaml:"k"`    // redundancy constant
}

func (p TrickleParams) MinInterval() time.Duration {
	return time.Duration(p.IMin) * TrickleTick
}

type TrickleState struct {
	Token    uint8
	Params   TrickleParams
	Limit    int64
	Suppress bool
	// Open is true while the token transport is bound
	Open bool
}

type RestartSchedule struct {
	Pending bool
	FireAt  time.Time
	Handle  TimerHandle
}

// State access must be done only on a single Goroutine
type State struct {
	*Env
	// DispatchQueue is drained by the main loop
	DispatchQueue <-chan func(s *State) error

	Modules    []NyModule
	Phase      Phase
	Roles      Roles
	Trickle    TrickleState
	Neighbours *NeighbourTable
	Restart    RestartSchedule
	// Captured holds the head of the last relayed or delivered payload
	Captured []byte
	// Epoch counts completed restarts
	Epoch uint32
}

// Env can be read from any Goroutine
type Env struct {
	DispatchChannel chan<- func(s *State) error
	LocalCfg
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Log      *slog.Logger
	Timers   Timers
	Radio    *Radio
	Rand     *rand.Rand
	Console  io.Writer
	Started  atomic.Bool
	Stopping atomic.Bool
}
