package core

import (
	"fmt"
	"time"

	"github.com/encodeous/tpwsn/perf"
	"github.com/encodeous/tpwsn/state"
)

// PowerOn brings every protocol module up from the node's initial configuration.
// Nothing tuned at runtime survives.
func PowerOn(s *state.State) error {
	s.Roles = state.Roles{
		Source: s.LocalCfg.Source,
		Sink:   s.LocalCfg.Sink,
	}
	s.Trickle = state.TrickleState{
		Params: s.LocalCfg.Trickle,
		Limit:  s.LocalCfg.Limit,
	}
	clearNeighbours(s)
	s.Neighbours = nil
	s.Captured = nil
	for _, module := range s.Modules {
		if err := module.Init(s); err != nil {
			return fmt.Errorf("failed to init %T: %w", module, err)
		}
	}
	return nil
}

// PowerOff tears the modules down in registration order, then switches the radio off
func PowerOff(s *state.State) error {
	for _, module := range s.Modules {
		if err := module.Cleanup(s); err != nil {
			return fmt.Errorf("failed to clean up %T: %w", module, err)
		}
	}
	s.Radio.Off()
	return nil
}

// ScheduleCrash simulates a crash now and a cold restart after delay.
// A crash that is already pending only has its restart time moved.
func ScheduleCrash(s *state.State, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	fireAt := s.Timers.Now().Add(delay)
	if s.Restart.Pending {
		s.Timers.Cancel(s.Restart.Handle)
		s.Restart.Handle = s.Timers.Schedule(state.TimerRestart, delay, restartNode)
		s.Restart.FireAt = fireAt
		s.Log.Info("rearmed restart", "restart_in", delay)
		return nil
	}

	s.Log.Info("crashing node", "restart_in", delay)
	if err := PowerOff(s); err != nil {
		return err
	}
	s.Phase = state.PhaseCrashScheduled
	s.Restart = state.RestartSchedule{
		Pending: true,
		FireAt:  fireAt,
		Handle:  s.Timers.Schedule(state.TimerRestart, delay, restartNode),
	}
	return nil
}

func restartNode(s *state.State) error {
	if !s.Restart.Pending {
		return fmt.Errorf("restart fired in phase %s with no restart pending", s.Phase)
	}
	s.Log.Info("restarting node", "epoch", s.Epoch+1)
	s.Restart = state.RestartSchedule{}
	s.Phase = state.PhaseRestarting
	s.Radio.On()
	if err := PowerOn(s); err != nil {
		return err
	}
	s.Epoch++
	s.Phase = state.PhaseRunning
	perf.Restarts.WithLabelValues(s.Id.String()).Inc()
	return nil
}
