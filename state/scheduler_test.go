package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatchChan := make(chan func(*State) error, 10)
	env := &Env{
		DispatchChannel: dispatchChan,
		Context:         ctx,
		Cancel: func(err error) {
			cancel()
		},
	}
	state := &State{
		Env: env,
	}

	var called bool

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case f := <-dispatchChan:
			if err := f(state); err != nil {
				t.Errorf("Dispatch error: %v", err)
			}
		case <-time.After(100 * time.Millisecond):
			t.Error("Timed out waiting for dispatched function")
		}
	}()

	env.Dispatch(func(s *State) error {
		called = true
		return nil
	})

	<-done

	if !called {
		t.Fatal("Dispatch function was not executed")
	}
}

func TestDispatchAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dispatchChan := make(chan func(*State) error)
	env := &Env{
		DispatchChannel: dispatchChan,
		Context:         ctx,
		Cancel: func(err error) {
			cancel()
		},
	}
	cancel()
	// must return even though nobody drains the channel
	env.Dispatch(func(s *State) error { return nil })
	assert.Empty(t, dispatchChan)
}

func TestDispatchWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatchChan := make(chan func(*State) error, 10)
	env := &Env{
		DispatchChannel: dispatchChan,
		Context:         ctx,
		Cancel: func(err error) {
			cancel()
		},
	}
	state := &State{Env: env, Phase: PhaseCrashScheduled}
	go func() {
		for {
			select {
			case f := <-dispatchChan:
				_ = f(state)
			case <-ctx.Done():
				return
			}
		}
	}()

	res, err := env.DispatchWait(func(s *State) (any, error) {
		return s.Phase.String(), nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "CRASH_SCHEDULED", res)

	boom := errors.New("boom")
	_, err = env.DispatchWait(func(s *State) (any, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}
