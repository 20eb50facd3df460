//go:build !windows

package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/encodeous/tpwsn/core"
	"github.com/encodeous/tpwsn/state"
)

// watchButton presses the button on every SIGUSR1
func watchButton(e *state.Env) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGUSR1)
	defer signal.Stop(c)
	for {
		select {
		case <-c:
			core.Inject(e, core.ButtonPressed{})
		case <-e.Context.Done():
			return
		}
	}
}
