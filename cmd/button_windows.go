package cmd

import "github.com/encodeous/tpwsn/state"

func watchButton(e *state.Env) {
	e.Log.Debug("no button signal on this platform")
}
