package cmd

import (
	"bufio"
	"io"
	"strings"
	"sync"

	"github.com/encodeous/tpwsn/core"
	"github.com/encodeous/tpwsn/state"
)

// readConsole forwards every line of r to the node as a console command
func readConsole(e *state.Env, r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if e.Context.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		core.Inject(e, core.CommandReceived{Line: line})
	}
	if err := sc.Err(); err != nil {
		e.Log.Warn("console closed", "error", err)
	}
}

// syncWriter serialises reports from nodes sharing one terminal
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (w *syncWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
