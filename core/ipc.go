package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/encodeous/tpwsn/state"
)

// IPCGet sends one request to a node's control socket and returns the reply.
// Replies are terminated by a NUL byte.
func IPCGet(path, request string) (string, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
	if _, err = rw.WriteString(request + "\n"); err != nil {
		return "", err
	}
	if err = rw.Flush(); err != nil {
		return "", err
	}
	res, err := rw.ReadString(0)
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSuffix(res, "\x00"), nil
}

// IPCTrace streams trace lines from a node's control socket into w until ctx is done.
func IPCTrace(ctx context.Context, path string, w io.Writer) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()
	defer conn.Close()
	if _, err = io.WriteString(conn, "trace\n"); err != nil {
		return err
	}
	_, err = io.Copy(w, conn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// ServeIPC listens on path and answers control requests until the node stops.
func ServeIPC(e *state.Env, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	context.AfterFunc(e.Context, func() {
		l.Close()
	})
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				if e.Context.Err() == nil {
					e.Log.Error("control socket failed", "error", err)
				}
				return
			}
			go func() {
				defer conn.Close()
				rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))
				if err := HandleIPC(e, rw); err != nil {
					e.Log.Debug("control request failed", "error", err)
				}
			}()
		}
	}()
	return nil
}

func HandleIPC(e *state.Env, rw *bufio.ReadWriter) error {
	line, err := rw.ReadString('\n')
	if err != nil {
		return err
	}
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	var reply string
	switch cmd {
	case "inspect":
		res, err := e.DispatchWait(func(s *state.State) (any, error) {
			return Report(s), nil
		})
		if err != nil {
			return err
		}
		reply = res.(string)
	case "exec":
		Inject(e, CommandReceived{Line: arg})
		reply = "ok\n"
	case "press":
		Inject(e, ButtonPressed{})
		reply = "ok\n"
	case "trace":
		return streamTrace(e, rw)
	default:
		reply = fmt.Sprintf("unknown command %q\n", cmd)
	}
	if _, err = rw.WriteString(reply + "\x00"); err != nil {
		return err
	}
	return rw.Flush()
}

func streamTrace(e *state.Env, w *bufio.ReadWriter) error {
	ch := make(chan any, 64)
	res, err := e.DispatchWait(func(s *state.State) (any, error) {
		t, ok := Get[*Trace](s)
		if !ok || t.Broadcaster == nil {
			return false, nil
		}
		t.Register(ch)
		return true, nil
	})
	if err != nil {
		return err
	}
	if !res.(bool) {
		return errors.New("tracing unavailable")
	}
	for {
		select {
		case <-e.Context.Done():
			// the broadcaster is closed with the node
			return nil
		case ev := <-ch:
			_, err = fmt.Fprintln(w, ev)
			if err == nil {
				err = w.Flush()
			}
			if err != nil {
				unregister(e, ch)
				return err
			}
		}
	}
}

// unregister keeps draining ch until the dispatch loop has detached it
func unregister(e *state.Env, ch chan any) {
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ch:
			case <-done:
				return
			case <-e.Context.Done():
				return
			}
		}
	}()
	e.Dispatch(func(s *state.State) error {
		defer close(done)
		if t, ok := Get[*Trace](s); ok && t.Broadcaster != nil {
			t.Unregister(ch)
		}
		return nil
	})
}
