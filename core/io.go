package core

import (
	"errors"
	"strconv"

	"github.com/encodeous/tpwsn/perf"
	"github.com/encodeous/tpwsn/state"
)

// send transmits through the radio. A radio that is off drops the frame silently,
// link failures are logged since there is no retry at this layer.
func send(s *state.State, dst state.NodeId, port uint16, payload []byte) bool {
	err := s.Radio.Send(dst, port, payload)
	if err != nil {
		if !errors.Is(err, state.ErrRadioOff) {
			s.Log.Warn("failed to send frame", "dst", dst, "port", port, "error", err)
		}
		return false
	}
	perf.FramesSent.WithLabelValues(s.Id.String(), strconv.Itoa(int(port))).Inc()
	traceFrame(s, "tx", state.Frame{Src: s.Id, Dst: dst, Port: port, Payload: payload})
	return true
}

func capture(s *state.State, payload []byte) {
	n := min(len(payload), state.DataBufSize)
	s.Captured = append(s.Captured[:0], payload[:n]...)
}
