package core

import (
	"fmt"
	"strings"

	"github.com/encodeous/tpwsn/state"
)

// Report renders the node state for the print command
func Report(s *state.State) string {
	sb := strings.Builder{}
	sb.WriteString(fmt.Sprintf("Node %s (%s, epoch %d)\n", s.Id, s.Phase, s.Epoch))
	sb.WriteString(fmt.Sprintf("Roles: source=%t sink=%t\n", s.Roles.Source, s.Roles.Sink))
	radio := "off"
	if s.Radio.IsOn() {
		radio = "on"
	}
	sb.WriteString(fmt.Sprintf("Radio: %s\n", radio))
	if s.Restart.Pending {
		sb.WriteString(fmt.Sprintf("Restart at: %s\n", s.Restart.FireAt.Format("15:04:05.000")))
	}

	if _, ok := Get[*Trickle](s); ok {
		p := s.Trickle.Params
		sb.WriteString(fmt.Sprintf("Current token: %d\n", s.Trickle.Token))
		sb.WriteString(fmt.Sprintf("   limit=%d imax=%d imin=%d k=%d suppress=%t\n", s.Trickle.Limit, p.IMax, p.IMin, p.K, s.Trickle.Suppress))
	}

	if _, ok := Get[*Rmh](s); ok && s.Neighbours != nil {
		now := s.Timers.Now()
		sb.WriteString(fmt.Sprintf("Neighbours (%d/%d):\n", s.Neighbours.Len(), s.Neighbours.Cap()))
		if s.Neighbours.Len() == 0 {
			sb.WriteString("    (none)\n")
		}
		for _, ref := range s.Neighbours.Refs() {
			e, _ := s.Neighbours.Entry(ref)
			sb.WriteString(fmt.Sprintf(" - %s last seen %.2fs ago\n", e.Id, now.Sub(e.LastRefresh).Seconds()))
		}
		sb.WriteString(fmt.Sprintf("Captured: %q\n", string(s.Captured)))
	}
	return sb.String()
}
