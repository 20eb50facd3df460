//go:build integration

package integration

import (
	"os"
	"testing"
	"time"

	"github.com/encodeous/tpwsn/core"
	"github.com/encodeous/tpwsn/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	state.AnnouncementInterval = 20 * time.Millisecond
	state.NeighbourTimeout = 300 * time.Millisecond
	state.NewTokenInterval = 30 * time.Millisecond
	state.TrickleTick = time.Millisecond
	os.Exit(m.Run())
}

func checkErrs(t *testing.T, errs chan error) {
	t.Helper()
	select {
	case err := <-errs:
		t.Fatal(err)
	default:
	}
}

func TestStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := &VirtualHarness{}
	a := vh.NewNode("1.0")
	b := vh.NewNode("2.0")
	c := vh.NewNode("3.0")
	vh.Line(a, b, c)
	errs := vh.Start()
	select {
	case <-time.After(200 * time.Millisecond):
	case err := <-errs:
		t.Error(err)
	}
	vh.Stop()
}

func TestNeighbourDiscovery(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := &VirtualHarness{}
	a := vh.NewNode("1.0")
	b := vh.NewNode("2.0")
	c := vh.NewNode("3.0")
	vh.Line(a, b, c)
	errs := vh.Start()
	defer vh.Stop()

	assert.Eventually(t, func() bool {
		ids, ok := Query(vh, b, func(s *state.State) []state.NodeId { return s.Neighbours.Ids() })
		return ok && len(ids) == 2
	}, 2*time.Second, 10*time.Millisecond)
	ids, _ := Query(vh, a, func(s *state.State) []state.NodeId { return s.Neighbours.Ids() })
	assert.Equal(t, []state.NodeId{b}, ids)
	checkErrs(t, errs)
}

func TestPartitionEvictsNeighbour(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := &VirtualHarness{}
	a := vh.NewNode("1.0")
	b := vh.NewNode("2.0")
	vh.Line(a, b)
	errs := vh.Start()
	defer vh.Stop()

	assert.Eventually(t, func() bool {
		n, ok := Query(vh, a, func(s *state.State) int { return s.Neighbours.Len() })
		return ok && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	vh.Net.Disconnect(a, b)
	assert.Eventually(t, func() bool {
		n, ok := Query(vh, a, func(s *state.State) int { return s.Neighbours.Len() })
		return ok && n == 0
	}, 2*time.Second, 10*time.Millisecond)
	checkErrs(t, errs)
}

func TestRandomWalkReachesSink(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := &VirtualHarness{}
	sink := vh.NewNode("1.0", func(cfg *state.LocalCfg) { cfg.Sink = true })
	b := vh.NewNode("2.0")
	c := vh.NewNode("3.0")
	d := vh.NewNode("4.0")
	vh.Line(sink, b, c, d)
	errs := vh.Start()
	defer vh.Stop()

	assert.Eventually(t, func() bool {
		n, ok := Query(vh, c, func(s *state.State) int { return s.Neighbours.Len() })
		return ok && n == 2
	}, 2*time.Second, 10*time.Millisecond)

	// a walk may wander back and forth, keep pressing until one arrives
	assert.Eventually(t, func() bool {
		vh.Inject(d, core.ButtonPressed{})
		got, ok := Query(vh, sink, func(s *state.State) string { return string(s.Captured) })
		return ok && got == "hello\x00"
	}, 5*time.Second, 20*time.Millisecond)
	checkErrs(t, errs)
}

func TestTokenDissemination(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := &VirtualHarness{}
	a := vh.NewNode("1.0", func(cfg *state.LocalCfg) { cfg.Sink = true })
	b := vh.NewNode("2.0")
	c := vh.NewNode("3.0")
	d := vh.NewNode("4.0", func(cfg *state.LocalCfg) {
		cfg.Source = true
		cfg.Limit = 3
		cfg.Trickle.IMax = 4
	})
	vh.Line(a, b, c, d)
	errs := vh.Start()
	defer vh.Stop()

	for _, id := range []state.NodeId{a, b, c, d} {
		assert.Eventually(t, func() bool {
			tok, ok := Query(vh, id, func(s *state.State) uint8 { return s.Trickle.Token })
			return ok && tok == 3
		}, 10*time.Second, 20*time.Millisecond, "node %s", id)
	}
	checkErrs(t, errs)
}

func TestCrashAndRecover(t *testing.T) {
	defer goleak.VerifyNone(t)
	vh := &VirtualHarness{}
	a := vh.NewNode("1.0")
	b := vh.NewNode("2.0")
	vh.Line(a, b)
	errs := vh.Start()
	defer vh.Stop()

	assert.Eventually(t, func() bool {
		n, ok := Query(vh, b, func(s *state.State) int { return s.Neighbours.Len() })
		return ok && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	vh.Inject(b, core.CommandReceived{Line: "set source limit 5 sleep 1"})
	phase, ok := Query(vh, b, func(s *state.State) state.Phase { return s.Phase })
	require.True(t, ok)
	assert.Equal(t, state.PhaseCrashScheduled, phase)

	assert.Eventually(t, func() bool {
		epoch, ok := Query(vh, b, func(s *state.State) uint32 { return s.Epoch })
		return ok && epoch == 1
	}, 3*time.Second, 20*time.Millisecond)

	roles, _ := Query(vh, b, func(s *state.State) state.Roles { return s.Roles })
	assert.Equal(t, state.Roles{}, roles)
	assert.Eventually(t, func() bool {
		n, ok := Query(vh, b, func(s *state.State) int { return s.Neighbours.Len() })
		return ok && n == 1
	}, 2*time.Second, 10*time.Millisecond)
	checkErrs(t, errs)
}
