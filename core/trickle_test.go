package core

import (
	"testing"
	"time"

	"github.com/encodeous/tpwsn/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenNewer(t *testing.T) {
	cases := []struct {
		ours, theirs uint8
		newer        bool
	}{
		{0, 1, true},
		{1, 0, false},
		{5, 5, false},
		{200, 5, true},
		{5, 200, false},
		{255, 0, true},
		{0, 127, true},
		{0, 129, false},
		// exactly half the range apart reads as newer from both sides
		{0, 128, true},
		{128, 0, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.newer, TokenNewer(c.ours, c.theirs), "ours=%d theirs=%d", c.ours, c.theirs)
	}
}

func trickleNode(t *testing.T, id state.NodeId) (*NodeHarness, *Trickle) {
	h := NewHarness(t, testCfg(id, state.ProtoTrickle))
	return h, h.StubTrickle()
}

func TestEqualTokenIsConsistent(t *testing.T) {
	h, tr := trickleNode(t, nodeC)
	assert.Equal(t, RxConsistent, tr.OnTokenReceived(h.S, nodeB, 0))
	h.GetActions().AssertContains(t, "TT_CONSISTENT")
	assert.Equal(t, uint8(0), h.S.Trickle.Token)
}

func TestNewerTokenIsAdopted(t *testing.T) {
	h, _ := trickleNode(t, nodeC)
	h.Token(nodeB, 3)
	assert.Equal(t, uint8(3), h.S.Trickle.Token)
	a := h.GetActions()
	a.AssertContains(t, "TT_INCONSISTENT")
	a.AssertNotContains(t, "TT_CONSISTENT")
}

func TestOlderTokenIsKept(t *testing.T) {
	h, tr := trickleNode(t, nodeC)
	h.S.Trickle.Token = 5
	assert.Equal(t, RxOlder, tr.OnTokenReceived(h.S, nodeB, 2))
	assert.Equal(t, uint8(5), h.S.Trickle.Token)
	h.GetActions().AssertContains(t, "TT_INCONSISTENT")
}

func TestTokenRollover(t *testing.T) {
	h, tr := trickleNode(t, nodeC)
	h.S.Trickle.Token = 200
	assert.Equal(t, RxNewer, tr.OnTokenReceived(h.S, nodeB, 5))
	assert.Equal(t, uint8(5), h.S.Trickle.Token)

	assert.Equal(t, RxOlder, tr.OnTokenReceived(h.S, nodeB, 200))
	assert.Equal(t, uint8(5), h.S.Trickle.Token)
}

func TestMalformedTokenDatagramIgnored(t *testing.T) {
	h, _ := trickleNode(t, nodeC)
	h.Frame(state.Frame{Src: nodeB, Port: state.PortTrickle, Payload: []byte{7, 7}})
	h.Frame(state.Frame{Src: nodeB, Port: state.PortTrickle})
	assert.Equal(t, uint8(0), h.S.Trickle.Token)
	assert.Empty(t, h.GetActions())
}

func TestSinkTracksToken(t *testing.T) {
	cfg := testCfg(sink, state.ProtoTrickle)
	cfg.Sink = true
	h := NewHarness(t, cfg)
	h.StubTrickle()
	h.Token(nodeB, 1)
	assert.Equal(t, uint8(1), h.S.Trickle.Token)
}

func TestSourceGeneratesUpToLimit(t *testing.T) {
	cfg := testCfg(nodeB, state.ProtoTrickle)
	cfg.Source = true
	cfg.Limit = 3
	h := NewHarness(t, cfg)
	h.StubTrickle()

	h.Advance(state.NewTokenInterval)
	assert.LessOrEqual(t, h.S.Trickle.Token, uint8(1))

	h.Advance(100 * state.NewTokenInterval)
	assert.Equal(t, uint8(3), h.S.Trickle.Token)
	a := h.GetActions()
	assert.Len(t, a.Only("TT_RESET"), 3)
}

func TestNonSourceNeverGenerates(t *testing.T) {
	h, _ := trickleNode(t, nodeB)
	h.Advance(100 * state.NewTokenInterval)
	assert.Equal(t, uint8(0), h.S.Trickle.Token)
	h.GetActions().AssertNotContains(t, "TT_RESET")
}

func TestLocalTokenRequiresSource(t *testing.T) {
	h, tr := trickleNode(t, nodeB)
	assert.ErrorIs(t, tr.OnLocalTokenGenerated(h.S, 1), ErrNotSource)
	assert.Equal(t, uint8(0), h.S.Trickle.Token)
}

func TestTrickleBroadcastsToken(t *testing.T) {
	h := NewHarness(t, testCfg(nodeB, state.ProtoTrickle))
	h.Advance(h.S.Trickle.Params.MinInterval())
	a := h.GetActions().Only("TOKEN")
	require.Len(t, a, 1)
	a.AssertContains(t, "TOKEN", state.BroadcastAddr, uint8(0))
}

func TestTrickleBacksOffWhenConsistent(t *testing.T) {
	h := NewHarness(t, testCfg(nodeB, state.ProtoTrickle))
	tr, _ := Get[*Trickle](h.S)
	imin := h.S.Trickle.Params.MinInterval()
	// intervals of 1, 2 and 4 imin
	h.Advance(7 * imin)
	assert.Equal(t, 8*imin, tr.Timer().Interval())
	assert.Len(t, h.GetActions().Only("TOKEN"), 3)

	// a newer token snaps it back
	h.Token(nodeC, 1)
	assert.Equal(t, imin, tr.Timer().Interval())
}

func TestTrickleSuppressedByRedundancy(t *testing.T) {
	h := NewHarness(t, testCfg(nodeB, state.ProtoTrickle))
	imin := h.S.Trickle.Params.MinInterval()
	// k = 2 consistent receptions before the transmission point
	h.Token(nodeC, 0)
	h.Token(nodeD, 0)
	h.Advance(imin)
	h.GetActions().AssertNotContains(t, "TOKEN")
}

func TestPrintSilencesNode(t *testing.T) {
	h := NewHarness(t, testCfg(nodeB))
	h.Announce(nodeC)
	h.Command("print")

	out := h.Console.String()
	assert.Contains(t, out, "Current token: 0")
	assert.Contains(t, out, "Node 2.0")
	assert.Contains(t, out, "3.0 last seen")
	assert.False(t, h.S.Radio.IsOn())
	assert.True(t, h.S.Trickle.Suppress)

	h.GetActions()
	h.Advance(time.Minute)
	a := h.GetActions()
	a.AssertNotContains(t, "TOKEN")
	a.AssertNotContains(t, "ANNOUNCE")

	// the radio no longer hears anything
	h.Token(nodeC, 9)
	assert.Equal(t, uint8(0), h.S.Trickle.Token)

	// nor do events that bypass the radio
	require.NoError(t, HandleEvent(h.S, AnnouncementReceived{From: nodeD}))
	require.NoError(t, HandleEvent(h.S, TokenReceived{From: nodeC, Value: 9}))
	assert.Equal(t, []state.NodeId{nodeC}, h.Neighbours())
	assert.Equal(t, uint8(0), h.S.Trickle.Token)
}
