package state

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocalConfigValidator_Invalid(t *testing.T) {
	cases := map[string]func(c *LocalCfg){
		"broadcast id":     func(c *LocalCfg) { c.Id = BroadcastAddr },
		"no protocols":     func(c *LocalCfg) { c.Protocols = nil },
		"unknown protocol": func(c *LocalCfg) { c.Protocols = []Protocol{"flood"} },
		"zero imin":        func(c *LocalCfg) { c.Trickle.IMin = 0 },
		"negative k":       func(c *LocalCfg) { c.Trickle.K = -1 },
		"huge imax":        func(c *LocalCfg) { c.Trickle.IMax = 40 },
		"limit too large":  func(c *LocalCfg) { c.Limit = 256 },
		"negative limit":   func(c *LocalCfg) { c.Limit = -1 },
		"unicast group":    func(c *LocalCfg) { c.UDP.Group = netip.MustParseAddr("fe80::1") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultLocalCfg(NodeId{2, 0})
			mutate(&cfg)
			assert.Error(t, LocalConfigValidator(&cfg))
		})
	}
}

func TestTrickleParamsValidator(t *testing.T) {
	assert.NoError(t, TrickleParamsValidator(TrickleParams{IMin: 1, IMax: 0, K: 0}))
	assert.NoError(t, TrickleParamsValidator(TrickleParams{IMin: 16, IMax: 10, K: 2}))
	assert.Error(t, TrickleParamsValidator(TrickleParams{IMin: -3, IMax: 10, K: 2}))
}
