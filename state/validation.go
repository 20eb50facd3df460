package state

import (
	"fmt"
)

func LocalConfigValidator(cfg *LocalCfg) error {
	if cfg.Id.IsBroadcast() {
		return fmt.Errorf("node id %s is reserved for broadcast", cfg.Id)
	}
	if len(cfg.Protocols) == 0 {
		return fmt.Errorf("node %s must run at least one protocol", cfg.Id)
	}
	for _, p := range cfg.Protocols {
		if p != ProtoRmh && p != ProtoTrickle {
			return fmt.Errorf("unknown protocol %q", p)
		}
	}
	if err := TrickleParamsValidator(cfg.Trickle); err != nil {
		return err
	}
	if cfg.Limit < 0 || cfg.Limit > 255 {
		return fmt.Errorf("limit %d is outside the token range", cfg.Limit)
	}
	if cfg.UDP.Group.IsValid() && !cfg.UDP.Group.IsMulticast() {
		return fmt.Errorf("udp.group %s is not a multicast address", cfg.UDP.Group)
	}
	return nil
}

func TrickleParamsValidator(p TrickleParams) error {
	if p.IMin <= 0 {
		return fmt.Errorf("trickle imin must be positive, got %d", p.IMin)
	}
	if p.IMax < 0 || p.IMax > 32 {
		return fmt.Errorf("trickle imax must be within [0, 32] doublings, got %d", p.IMax)
	}
	if p.K < 0 {
		return fmt.Errorf("trickle k must not be negative, got %d", p.K)
	}
	return nil
}
