package state

import (
	"net/netip"
	"os"
	"slices"

	"github.com/goccy/go-yaml"
)

type Protocol string

const (
	ProtoRmh     Protocol = "rmh"
	ProtoTrickle Protocol = "trickle"
)

type UDPCfg struct {
	Interface string         `yaml:"interface,omitempty"` // interface to join the multicast group on
	Group     netip.Addr     `yaml:"group,omitempty"`     // link-local multicast group, ff02::1 if unset
	Port      uint16         `yaml:"port,omitempty"`
	Allow     []netip.Prefix `yaml:"allow,omitempty"` // datagrams from outside these prefixes are dropped, fe80::/10 if unset
}

// LocalCfg represents local node-level configuration
type LocalCfg struct {
	Id            NodeId        `yaml:"id"`
	Protocols     []Protocol    `yaml:"protocols"`
	Source        bool          `yaml:"source,omitempty"` // initial role at power-on
	Sink          bool          `yaml:"sink,omitempty"`
	Trickle       TrickleParams `yaml:"trickle"`
	Limit         int64         `yaml:"limit"`          // maximum token value a source generates
	Seed          uint64        `yaml:"seed,omitempty"` // random source seed, derived from the id if zero
	LogPath       string        `yaml:"log_path,omitempty"`
	LogMaxSizeMb  int           `yaml:"log_max_size_mb,omitempty"`
	LogMaxBackups int           `yaml:"log_max_backups,omitempty"`
	UDP           UDPCfg        `yaml:"udp,omitempty"`
	MetricsAddr   string        `yaml:"metrics_addr,omitempty"` // serve prometheus metrics here if set
	ControlSocket string        `yaml:"control_socket,omitempty"`
}

func DefaultLocalCfg(id NodeId) LocalCfg {
	return LocalCfg{
		Id:        id,
		Protocols: []Protocol{ProtoRmh, ProtoTrickle},
		Trickle: TrickleParams{
			IMin: DefaultIMin,
			IMax: DefaultIMax,
			K:    DefaultK,
		},
		Limit: DefaultLimit,
		UDP: UDPCfg{
			Group: netip.MustParseAddr("ff02::1"),
			Port:  DefaultUDPPort,
			Allow: []netip.Prefix{netip.MustParsePrefix("fe80::/10")},
		},
	}
}

func (c *LocalCfg) Runs(p Protocol) bool {
	return slices.Contains(c.Protocols, p)
}

// RandSeed gives nodes distinct but reproducible random streams
func (c *LocalCfg) RandSeed() uint64 {
	if c.Seed != 0 {
		return c.Seed
	}
	return uint64(c.Id[0])<<8 | uint64(c.Id[1])
}

func ReadLocalConfig(path string) (*LocalCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultLocalCfg(NodeId{})
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}
