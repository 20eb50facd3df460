package state

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/goccy/go-yaml"
)

// TopologyCfg describes an in-process network for simulation
type TopologyCfg struct {
	Nodes []LocalCfg `yaml:"nodes"`
	// Edges are radio links, one "a.b, c.d" pair per entry
	Edges []string `yaml:"edges"`
}

func ReadTopology(path string) (*TopologyCfg, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := struct {
		Nodes []yaml.MapSlice `yaml:"nodes"`
		Edges []string        `yaml:"edges"`
	}{}
	if err = yaml.Unmarshal(file, &raw); err != nil {
		return nil, err
	}
	topo := &TopologyCfg{Edges: raw.Edges}
	for _, n := range raw.Nodes {
		// apply each node on top of the defaults so omitted fields keep firmware values
		buf, err := yaml.Marshal(n)
		if err != nil {
			return nil, err
		}
		cfg := DefaultLocalCfg(NodeId{})
		if err = yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, err
		}
		topo.Nodes = append(topo.Nodes, cfg)
	}
	return topo, nil
}

func (t *TopologyCfg) Node(id NodeId) (*LocalCfg, bool) {
	idx := slices.IndexFunc(t.Nodes, func(cfg LocalCfg) bool {
		return cfg.Id == id
	})
	if idx == -1 {
		return nil, false
	}
	return &t.Nodes[idx], true
}

// Links parses Edges into node pairs
func (t *TopologyCfg) Links() ([]Pair[NodeId, NodeId], error) {
	links := make([]Pair[NodeId, NodeId], 0, len(t.Edges))
	for _, edge := range t.Edges {
		spl := strings.Split(edge, ",")
		if len(spl) != 2 {
			return nil, fmt.Errorf("invalid edge %q, expected two nodes", edge)
		}
		a, err := ParseNodeId(spl[0])
		if err != nil {
			return nil, err
		}
		b, err := ParseNodeId(spl[1])
		if err != nil {
			return nil, err
		}
		if a == b {
			return nil, fmt.Errorf("edge %q links a node to itself", edge)
		}
		for _, id := range []NodeId{a, b} {
			if _, ok := t.Node(id); !ok {
				return nil, fmt.Errorf("node %s not defined", id)
			}
		}
		links = append(links, Pair[NodeId, NodeId]{a, b})
	}
	return links, nil
}

func TopologyValidator(t *TopologyCfg) error {
	seen := make(map[NodeId]struct{})
	for i := range t.Nodes {
		if _, ok := seen[t.Nodes[i].Id]; ok {
			return fmt.Errorf("duplicate node %s", t.Nodes[i].Id)
		}
		seen[t.Nodes[i].Id] = struct{}{}
		if err := LocalConfigValidator(&t.Nodes[i]); err != nil {
			return err
		}
	}
	_, err := t.Links()
	return err
}
