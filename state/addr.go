package state

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeId is a two byte link layer address, written as "a.b"
type NodeId [2]byte

// BroadcastAddr is the null address; frames sent to it reach every node in range
var BroadcastAddr = NodeId{}

func ParseNodeId(s string) (NodeId, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 2 {
		return NodeId{}, fmt.Errorf("%q is not a valid node address, expected a.b", s)
	}
	var id NodeId
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return NodeId{}, fmt.Errorf("%q is not a valid node address: %w", s, err)
		}
		id[i] = byte(v)
	}
	return id, nil
}

func MustParseNodeId(s string) NodeId {
	id, err := ParseNodeId(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (n NodeId) String() string {
	return fmt.Sprintf("%d.%d", n[0], n[1])
}

func (n NodeId) IsBroadcast() bool {
	return n == BroadcastAddr
}

func (n NodeId) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *NodeId) UnmarshalText(text []byte) error {
	id, err := ParseNodeId(string(text))
	if err != nil {
		return err
	}
	*n = id
	return nil
}
