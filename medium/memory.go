package medium

import (
	"math/rand/v2"
	"net"
	"slices"
	"sync"

	"github.com/encodeous/tpwsn/state"
)

// inboxSize bounds how many frames a node can have in flight before the radio drops them
const inboxSize = 256

// Network is an in-memory radio. Frames only reach nodes that share an edge with the sender.
type Network struct {
	mu    sync.RWMutex
	ports map[state.NodeId]*MemoryLink
	edges map[state.NodeId][]state.NodeId
	// PacketLoss is the probability that a single delivery is dropped
	PacketLoss float64
}

func NewNetwork() *Network {
	return &Network{
		ports: make(map[state.NodeId]*MemoryLink),
		edges: make(map[state.NodeId][]state.NodeId),
	}
}

func (n *Network) Connect(a, b state.NodeId) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !slices.Contains(n.edges[a], b) {
		n.edges[a] = append(n.edges[a], b)
	}
	if !slices.Contains(n.edges[b], a) {
		n.edges[b] = append(n.edges[b], a)
	}
}

func (n *Network) Disconnect(a, b state.NodeId) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edges[a] = slices.DeleteFunc(n.edges[a], func(id state.NodeId) bool { return id == b })
	n.edges[b] = slices.DeleteFunc(n.edges[b], func(id state.NodeId) bool { return id == a })
}

func (n *Network) InRange(id state.NodeId) []state.NodeId {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.edges[id])
}

// Attach plugs a node into the network. handler runs on a goroutine owned by the link.
func (n *Network) Attach(id state.NodeId, handler state.FrameHandler) *MemoryLink {
	l := &MemoryLink{
		net:     n,
		id:      id,
		handler: handler,
		inbox:   make(chan state.Frame, inboxSize),
		done:    make(chan struct{}),
	}
	n.mu.Lock()
	n.ports[id] = l
	n.mu.Unlock()
	l.wg.Add(1)
	go l.receive()
	return l
}

func (n *Network) deliver(f state.Frame) {
	n.mu.RLock()
	targets := make([]*MemoryLink, 0)
	for _, peer := range n.edges[f.Src] {
		if !f.Dst.IsBroadcast() && f.Dst != peer {
			continue
		}
		if l, ok := n.ports[peer]; ok {
			targets = append(targets, l)
		}
	}
	loss := n.PacketLoss
	n.mu.RUnlock()

	for _, l := range targets {
		if loss > 0 && rand.Float64() < loss {
			continue
		}
		cp := f
		cp.Payload = slices.Clone(f.Payload)
		l.enqueue(cp)
	}
}

type MemoryLink struct {
	net     *Network
	id      state.NodeId
	handler state.FrameHandler
	inbox   chan state.Frame
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

func (l *MemoryLink) Send(f state.Frame) error {
	select {
	case <-l.done:
		return net.ErrClosed
	default:
	}
	l.net.deliver(f)
	return nil
}

func (l *MemoryLink) enqueue(f state.Frame) {
	select {
	case <-l.done:
	case l.inbox <- f:
	default:
		// inbox full, the frame is lost like any other collision
	}
}

func (l *MemoryLink) receive() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case f := <-l.inbox:
			l.handler(f)
		}
	}
}

func (l *MemoryLink) Close() error {
	l.once.Do(func() {
		close(l.done)
		l.net.mu.Lock()
		if l.net.ports[l.id] == l {
			delete(l.net.ports, l.id)
		}
		l.net.mu.Unlock()
	})
	l.wg.Wait()
	return nil
}
