package medium

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/encodeous/tpwsn/state"
	"github.com/gaissmai/bart"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/net/ipv6"
)

type dedupKey struct {
	src state.NodeId
	seq uint32
}

// UDPLink emulates a shared radio channel with a link-local IPv6 multicast group.
// Every frame is multicast; receivers filter on the frame's destination.
type UDPLink struct {
	log     *slog.Logger
	conn    *ipv6.PacketConn
	group   *net.UDPAddr
	allow   bart.Table[struct{}]
	dedup   *ttlcache.Cache[dedupKey, struct{}]
	handler state.FrameHandler
	wg      sync.WaitGroup
	once    sync.Once
	// received counts admitted frames, only touched by the receive goroutine
	received int
}

func ListenUDP(cfg state.UDPCfg, log *slog.Logger, handler state.FrameHandler) (*UDPLink, error) {
	group := cfg.Group
	if !group.IsValid() {
		group = netip.MustParseAddr("ff02::1")
	}
	port := cfg.Port
	if port == 0 {
		port = state.DefaultUDPPort
	}

	var ifi *net.Interface
	if cfg.Interface != "" {
		var err error
		ifi, err = net.InterfaceByName(cfg.Interface)
		if err != nil {
			return nil, fmt.Errorf("failed to find interface %s: %w", cfg.Interface, err)
		}
	}

	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf("[::]:%d", port))
	if err != nil {
		return nil, err
	}
	p := ipv6.NewPacketConn(pc)
	groupAddr := &net.UDPAddr{IP: group.AsSlice(), Port: int(port)}
	if ifi != nil {
		groupAddr.Zone = ifi.Name
		if err = p.SetMulticastInterface(ifi); err != nil {
			_ = pc.Close()
			return nil, err
		}
	}
	if err = p.JoinGroup(ifi, &net.UDPAddr{IP: group.AsSlice()}); err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("failed to join %s: %w", group, err)
	}
	// several nodes may share one host
	if err = p.SetMulticastLoopback(true); err != nil {
		_ = pc.Close()
		return nil, err
	}
	if err = p.SetMulticastHopLimit(1); err != nil {
		_ = pc.Close()
		return nil, err
	}

	l := &UDPLink{
		log:     log,
		conn:    p,
		group:   groupAddr,
		handler: handler,
		dedup:   newDedupCache(),
	}
	l.allowPrefixes(cfg.Allow)

	l.wg.Add(1)
	go l.receive()
	return l, nil
}

func (l *UDPLink) Send(f state.Frame) error {
	_, err := l.conn.WriteTo(MarshalFrame(f), nil, l.group)
	return err
}

func (l *UDPLink) receive() {
	defer l.wg.Done()
	buf := make([]byte, 2048)
	for {
		n, _, src, err := l.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn("udp read failed", "error", err)
			continue
		}
		udpSrc, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}
		f, ok := l.admit(udpSrc.AddrPort().Addr().Unmap().WithZone(""), buf[:n])
		if !ok {
			continue
		}
		l.handler(f)
	}
}

func newDedupCache() *ttlcache.Cache[dedupKey, struct{}] {
	return ttlcache.New[dedupKey, struct{}](
		ttlcache.WithTTL[dedupKey, struct{}](state.FrameDedupTTL),
		ttlcache.WithDisableTouchOnHit[dedupKey, struct{}](),
	)
}

func (l *UDPLink) allowPrefixes(allow []netip.Prefix) {
	if len(allow) == 0 {
		allow = []netip.Prefix{netip.MustParsePrefix("fe80::/10")}
	}
	for _, prefix := range allow {
		l.allow.Insert(prefix.Masked(), struct{}{})
	}
}

// admit filters a datagram by source address, decodes it and drops duplicates
func (l *UDPLink) admit(addr netip.Addr, b []byte) (state.Frame, bool) {
	if !l.allow.Contains(addr) {
		l.log.Debug("dropped datagram from outside allowed prefixes", "src", addr)
		return state.Frame{}, false
	}
	f, err := UnmarshalFrame(b)
	if err != nil {
		l.log.Debug("dropped datagram", "src", addr, "error", err)
		return state.Frame{}, false
	}
	key := dedupKey{src: f.Src, seq: f.Seq}
	if l.dedup.Has(key) {
		return state.Frame{}, false
	}
	l.dedup.Set(key, struct{}{}, ttlcache.DefaultTTL)
	l.received++
	if l.received%256 == 0 {
		l.dedup.DeleteExpired()
	}
	return f, true
}

func (l *UDPLink) Close() error {
	var err error
	l.once.Do(func() {
		err = l.conn.Close()
		l.wg.Wait()
		l.dedup.DeleteAll()
	})
	return err
}
