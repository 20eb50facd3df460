package state

import (
	"errors"
	"fmt"
)

var ErrRadioOff = errors.New("radio is off")

// Frame is a single link layer transmission
type Frame struct {
	Src     NodeId
	Dst     NodeId // BroadcastAddr reaches every node in range
	Port    uint16
	Seq     uint32
	Payload []byte
}

func (f Frame) String() string {
	return fmt.Sprintf("%s -> %s port %d seq %d (%d bytes)", f.Src, f.Dst, f.Port, f.Seq, len(f.Payload))
}

// Link is the link layer underneath the radio
type Link interface {
	Send(f Frame) error
	Close() error
}

// FrameHandler receives inbound frames on the link's own goroutine
type FrameHandler func(f Frame)

// Radio gates all access to the link. It is owned by the dispatch goroutine.
type Radio struct {
	self NodeId
	link Link
	on   bool
	seq  uint32
}

func NewRadio(self NodeId, link Link) *Radio {
	return &Radio{self: self, link: link, on: true}
}

func (r *Radio) On()        { r.on = true }
func (r *Radio) Off()       { r.on = false }
func (r *Radio) IsOn() bool { return r.on }

func (r *Radio) Send(dst NodeId, port uint16, payload []byte) error {
	if !r.on {
		return ErrRadioOff
	}
	r.seq++
	return r.link.Send(Frame{
		Src:     r.self,
		Dst:     dst,
		Port:    port,
		Seq:     r.seq,
		Payload: payload,
	})
}

// Accept reports whether an inbound frame should be processed
func (r *Radio) Accept(f Frame) bool {
	if !r.on || f.Src == r.self {
		return false
	}
	return f.Dst.IsBroadcast() || f.Dst == r.self
}

func (r *Radio) Close() error {
	r.on = false
	return r.link.Close()
}
