package core

import (
	"errors"
	"fmt"

	"github.com/encodeous/tpwsn/state"
	"google.golang.org/protobuf/encoding/protowire"
)

var ErrMalformedPayload = errors.New("malformed payload")

type Announcement struct {
	Id    uint16
	Value uint16
}

type Relay struct {
	Originator state.NodeId
	Dest       state.NodeId
	Hops       uint8
	Data       []byte
}

func (a Announcement) Marshal() []byte {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(a.Id))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(a.Value))
}

func UnmarshalAnnouncement(b []byte) (Announcement, error) {
	var a Announcement
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if typ != protowire.VarintType {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		v, n := protowire.ConsumeVarint(b)
		switch num {
		case 1:
			a.Id = uint16(v)
		case 2:
			a.Value = uint16(v)
		}
		return n
	})
	return a, err
}

func (r Relay) Marshal() []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Originator[:])
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, r.Dest[:])
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.Hops))
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	return protowire.AppendBytes(b, r.Data)
}

func UnmarshalRelay(b []byte) (Relay, error) {
	var r Relay
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case (num == 1 || num == 2) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 && len(v) != 2 {
				return -1
			}
			if num == 1 {
				copy(r.Originator[:], v)
			} else {
				copy(r.Dest[:], v)
			}
			return n
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			r.Hops = uint8(v)
			return n
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			r.Data = append([]byte(nil), v...)
			return n
		}
		return protowire.ConsumeFieldValue(num, typ, b)
	})
	return r, err
}

func consumeFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %w", ErrMalformedPayload, protowire.ParseError(n))
		}
		b = b[n:]
		n = field(num, typ, b)
		if n < 0 {
			return ErrMalformedPayload
		}
		b = b[n:]
	}
	return nil
}
