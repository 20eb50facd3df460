package medium

import (
	"errors"
	"fmt"

	"github.com/encodeous/tpwsn/state"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldSrc     protowire.Number = 1
	fieldDst     protowire.Number = 2
	fieldPort    protowire.Number = 3
	fieldSeq     protowire.Number = 4
	fieldPayload protowire.Number = 5
)

var ErrMalformedFrame = errors.New("malformed frame")

func MarshalFrame(f state.Frame) []byte {
	b := make([]byte, 0, 24+len(f.Payload))
	b = protowire.AppendTag(b, fieldSrc, protowire.BytesType)
	b = protowire.AppendBytes(b, f.Src[:])
	b = protowire.AppendTag(b, fieldDst, protowire.BytesType)
	b = protowire.AppendBytes(b, f.Dst[:])
	b = protowire.AppendTag(b, fieldPort, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Port))
	b = protowire.AppendTag(b, fieldSeq, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Seq))
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, f.Payload)
	return b
}

func UnmarshalFrame(b []byte) (state.Frame, error) {
	var f state.Frame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return f, fmt.Errorf("%w: %w", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case (num == fieldSrc || num == fieldDst) && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				if len(v) != 2 {
					return f, fmt.Errorf("%w: address of length %d", ErrMalformedFrame, len(v))
				}
				if num == fieldSrc {
					copy(f.Src[:], v)
				} else {
					copy(f.Dst[:], v)
				}
			}
		case (num == fieldPort || num == fieldSeq) && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			if num == fieldPort {
				f.Port = uint16(v)
			} else {
				f.Seq = uint32(v)
			}
		case num == fieldPayload && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			f.Payload = append([]byte(nil), v...)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return f, fmt.Errorf("%w: %w", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return f, nil
}
