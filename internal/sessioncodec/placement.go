package sessioncodec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"pkt.systems/tabkeeper/schema"
)

const (
	fieldX              protowire.Number = 1
	fieldY              protowire.Number = 2
	fieldWidth          protowire.Number = 3
	fieldHeight         protowire.Number = 4
	fieldMaximized      protowire.Number = 5
	fieldFullscreen     protowire.Number = 6
	fieldState          protowire.Number = 7
	fieldVirtualDesktop protowire.Number = 8
)

// marshalPlacement encodes window placement as a protobuf wire message so
// fields can be added without bumping the window record version.
func marshalPlacement(p schema.Placement, virtualDesktop int) []byte {
	var b []byte
	b = appendSint(b, fieldX, p.X)
	b = appendSint(b, fieldY, p.Y)
	b = appendSint(b, fieldWidth, p.Width)
	b = appendSint(b, fieldHeight, p.Height)
	b = appendBool(b, fieldMaximized, p.Maximized)
	b = appendBool(b, fieldFullscreen, p.Fullscreen)
	if p.State != nil {
		b = protowire.AppendTag(b, fieldState, protowire.BytesType)
		b = protowire.AppendBytes(b, p.State)
	}
	b = appendSint(b, fieldVirtualDesktop, virtualDesktop)
	if b == nil {
		b = []byte{}
	}
	return b
}

func appendSint(b []byte, num protowire.Number, v int) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(int64(v)))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

// unmarshalPlacement decodes a placement message, skipping unknown fields.
func unmarshalPlacement(b []byte) (schema.Placement, int, error) {
	var p schema.Placement
	virtualDesktop := 0
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return schema.Placement{}, 0, fmt.Errorf("%w: placement tag: %v", schema.ErrCorruptSession, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case typ == protowire.VarintType && num != fieldState:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return schema.Placement{}, 0, fmt.Errorf("%w: placement field %d: %v", schema.ErrCorruptSession, num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldX:
				p.X = int(protowire.DecodeZigZag(v))
			case fieldY:
				p.Y = int(protowire.DecodeZigZag(v))
			case fieldWidth:
				p.Width = int(protowire.DecodeZigZag(v))
			case fieldHeight:
				p.Height = int(protowire.DecodeZigZag(v))
			case fieldMaximized:
				p.Maximized = protowire.DecodeBool(v)
			case fieldFullscreen:
				p.Fullscreen = protowire.DecodeBool(v)
			case fieldVirtualDesktop:
				virtualDesktop = int(protowire.DecodeZigZag(v))
			}
		case typ == protowire.BytesType && num == fieldState:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return schema.Placement{}, 0, fmt.Errorf("%w: placement state: %v", schema.ErrCorruptSession, protowire.ParseError(n))
			}
			b = b[n:]
			p.State = append([]byte{}, v...)
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return schema.Placement{}, 0, fmt.Errorf("%w: placement field %d: %v", schema.ErrCorruptSession, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return p, virtualDesktop, nil
}
