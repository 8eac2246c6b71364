package ws

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/alanyoungcy/binaryoptions/internal/domain"
)

// Binary frame field numbers. The layout is the protobuf message
//
//	message Event {
//	  string type = 1;
//	  string signature = 2;
//	  uint64 slot = 3;
//	  bytes payload = 4;   // JSON
//	  sint64 time_unix_nano = 5;
//	}
const (
	fieldType      protowire.Number = 1
	fieldSignature protowire.Number = 2
	fieldSlot      protowire.Number = 3
	fieldPayload   protowire.Number = 4
	fieldTime      protowire.Number = 5
)

// EncodeEvent serializes ev as a protobuf wire-format message.
func EncodeEvent(ev domain.Event) []byte {
	b := make([]byte, 0, 64+len(ev.Payload))
	b = protowire.AppendTag(b, fieldType, protowire.BytesType)
	b = protowire.AppendString(b, ev.Type)
	if ev.Signature != "" {
		b = protowire.AppendTag(b, fieldSignature, protowire.BytesType)
		b = protowire.AppendString(b, ev.Signature)
	}
	if ev.Slot != 0 {
		b = protowire.AppendTag(b, fieldSlot, protowire.VarintType)
		b = protowire.AppendVarint(b, ev.Slot)
	}
	if len(ev.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, ev.Payload)
	}
	if !ev.Time.IsZero() {
		b = protowire.AppendTag(b, fieldTime, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(ev.Time.UnixNano()))
	}
	return b
}

// DecodeEvent parses a frame produced by EncodeEvent. Unknown fields are
// skipped.
func DecodeEvent(b []byte) (domain.Event, error) {
	var ev domain.Event
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return ev, fmt.Errorf("ws: decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldType && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(b)
			ev.Type = v
		case num == fieldSignature && typ == protowire.BytesType:
			var v string
			v, n = protowire.ConsumeString(b)
			ev.Signature = v
		case num == fieldSlot && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			ev.Slot = v
		case num == fieldPayload && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			ev.Payload = append([]byte(nil), v...)
		case num == fieldTime && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			ev.Time = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return ev, fmt.Errorf("ws: decode field %d: %w", num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return ev, nil
}
