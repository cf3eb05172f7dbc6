// Package changeset implements the Changeset Decoder: it turns an
// opaque byte payload into an ordered list of mutation instructions.
// Decoding is pure and deterministic. It has no side effects and never
// touches the database.
//
// The wire schema is a sequence of length-delimited instruction records
// built from google.golang.org/protobuf/encoding/protowire's tag/varint
// primitives rather than a generated protobuf message, since no .proto
// definition for this payload exists anywhere in the codebase.
package changeset

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/i5heu/ouroboros-sync/pkg/protocol"
)

// Field numbers within one encoded Instruction record.
const (
	fieldOp        protowire.Number = 1
	fieldTable     protowire.Number = 2
	fieldKey       protowire.Number = 3
	fieldField     protowire.Number = 4
	fieldValueKind protowire.Number = 5
	fieldIntValue  protowire.Number = 6
	fieldStrValue  protowire.Number = 7
	fieldBinValue  protowire.Number = 8
	fieldBoolValue protowire.Number = 9

	// instructionNumber is the top-level field number each instruction
	// record is tagged with inside a changeset payload.
	instructionNumber protowire.Number = 1
)

// DecodeError reports that a changeset payload violates the binary
// instruction schema.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("changeset: decode failed at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ErrTruncated is wrapped by DecodeError when the payload ends in the
// middle of a record.
var ErrTruncated = errors.New("truncated instruction record")

// Decode parses payload into an ordered instruction list. Decode never
// mutates payload and never retains a reference to it: every string
// and byte field is copied out.
func Decode(payload []byte) ([]protocol.Instruction, error) {
	var out []protocol.Instruction
	b := payload
	consumed := 0
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			err := protowire.ParseError(n)
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = ErrTruncated
			}
			return nil, &DecodeError{Offset: consumed, Err: err}
		}
		if num != instructionNumber || typ != protowire.BytesType {
			return nil, &DecodeError{Offset: consumed, Err: fmt.Errorf("unexpected field %d type %d", num, typ)}
		}
		b = b[n:]
		consumed += n

		rec, n := protowire.ConsumeBytes(b)
		if n < 0 {
			err := protowire.ParseError(n)
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = ErrTruncated
			}
			return nil, &DecodeError{Offset: consumed, Err: err}
		}
		b = b[n:]
		consumed += n

		inst, err := decodeInstruction(rec)
		if err != nil {
			return nil, &DecodeError{Offset: consumed, Err: err}
		}
		out = append(out, inst)
	}
	return out, nil
}

func decodeInstruction(rec []byte) (protocol.Instruction, error) {
	var inst protocol.Instruction
	b := rec
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protocol.Instruction{}, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case fieldOp:
			v, n := consumeVarintField(b, typ)
			if n < 0 {
				return protocol.Instruction{}, protowire.ParseError(n)
			}
			inst.Op = protocol.Opcode(v)
			b = b[n:]
		case fieldTable:
			v, n := consumeBytesField(b, typ)
			if n < 0 {
				return protocol.Instruction{}, protowire.ParseError(n)
			}
			inst.Table = string(v)
			b = b[n:]
		case fieldKey:
			v, n := consumeBytesField(b, typ)
			if n < 0 {
				return protocol.Instruction{}, protowire.ParseError(n)
			}
			inst.Key = string(v)
			b = b[n:]
		case fieldField:
			v, n := consumeBytesField(b, typ)
			if n < 0 {
				return protocol.Instruction{}, protowire.ParseError(n)
			}
			inst.Field = string(v)
			b = b[n:]
		case fieldValueKind:
			v, n := consumeVarintField(b, typ)
			if n < 0 {
				return protocol.Instruction{}, protowire.ParseError(n)
			}
			inst.ValueKind = protocol.ValueKind(v)
			b = b[n:]
		case fieldIntValue:
			v, n := consumeVarintField(b, typ)
			if n < 0 {
				return protocol.Instruction{}, protowire.ParseError(n)
			}
			inst.IntValue = protowire.DecodeZigZag(v)
			b = b[n:]
		case fieldStrValue:
			v, n := consumeBytesField(b, typ)
			if n < 0 {
				return protocol.Instruction{}, protowire.ParseError(n)
			}
			inst.StrValue = string(v)
			b = b[n:]
		case fieldBinValue:
			v, n := consumeBytesField(b, typ)
			if n < 0 {
				return protocol.Instruction{}, protowire.ParseError(n)
			}
			inst.BinValue = append([]byte(nil), v...)
			b = b[n:]
		case fieldBoolValue:
			v, n := consumeVarintField(b, typ)
			if n < 0 {
				return protocol.Instruction{}, protowire.ParseError(n)
			}
			inst.BoolValue = v != 0
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protocol.Instruction{}, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return inst, nil
}

func consumeBytesField(b []byte, typ protowire.Type) ([]byte, int) {
	if typ != protowire.BytesType {
		return nil, -1
	}
	return protowire.ConsumeBytes(b)
}

func consumeVarintField(b []byte, typ protowire.Type) (uint64, int) {
	if typ != protowire.VarintType {
		return 0, -1
	}
	return protowire.ConsumeVarint(b)
}

// Encode is the inverse of Decode. It is used by tests to check the
// round-trip property of encoding followed by decoding, and by anything
// that needs to construct a changeset payload.
func Encode(instructions []protocol.Instruction) []byte {
	var out []byte
	for _, inst := range instructions {
		rec := encodeInstruction(inst)
		out = protowire.AppendTag(out, instructionNumber, protowire.BytesType)
		out = protowire.AppendBytes(out, rec)
	}
	return out
}

func encodeInstruction(inst protocol.Instruction) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldOp, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(inst.Op))

	if inst.Table != "" {
		b = protowire.AppendTag(b, fieldTable, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(inst.Table))
	}
	if inst.Key != "" {
		b = protowire.AppendTag(b, fieldKey, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(inst.Key))
	}
	if inst.Field != "" {
		b = protowire.AppendTag(b, fieldField, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(inst.Field))
	}

	b = protowire.AppendTag(b, fieldValueKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(inst.ValueKind))

	switch inst.ValueKind {
	case protocol.ValueKindInt:
		b = protowire.AppendTag(b, fieldIntValue, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(inst.IntValue))
	case protocol.ValueKindString:
		b = protowire.AppendTag(b, fieldStrValue, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(inst.StrValue))
	case protocol.ValueKindBytes:
		b = protowire.AppendTag(b, fieldBinValue, protowire.BytesType)
		b = protowire.AppendBytes(b, inst.BinValue)
	case protocol.ValueKindBool:
		b = protowire.AppendTag(b, fieldBoolValue, protowire.VarintType)
		v := uint64(0)
		if inst.BoolValue {
			v = 1
		}
		b = protowire.AppendVarint(b, v)
	}

	return b
}
