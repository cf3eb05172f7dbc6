package changeset

import (
	"errors"
	"reflect"
	"testing"

	"github.com/i5heu/ouroboros-sync/pkg/protocol"
)

func Test_Decode_Encode_RoundTrip(t *testing.T) {
	instructions := []protocol.Instruction{
		{Op: protocol.OpCreateObject, Table: "users", Key: "u1", ValueKind: protocol.ValueKindNull},
		{Op: protocol.OpSetField, Table: "users", Key: "u1", Field: "name", ValueKind: protocol.ValueKindString, StrValue: "ada"},
		{Op: protocol.OpAddInteger, Table: "users", Key: "u1", Field: "logins", ValueKind: protocol.ValueKindInt, IntValue: -3},
		{Op: protocol.OpSetField, Table: "users", Key: "u1", Field: "active", ValueKind: protocol.ValueKindBool, BoolValue: true},
		{Op: protocol.OpSetField, Table: "users", Key: "u1", Field: "avatar", ValueKind: protocol.ValueKindBytes, BinValue: []byte{1, 2, 3}},
		{Op: protocol.OpEraseObject, Table: "users", Key: "u1"},
	}

	payload := Encode(instructions)

	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(decoded, instructions) {
		t.Fatalf("round trip mismatch:\n  got:  %+v\n  want: %+v", decoded, instructions)
	}
}

func Test_Decode_Empty(t *testing.T) {
	decoded, err := Decode(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("expected no instructions, got %d", len(decoded))
	}
}

func Test_Decode_TruncatedPayload(t *testing.T) {
	payload := Encode([]protocol.Instruction{
		{Op: protocol.OpClearTable, Table: "users"},
	})
	_, err := Decode(payload[:len(payload)-1])
	if err == nil {
		t.Fatal("expected error decoding truncated payload")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %T: %v", err, err)
	}
}

func Test_Decode_UnknownTopLevelField(t *testing.T) {
	_, err := Decode([]byte{0x11, 0x02, 0xab, 0xcd})
	if err == nil {
		t.Fatal("expected error decoding payload with unexpected top-level field")
	}
}
