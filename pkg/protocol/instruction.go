package protocol

// Opcode tags the kind of mutation an Instruction performs. The
// instruction set is intentionally small: the applier's contract (see
// internal/apply) only requires that instructions be applied in order
// inside one write transaction, not that this set be exhaustive.
type Opcode uint8

const (
	// OpCreateObject creates a row identified by Key in Table.
	OpCreateObject Opcode = iota + 1
	// OpEraseObject removes the row identified by Key from Table.
	OpEraseObject
	// OpSetField sets Field on the row identified by Key in Table to
	// the value selected by ValueKind.
	OpSetField
	// OpAddInteger adds IntValue to the integer currently stored in
	// Field on the row identified by Key in Table.
	OpAddInteger
	// OpClearTable removes every row from Table.
	OpClearTable
)

// ValueKind tags which of Instruction's IntValue, StrValue, BinValue or
// BoolValue fields carries the value (none, for ValueKindNull).
type ValueKind uint8

const (
	ValueKindNull ValueKind = iota
	ValueKindInt
	ValueKindString
	ValueKindBytes
	ValueKindBool
)

// Instruction is one mutation within a changeset, decoded by
// internal/changeset from the opaque wire payload and applied in order
// by internal/apply.
type Instruction struct {
	Op        Opcode
	Table     string
	Key       string
	Field     string
	ValueKind ValueKind
	IntValue  int64
	StrValue  string
	BinValue  []byte
	BoolValue bool
}
