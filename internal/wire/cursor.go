// Package wire implements the non-owning byte cursor, the typed header
// scanner, and the body framer that sit underneath internal/message's
// parser. Cursors and numeric fields work on views of the input; the
// allocations are the decompression buffer the body framer materializes
// and the string ScanStringField (and so ScanMessageType) returns, which
// is a copy of the token.
package wire

// Cursor is a non-owning view over a contiguous input buffer. Advancing
// a Cursor never copies; it only narrows the slice it holds.
type Cursor struct {
	buf []byte
}

// NewCursor wraps buf. The returned Cursor aliases buf; the caller must
// not mutate buf while the Cursor (or anything derived from it) is in
// use.
func NewCursor(buf []byte) Cursor {
	return Cursor{buf: buf}
}

// Remaining returns the unconsumed portion of the buffer.
func (c Cursor) Remaining() []byte {
	return c.buf
}

// Len reports how many bytes remain.
func (c Cursor) Len() int {
	return len(c.buf)
}

// Empty reports whether the cursor has been fully consumed.
func (c Cursor) Empty() bool {
	return len(c.buf) == 0
}

// Peek returns the next byte without consuming it. It panics if the
// cursor is empty; callers must check Empty first.
func (c Cursor) Peek() byte {
	return c.buf[0]
}

// Advance returns a new Cursor with the first n bytes consumed. It
// panics if n exceeds the remaining length.
func (c Cursor) Advance(n int) Cursor {
	return Cursor{buf: c.buf[n:]}
}
