package wire

import (
	"errors"
	"strconv"
)

// ErrHeaderParse is returned by every header-scanning failure: a missing
// delimiter, an unterminated or empty field, or numeric overflow. The
// scanner never distinguishes these at the type level: they are all
// grouped into a single "parse failed" outcome that leaves the cursor
// undefined for the caller.
var ErrHeaderParse = errors.New("wire: header field parse failed")

// isDigit reports whether b is an ASCII decimal digit.
func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// scanDigitRun returns the longest leading run of ASCII decimal digits
// in c and the cursor positioned just past it. An empty run is valid
// here; callers reject it when a value is required.
func scanDigitRun(c Cursor) (digits []byte, rest Cursor) {
	buf := c.Remaining()
	n := 0
	for n < len(buf) && isDigit(buf[n]) {
		n++
	}
	return buf[:n], c.Advance(n)
}

// ScanUintField reads a base-10 unsigned integer field terminated by
// delim, narrowing the result to bitSize bits. It fails on an empty
// field, a missing delim, or a value that overflows bitSize.
func ScanUintField(c Cursor, delim byte, bitSize int) (uint64, Cursor, error) {
	digits, rest := scanDigitRun(c)
	if len(digits) == 0 {
		return 0, c, ErrHeaderParse
	}
	value, err := strconv.ParseUint(string(digits), 10, bitSize)
	if err != nil {
		return 0, c, ErrHeaderParse
	}
	if rest.Empty() || rest.Peek() != delim {
		return 0, c, ErrHeaderParse
	}
	return value, rest.Advance(1), nil
}

// ScanUint64Field is ScanUintField with bitSize 64.
func ScanUint64Field(c Cursor, delim byte) (uint64, Cursor, error) {
	return ScanUintField(c, delim, 64)
}

// ScanIntField reads a base-10 field into an int of the given bit size,
// rejecting a leading '-' the way the header grammar does: every field
// in the wire format is non-negative.
func ScanIntField(c Cursor, delim byte, bitSize int) (int64, Cursor, error) {
	v, rest, err := ScanUintField(c, delim, bitSize-1)
	if err != nil {
		return 0, c, err
	}
	return int64(v), rest, nil
}

// ScanStringField reads a field up to the next space character,
// regardless of delim, matching the source grammar's string-field rule;
// it then expects delim (space, in every message this spec defines) to
// follow.
func ScanStringField(c Cursor, delim byte) (string, Cursor, error) {
	buf := c.Remaining()
	i := 0
	for i < len(buf) && buf[i] != ' ' {
		i++
	}
	if i == len(buf) {
		return "", c, ErrHeaderParse
	}
	rest := c.Advance(i)
	if rest.Peek() != delim {
		return "", c, ErrHeaderParse
	}
	return string(buf[:i]), rest.Advance(1), nil
}

// ScanMessageType reads the leading space-terminated message-type
// token that every message begins with.
func ScanMessageType(c Cursor) (string, Cursor, error) {
	return ScanStringField(c, ' ')
}
