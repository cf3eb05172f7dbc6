package wire

import (
	"errors"
	"testing"
)

func Test_ScanUint64Field(t *testing.T) {
	c := NewCursor([]byte("42 7"))
	v, rest, err := ScanUint64Field(c, ' ')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
	if string(rest.Remaining()) != "7" {
		t.Fatalf("expected remaining %q, got %q", "7", rest.Remaining())
	}
}

func Test_ScanUint64Field_MissingDelimiter(t *testing.T) {
	c := NewCursor([]byte("42"))
	_, _, err := ScanUint64Field(c, ' ')
	if !errors.Is(err, ErrHeaderParse) {
		t.Fatalf("expected ErrHeaderParse, got %v", err)
	}
}

func Test_ScanUint64Field_EmptyField(t *testing.T) {
	c := NewCursor([]byte(" 7"))
	_, _, err := ScanUint64Field(c, ' ')
	if !errors.Is(err, ErrHeaderParse) {
		t.Fatalf("expected ErrHeaderParse on empty field, got %v", err)
	}
}

func Test_ScanUint64Field_NonNumeric(t *testing.T) {
	c := NewCursor([]byte("notanumber 7"))
	_, _, err := ScanUint64Field(c, ' ')
	if !errors.Is(err, ErrHeaderParse) {
		t.Fatalf("expected ErrHeaderParse, got %v", err)
	}
}

func Test_ScanUintField_OverflowOnNarrowing(t *testing.T) {
	c := NewCursor([]byte("256 "))
	_, _, err := ScanUintField(c, ' ', 8)
	if !errors.Is(err, ErrHeaderParse) {
		t.Fatalf("expected overflow to fail as ErrHeaderParse, got %v", err)
	}
}

func Test_ScanStringField(t *testing.T) {
	c := NewCursor([]byte("download 1"))
	s, rest, err := ScanStringField(c, ' ')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != "download" {
		t.Fatalf("expected %q, got %q", "download", s)
	}
	if string(rest.Remaining()) != "1" {
		t.Fatalf("expected remaining %q, got %q", "1", rest.Remaining())
	}
}

func Test_ScanMessageType(t *testing.T) {
	c := NewCursor([]byte("ident 42 7 13\n"))
	msgType, rest, err := ScanMessageType(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgType != "ident" {
		t.Fatalf("expected %q, got %q", "ident", msgType)
	}
	if string(rest.Remaining()) != "42 7 13\n" {
		t.Fatalf("unexpected remainder: %q", rest.Remaining())
	}
}

func Test_HeaderLine_Variadic(t *testing.T) {
	c := NewCursor([]byte("1 2 3\n"))
	a, c, err := ScanUint64Field(c, ' ')
	if err != nil {
		t.Fatalf("field a: %v", err)
	}
	b, c, err := ScanUint64Field(c, ' ')
	if err != nil {
		t.Fatalf("field b: %v", err)
	}
	d, c, err := ScanUint64Field(c, '\n')
	if err != nil {
		t.Fatalf("field d: %v", err)
	}
	if a != 1 || b != 2 || d != 3 {
		t.Fatalf("expected 1,2,3 got %d,%d,%d", a, b, d)
	}
	if !c.Empty() {
		t.Fatalf("expected cursor exhausted, remaining %q", c.Remaining())
	}
}
