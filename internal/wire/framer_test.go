package wire

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/ulikunitz/xz/lzma"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_FrameBody_Uncompressed(t *testing.T) {
	body := []byte("hello world")
	c := NewCursor(append(append([]byte{}, body...), []byte("trailing")...))

	framed, err := FrameBody(c, 0, uint64(len(body)), false, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(framed.Body, body) {
		t.Fatalf("expected body %q, got %q", body, framed.Body)
	}
	if string(framed.Rest.Remaining()) != "trailing" {
		t.Fatalf("expected remainder %q, got %q", "trailing", framed.Rest.Remaining())
	}
}

func Test_FrameBody_Uncompressed_TooShort(t *testing.T) {
	c := NewCursor([]byte("short"))
	_, err := FrameBody(c, 0, 100, false, discardLogger())
	if err != ErrBodyTooShort {
		t.Fatalf("expected ErrBodyTooShort, got %v", err)
	}
}

func Test_FrameBody_Compressed_RoundTrip(t *testing.T) {
	original := []byte("the quick brown fox jumps over the lazy dog")

	var compressedBuf bytes.Buffer
	w, err := lzma.NewWriter(&compressedBuf)
	if err != nil {
		t.Fatalf("constructing compressor: %v", err)
	}
	if _, err := w.Write(original); err != nil {
		t.Fatalf("compressing: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing compressor: %v", err)
	}

	c := NewCursor(append(append([]byte{}, compressedBuf.Bytes()...), []byte("trailing")...))

	framed, err := FrameBody(c, uint64(compressedBuf.Len()), uint64(len(original)), true, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(framed.Body, original) {
		t.Fatalf("expected decompressed body %q, got %q", original, framed.Body)
	}
	if string(framed.Rest.Remaining()) != "trailing" {
		t.Fatalf("expected remainder %q, got %q", "trailing", framed.Rest.Remaining())
	}

	// Decompressing the same compressed bytes twice must be idempotent.
	framedAgain, err := FrameBody(NewCursor(compressedBuf.Bytes()), uint64(compressedBuf.Len()), uint64(len(original)), true, discardLogger())
	if err != nil {
		t.Fatalf("unexpected error on second decompression: %v", err)
	}
	if !bytes.Equal(framedAgain.Body, original) {
		t.Fatalf("second decompression diverged: %q", framedAgain.Body)
	}
}

func Test_FrameBody_Compressed_TooShort(t *testing.T) {
	c := NewCursor([]byte("short"))
	_, err := FrameBody(c, 100, 200, true, discardLogger())
	if err != ErrBodyTooShort {
		t.Fatalf("expected ErrBodyTooShort, got %v", err)
	}
}
