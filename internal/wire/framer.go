package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ulikunitz/xz/lzma"
)

// ErrBodyTooShort is returned when the declared body size exceeds the
// bytes remaining in the cursor.
var ErrBodyTooShort = errors.New("wire: declared body size exceeds available bytes")

// ErrDecompression is returned when the decompressor rejects the
// compressed payload or produces fewer bytes than declared.
var ErrDecompression = errors.New("wire: decompression failed")

// Framed is the result of framing one message body: the contiguous
// uncompressed body view, and the cursor positioned just past the body.
type Framed struct {
	Body []byte
	Rest Cursor
}

// FrameBody materializes the body declared by (compressedSize,
// uncompressedSize, isCompressed) from the head of c.
//
// When isCompressed is false, Body aliases c's underlying buffer
// directly and no allocation occurs. When isCompressed is true, Body
// aliases a freshly allocated buffer of exactly uncompressedSize bytes
// that outlives this call only as long as the caller keeps a reference
// to it. Callers must not let Body escape the lifetime of the message
// that owns it.
func FrameBody(c Cursor, compressedSize, uncompressedSize uint64, isCompressed bool, logger *slog.Logger) (Framed, error) {
	if isCompressed {
		return frameCompressedBody(c, compressedSize, uncompressedSize, logger)
	}
	return frameUncompressedBody(c, uncompressedSize, logger)
}

func frameUncompressedBody(c Cursor, uncompressedSize uint64, logger *slog.Logger) (Framed, error) {
	if uint64(c.Len()) < uncompressedSize {
		logger.Error("message body is bigger than available bytes",
			"declared", uncompressedSize, "available", c.Len())
		return Framed{}, ErrBodyTooShort
	}
	n := int(uncompressedSize)
	return Framed{
		Body: c.Remaining()[:n],
		Rest: c.Advance(n),
	}, nil
}

func frameCompressedBody(c Cursor, compressedSize, uncompressedSize uint64, logger *slog.Logger) (Framed, error) {
	if uint64(c.Len()) < compressedSize {
		logger.Error("compressed message body is bigger than available bytes",
			"declared", compressedSize, "available", c.Len())
		return Framed{}, ErrBodyTooShort
	}
	n := int(compressedSize)
	compressed := c.Remaining()[:n]

	r, err := lzma.NewReader(bytes.NewReader(compressed))
	if err != nil {
		logger.Error("error constructing decompressor", "error", err)
		return Framed{}, fmt.Errorf("%w: %v", ErrDecompression, err)
	}

	buf := make([]byte, uncompressedSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		logger.Error("error decompressing message body", "error", err)
		return Framed{}, fmt.Errorf("%w: %v", ErrDecompression, err)
	}

	return Framed{
		Body: buf,
		Rest: c.Advance(n),
	}, nil
}
