// Package signal converts connection descriptors to and from the compact
// text blobs that users copy between the two peers by hand.
package signal

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/zlib"
)

// Decode stages, reported in DecodeError.Stage.
const (
	StageAlphabet   = "alphabet"
	StageStream     = "stream"
	StageUTF8       = "utf8"
	StageDescriptor = "descriptor"
)

// ErrDecode is matched by every *DecodeError via errors.Is.
var ErrDecode = errors.New("malformed signaling blob")

// DecodeError reports a blob that could not be turned back into text.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("malformed signaling blob (%s)", e.Stage)
	}
	return fmt.Sprintf("malformed signaling blob (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// blobEncoding is standard base64 with padding. It is the only alphabet
// Encode produces and Decode accepts.
var blobEncoding = base64.StdEncoding.Strict()

// Encode compresses text with zlib at best compression and returns it as
// standard base64. It never fails; any string (including "") is accepted.
func Encode(text string) string {
	var buf bytes.Buffer

	// NewWriterLevel only fails on an invalid level.
	zw, _ := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	// Writes into a bytes.Buffer cannot fail.
	_, _ = zw.Write([]byte(text))
	_ = zw.Close()

	return blobEncoding.EncodeToString(buf.Bytes())
}

// Decode reverses Encode. The whole input must be a single well-formed zlib
// stream in base64; any deviation yields a *DecodeError and no text.
func Decode(blob string) (string, error) {
	// encoding/base64 silently skips '\r' and '\n', so the alphabet is
	// checked up front.
	if !IsBlobAlphabet(blob) {
		return "", &DecodeError{Stage: StageAlphabet, Err: errors.New("character outside base64 alphabet")}
	}

	raw, err := blobEncoding.DecodeString(blob)
	if err != nil {
		return "", &DecodeError{Stage: StageAlphabet, Err: err}
	}

	src := bytes.NewReader(raw)
	zr, err := zlib.NewReader(src)
	if err != nil {
		return "", &DecodeError{Stage: StageStream, Err: err}
	}
	defer zr.Close()

	text, err := io.ReadAll(zr)
	if err != nil {
		return "", &DecodeError{Stage: StageStream, Err: err}
	}
	if src.Len() > 0 {
		return "", &DecodeError{Stage: StageStream, Err: fmt.Errorf("%d trailing bytes after stream", src.Len())}
	}

	if !utf8.Valid(text) {
		return "", &DecodeError{Stage: StageUTF8, Err: errors.New("decompressed text is not valid UTF-8")}
	}

	return string(text), nil
}

// IsBlobAlphabet reports whether s consists only of standard base64
// characters and padding.
func IsBlobAlphabet(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		case c == '+', c == '/', c == '=':
		default:
			return false
		}
	}
	return true
}
