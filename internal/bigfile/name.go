package bigfile

import (
	"bytes"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/charmap"
)

// DecodeName decodes a fixed-width, NUL-terminated ASCII name.
//
// On bytes outside printable ASCII it returns ErrEncoding together with a
// lossy Windows-1252 rendering of the same bytes, so callers can keep going
// with a readable name.
func DecodeName(buf []byte) (string, error) {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	for i, b := range buf {
		if b < 0x20 || b >= 0x7f {
			return lossyName(buf), newError("decode name", ErrEncoding, NoKey,
				errors.Errorf("byte 0x%02x at position %d", b, i))
		}
	}
	return string(buf), nil
}

func lossyName(buf []byte) string {
	s, err := charmap.Windows1252.NewDecoder().Bytes(buf)
	if err != nil {
		return ""
	}
	return string(bytes.Map(func(r rune) rune {
		if r < 0x20 {
			return '?'
		}
		return r
	}, s))
}
