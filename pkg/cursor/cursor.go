// Package cursor implements the base64 cursor codec referenced by the
// canonical key builder and the HTTP query surface.
//
// The cache core treats a cursor as an opaque byte string (see
// [pkg/keybuilder]); this package is the default, replaceable encoding of
// "position within a sorted list" into those bytes, kept separate so a
// caller with different pagination needs can swap in their own [Codec].
package cursor

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Position is the decoded form of a cursor: the sort-field value of the
// last item on the previous page, plus its identifier as a tiebreaker for
// entities that share a sort value.
type Position struct {
	Value int64
	ID    string
}

// Codec encodes and decodes cursor positions.
type Codec interface {
	Encode(p Position) []byte
	Decode(raw []byte) (Position, error)
}

// Default is the package's base64-over-a-small-binary-layout [Codec]:
// 8-byte little-endian sort value, then the raw identifier bytes. It is
// opaque to callers by design -- the wire form is not meant to be parsed
// by anything other than [Default.Decode].
var Default Codec = defaultCodec{}

type defaultCodec struct{}

func (defaultCodec) Encode(p Position) []byte {
	buf := make([]byte, 8+len(p.ID))
	binary.LittleEndian.PutUint64(buf[:8], uint64(p.Value))
	copy(buf[8:], p.ID)
	out := make([]byte, base64.RawURLEncoding.EncodedLen(len(buf)))
	base64.RawURLEncoding.Encode(out, buf)
	return out
}

func (defaultCodec) Decode(raw []byte) (Position, error) {
	buf := make([]byte, base64.RawURLEncoding.DecodedLen(len(raw)))
	n, err := base64.RawURLEncoding.Decode(buf, raw)
	if err != nil {
		return Position{}, fmt.Errorf("cursor: invalid base64: %w", err)
	}
	buf = buf[:n]
	if len(buf) < 8 {
		return Position{}, fmt.Errorf("cursor: short buffer (%d bytes)", len(buf))
	}
	return Position{
		Value: int64(binary.LittleEndian.Uint64(buf[:8])),
		ID:    string(buf[8:]),
	}, nil
}
