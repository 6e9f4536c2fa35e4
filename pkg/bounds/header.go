// Package bounds implements the 19-byte sort-bounds header that prefixes
// every cached list page and the range predicate used to decide whether a
// modification could affect a given page.
package bounds

import "encoding/binary"

// HeaderSize is the fixed, wire-stable size of an encoded [Header].
const HeaderSize = 19

// magic identifies an encoded header at the start of an L2 payload.
var magic = [2]byte{0x53, 0x52}

// Flag bits within byte 18 of the encoded header.
const (
	flagDesc Flag = 1 << iota
	flagFirstPage
	flagIncomplete
	flagCursorPaginated
)

// Flag is a bitmask of the header's boolean fields.
type Flag uint8

// Header is the sort-bounds metadata attached to a non-empty cached page.
//
// An empty page carries no header at all: producers skip writing one, and
// [Decode] reports "absent" for it, same as for any payload predating this
// wire format. That keeps the wire type free of an explicit validity bit —
// there is no such thing as a decoded-but-invalid Header.
type Header struct {
	FirstValue int64
	LastValue  int64

	Desc            bool // sort direction is descending
	FirstPage       bool // empty cursor and zero offset
	Incomplete      bool // fewer items than the requested limit
	CursorPaginated bool // false means offset-paginated
}

// Encode writes h as a 19-byte, little-endian buffer with the magic prefix.
func Encode(h Header) [HeaderSize]byte {
	var out [HeaderSize]byte
	out[0], out[1] = magic[0], magic[1]
	binary.LittleEndian.PutUint64(out[2:10], uint64(h.FirstValue))
	binary.LittleEndian.PutUint64(out[10:18], uint64(h.LastValue))

	var flags Flag
	if h.Desc {
		flags |= flagDesc
	}
	if h.FirstPage {
		flags |= flagFirstPage
	}
	if h.Incomplete {
		flags |= flagIncomplete
	}
	if h.CursorPaginated {
		flags |= flagCursorPaginated
	}
	out[18] = byte(flags)
	return out
}

// Decode parses a 19-byte buffer into a Header.
//
// ok is false when buf is shorter than [HeaderSize] or its first two bytes
// do not match the magic prefix; callers must then treat the payload as
// headerless plain data (and, for invalidation purposes, as always
// affected) -- this covers both an empty page (producers never write a
// header for one) and any legacy payload stored before this format existed.
func Decode(buf []byte) (h Header, ok bool) {
	if len(buf) < HeaderSize || buf[0] != magic[0] || buf[1] != magic[1] {
		return Header{}, false
	}
	flags := Flag(buf[18])
	h = Header{
		FirstValue:      int64(binary.LittleEndian.Uint64(buf[2:10])),
		LastValue:       int64(binary.LittleEndian.Uint64(buf[10:18])),
		Desc:            flags&flagDesc != 0,
		FirstPage:       flags&flagFirstPage != 0,
		Incomplete:      flags&flagIncomplete != 0,
		CursorPaginated: flags&flagCursorPaginated != 0,
	}
	return h, true
}
