// Package keybuilder constructs the canonical binary keys used to address
// cached list pages.
//
// A "group key" identifies every page that shares the same filters and sort
// order; a "page key" extends a group key with the pagination window. Two
// queries that would select the same logical result set in the same order
// (ignoring pagination) always produce byte-identical group keys, and the
// same holds for page keys once the window is accounted for. The encoding
// layout is documented on [AppendFilter], [AppendSort] and [PageKey].
package keybuilder

import (
	"encoding/binary"
)

// Kind distinguishes how a [Value] is encoded.
type Kind uint8

const (
	// KindInt64 encodes a fixed-width, little-endian signed 64-bit integer.
	KindInt64 Kind = iota
	// KindString encodes a uint32 length prefix followed by raw bytes.
	KindString
)

// Value is one filter's contribution to a key: either absent, or present
// with a kind-tagged payload.
type Value struct {
	Present bool
	Kind    Kind
	Int     int64
	Str     string
}

// Int64Value builds a present, integral [Value].
func Int64Value(v int64) Value { return Value{Present: true, Kind: KindInt64, Int: v} }

// StringValue builds a present, string [Value].
func StringValue(v string) Value { return Value{Present: true, Kind: KindString, Str: v} }

// Sort is the resolved sort clause of a query: which declared sort field (by
// index into the descriptor's sort list) and which direction.
type Sort struct {
	Present   bool
	Field     int
	Direction Direction
}

// Direction is a sort direction.
type Direction uint8

const (
	Asc Direction = iota
	Desc
)

// offsetMarker tags a literal offset in the page-key suffix, distinguishing
// it from a length-prefixed cursor. 'O' was picked because it reads as
// "offset" in a hex dump and cannot collide with a uint32 length prefix
// followed by an all-zero cursor (that always starts with four 0x00 bytes).
const offsetMarker = 0x4F

// Pagination is the resolved pagination clause of a page key.
//
// UseCursor distinguishes a cursor-mode first page (empty Cursor, UseCursor
// true) from an offset-mode first page (Offset == 0, UseCursor false): the
// two are different windows with different invalidation behavior even
// though neither carries an explicit position yet.
type Pagination struct {
	Limit     uint16
	UseCursor bool
	Cursor    []byte
	Offset    uint32
}

// AppendFilter appends one filter's encoding to buf in the layout: a
// one-byte presence flag, then — if present — the value itself.
func AppendFilter(buf []byte, v Value) []byte {
	if !v.Present {
		return append(buf, 0x00)
	}
	buf = append(buf, 0x01)
	switch v.Kind {
	case KindInt64:
		var tmp [8]byte
		binary.LittleEndian.PutUint64(tmp[:], uint64(v.Int))
		buf = append(buf, tmp[:]...)
	case KindString:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(v.Str)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, v.Str...)
	}
	return buf
}

// AppendSort appends the sort clause's encoding to buf: a one-byte presence
// flag, then — if present — an 8-byte little-endian field index and a
// one-byte direction.
//
// The field index is encoded as a fixed 8 bytes (standing in for the
// source's "size_t") so the wire form does not depend on the host's native
// word size.
func AppendSort(buf []byte, s Sort) []byte {
	if !s.Present {
		return append(buf, 0x00)
	}
	buf = append(buf, 0x01)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(s.Field))
	buf = append(buf, tmp[:]...)
	buf = append(buf, byte(s.Direction))
	return buf
}

// GroupKey builds the canonical group key: filters in declaration order,
// then the sort clause. The returned slice is the caller's to keep or copy.
func GroupKey(filters []Value, sort Sort) []byte {
	buf := make([]byte, 0, 1+len(filters)*9+1+9)
	for _, f := range filters {
		buf = AppendFilter(buf, f)
	}
	buf = AppendSort(buf, sort)
	return buf
}

// PageKey extends a group key with the pagination suffix: a uint16 limit,
// then either a length-prefixed cursor or — for offset pagination past the
// first page — a literal offset marker and a little-endian uint32 offset.
//
// A first page under offset pagination (UseCursor false, Offset 0) appends
// nothing beyond the limit; that omission is itself part of the canonical
// form, not an inconsistency, since it is always reachable deterministically
// from the same (false, 0) inputs.
func PageKey(groupKey []byte, p Pagination) []byte {
	buf := make([]byte, 0, len(groupKey)+2+4+len(p.Cursor))
	buf = append(buf, groupKey...)
	var lim [2]byte
	binary.LittleEndian.PutUint16(lim[:], p.Limit)
	buf = append(buf, lim[:]...)

	switch {
	case p.UseCursor:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(len(p.Cursor)))
		buf = append(buf, tmp[:]...)
		buf = append(buf, p.Cursor...)
	case p.Offset > 0:
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], p.Offset)
		buf = append(buf, offsetMarker)
		buf = append(buf, tmp[:]...)
	}
	return buf
}
