package dlist

import (
	"github.com/jcailloux/relais-sub002/pkg/cursor"
	"github.com/jcailloux/relais-sub002/pkg/keybuilder"
)

// MinLimit and MaxLimit bound a [Query]'s Limit.
const (
	MinLimit = 1
	MaxLimit = 100
)

// Query is a resolved list query: filter values (aligned with the owning
// [Descriptor]'s Filters, in declaration order), an optional sort clause,
// a page size, and a pagination position.
//
// Cursor and Offset are mutually exclusive; a non-empty Cursor always wins
// if both are set. CursorPos is the decoded form of Cursor
// (nil if Cursor is empty), kept alongside the raw bytes so a database
// query builder can use it directly without re-decoding; Cursor itself,
// not CursorPos, is what the canonical key builder encodes, since it is
// the byte-exact form every producer of a given cursor agreed on.
type Query struct {
	Filters   []keybuilder.Value
	Sort      keybuilder.Sort
	Limit     int
	Cursor    []byte
	CursorPos *cursor.Position
	Offset    uint64
}

// normalized returns a copy of q with Limit clamped into [MinLimit,
// MaxLimit] and, per the mutual-exclusion rule, Offset zeroed out whenever
// Cursor is non-empty.
func (q Query) normalized() Query {
	switch {
	case q.Limit < MinLimit:
		q.Limit = MinLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	if len(q.Cursor) > 0 {
		q.Offset = 0
	}
	return q
}

// GroupKey returns the canonical group key for q: every page sharing q's
// filters and sort, regardless of pagination, shares this key.
func (q Query) GroupKey() []byte {
	return keybuilder.GroupKey(q.Filters, q.Sort)
}

// PageKey returns the canonical page key for q, extending [Query.GroupKey]
// with the pagination window.
func (q Query) PageKey() []byte {
	q = q.normalized()
	p := keybuilder.Pagination{Limit: uint16(q.Limit)}
	if len(q.Cursor) > 0 {
		p.UseCursor = true
		p.Cursor = q.Cursor
	} else {
		p.Offset = uint32(q.Offset)
	}
	return keybuilder.PageKey(q.GroupKey(), p)
}

// IsFirstPage reports whether q addresses the first page of its group:
// an empty cursor and a zero offset, the same condition the wire header's
// is-first-page flag encodes.
func (q Query) IsFirstPage() bool {
	return len(q.Cursor) == 0 && q.Offset == 0
}

// UsesCursor reports whether q is cursor-paginated rather than
// offset-paginated.
func (q Query) UsesCursor() bool {
	return len(q.Cursor) > 0
}
