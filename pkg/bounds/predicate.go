package bounds

// Affects reports whether a modification of an entity whose sort-field
// value is v could affect the page described by h.
//
// absent should be true when h came from a [Decode] call that returned
// false (no header present, including an empty page) -- the predicate is
// always conservatively "affected" in that case.
func Affects(h Header, absent bool, v int64) bool {
	if absent {
		return true
	}
	if h.Desc {
		return affectsAsc(mirror(h), negate(v))
	}
	return affectsAsc(h, v)
}

// AffectsUpdate reports whether moving an entity's sort-field value from
// vOld to vNew could affect the page described by h.
func AffectsUpdate(h Header, absent bool, vOld, vNew int64) bool {
	if absent {
		return true
	}
	if h.Desc {
		mh := mirror(h)
		return affectsUpdateAsc(mh, negate(vOld), negate(vNew))
	}
	return affectsUpdateAsc(h, vOld, vNew)
}

// mirror flips a descending header's bounds onto the ascending form by
// negating both bounds; callers also negate the sort value(s) they compare
// against. A descending page already satisfies FirstValue >= LastValue (the
// first item sorted descending carries the largest value), so negating both
// fields in place -- without swapping them -- restores "first <= last"
// exactly as the ascending decision table expects.
//
// Negation is exact for every int64 except MinInt64, which has no positive
// counterpart; that value saturates to MaxInt64, matching what the
// remote-side script does for the same input.
func mirror(h Header) Header {
	return Header{
		FirstValue:      negate(h.FirstValue),
		LastValue:       negate(h.LastValue),
		Desc:            false,
		FirstPage:       h.FirstPage,
		Incomplete:      h.Incomplete,
		CursorPaginated: h.CursorPaginated,
	}
}

func negate(v int64) int64 {
	if v == minInt64 {
		return maxInt64
	}
	return -v
}

const (
	minInt64 = -1 << 63
	maxInt64 = 1<<63 - 1
)

// affectsAsc implements the single-value decision table for an ascending
// header (h.Desc must already be false; descending callers go through
// [mirror] first).
func affectsAsc(h Header, v int64) bool {
	if !h.CursorPaginated {
		// Offset mode: cascade.
		if h.Incomplete {
			return true
		}
		return v <= h.LastValue
	}

	// Cursor mode: localized.
	switch {
	case h.FirstPage && h.Incomplete:
		return true
	case h.FirstPage:
		return v <= h.LastValue
	case h.Incomplete:
		return v >= h.FirstValue
	default:
		return h.FirstValue <= v && v <= h.LastValue
	}
}

// affectsUpdateAsc implements the update-form decision table for an
// ascending header.
func affectsUpdateAsc(h Header, vOld, vNew int64) bool {
	lo, hi := vOld, vNew
	if hi < lo {
		lo, hi = hi, lo
	}

	if !h.CursorPaginated {
		// A delete at vOld and an insert at vNew cancel each other's
		// offset shift outside [lo, hi]; only pages the moved range
		// touches can change. An incomplete page is the open-ended tail,
		// so it is touched by anything at or past its first value.
		if h.Incomplete {
			return h.FirstValue <= hi
		}
		pLo, pHi := h.FirstValue, h.LastValue
		if pHi < pLo {
			pLo, pHi = pHi, pLo
		}
		return pLo <= hi && lo <= pHi
	}

	return affectsAsc(h, vOld) || affectsAsc(h, vNew)
}
