package bounds

import (
	"math"
	"testing"
)

func asc(first, last int64) Header  { return Header{FirstValue: first, LastValue: last} }
func desc(first, last int64) Header { return Header{FirstValue: first, LastValue: last, Desc: true} }

func TestAffectsOffsetMode(t *testing.T) {
	complete := asc(10, 20)
	incomplete := asc(10, 20)
	incomplete.Incomplete = true

	var table = []struct {
		name string
		h    Header
		v    int64
		want bool
	}{
		// Complete ascending page: cascade, affected iff v <= last.
		{"BelowFirst", complete, 9, true},
		{"AtFirst", complete, 10, true},
		{"Middle", complete, 15, true},
		{"AtLast", complete, 20, true},
		{"PastLast", complete, 21, false},
		{"Min", complete, math.MinInt64, true},
		{"Max", complete, math.MaxInt64, false},
		// Incomplete page: always affected.
		{"IncompleteBelow", incomplete, 9, true},
		{"IncompletePast", incomplete, 21, true},
		{"IncompleteMax", incomplete, math.MaxInt64, true},
	}
	for _, tt := range table {
		t.Run(tt.name, func(t *testing.T) {
			if got := Affects(tt.h, false, tt.v); got != tt.want {
				t.Errorf("Affects(%+v, %d): got %v, want %v", tt.h, tt.v, got, tt.want)
			}
		})
	}
}

func TestAffectsOffsetModeDescending(t *testing.T) {
	// Descending page holding sort values 20 down to 10: affected iff
	// v >= last, the mirror of the ascending cascade.
	h := desc(20, 10)
	var table = []struct {
		v    int64
		want bool
	}{
		{9, false},
		{10, true},
		{15, true},
		{20, true},
		{21, true},
		{math.MinInt64, false},
		{math.MaxInt64, true},
	}
	for _, tt := range table {
		if got := Affects(h, false, tt.v); got != tt.want {
			t.Errorf("Affects(desc [20,10], %d): got %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestAffectsCursorMode(t *testing.T) {
	mk := func(first, last int64, firstPage, incomplete bool) Header {
		h := asc(first, last)
		h.CursorPaginated = true
		h.FirstPage = firstPage
		h.Incomplete = incomplete
		return h
	}

	var table = []struct {
		name string
		h    Header
		v    int64
		want bool
	}{
		// First and incomplete: the whole list fits on it.
		{"FirstIncompleteAnything", mk(10, 20, true, true), math.MaxInt64, true},
		// First page, complete: affected iff v <= last.
		{"FirstAtLast", mk(10, 20, true, false), 20, true},
		{"FirstPastLast", mk(10, 20, true, false), 21, false},
		{"FirstFarBelow", mk(10, 20, true, false), math.MinInt64, true},
		// Incomplete tail: affected iff v >= first.
		{"TailBelowFirst", mk(10, 20, false, true), 9, false},
		{"TailAtFirst", mk(10, 20, false, true), 10, true},
		{"TailPastLast", mk(10, 20, false, true), 21, true},
		// Middle page: affected iff first <= v <= last.
		{"MiddleBelow", mk(10, 20, false, false), 9, false},
		{"MiddleAtFirst", mk(10, 20, false, false), 10, true},
		{"MiddleAtLast", mk(10, 20, false, false), 20, true},
		{"MiddlePast", mk(10, 20, false, false), 21, false},
	}
	for _, tt := range table {
		t.Run(tt.name, func(t *testing.T) {
			if got := Affects(tt.h, false, tt.v); got != tt.want {
				t.Errorf("Affects(%+v, %d): got %v, want %v", tt.h, tt.v, got, tt.want)
			}
		})
	}
}

func TestAffectsAbsentAlwaysTrue(t *testing.T) {
	if !Affects(Header{}, true, 123) {
		t.Error("an absent header must always be affected")
	}
	if !AffectsUpdate(Header{}, true, 1, 2) {
		t.Error("an absent header must always be affected (update form)")
	}
}

func TestAffectsDescendingMirrorSaturation(t *testing.T) {
	// MinInt64 has no positive counterpart; the mirror saturates instead
	// of overflowing, and the full-range descending page must still be
	// affected by everything.
	h := desc(math.MaxInt64, math.MinInt64)
	for _, v := range []int64{math.MinInt64, -1, 0, 1, math.MaxInt64} {
		if !Affects(h, false, v) {
			t.Errorf("full-range descending page must be affected by %d", v)
		}
	}
}

func TestAffectsUpdateOffsetMode(t *testing.T) {
	complete := asc(10, 20)
	tail := asc(10, 20)
	tail.Incomplete = true

	var table = []struct {
		name       string
		h          Header
		vOld, vNew int64
		want       bool
	}{
		// Complete page: affected iff the moved range intersects the
		// page's range; moves entirely before or after cancel out.
		{"BothBefore", complete, 1, 5, false},
		{"TouchFirst", complete, 5, 10, true},
		{"Inside", complete, 15, 16, true},
		{"Spanning", complete, 5, 25, true},
		{"BothAfter", complete, 25, 30, false},
		{"ReversedOrder", complete, 10, 5, true},
		// Incomplete tail: open-ended past first.
		{"TailBothBefore", tail, 1, 5, false},
		{"TailMovePast", tail, 25, 30, true},
		{"TailIntoPage", tail, 1, 15, true},
	}
	for _, tt := range table {
		t.Run(tt.name, func(t *testing.T) {
			if got := AffectsUpdate(tt.h, false, tt.vOld, tt.vNew); got != tt.want {
				t.Errorf("AffectsUpdate(%+v, %d, %d): got %v, want %v", tt.h, tt.vOld, tt.vNew, got, tt.want)
			}
		})
	}
}

func TestAffectsUpdateCursorMode(t *testing.T) {
	h := asc(10, 20)
	h.CursorPaginated = true

	var table = []struct {
		name       string
		vOld, vNew int64
		want       bool
	}{
		{"BothBefore", 1, 5, false},
		{"NewInside", 5, 15, true},
		{"BothAfter", 25, 30, false},
		// A move straight past a cursor-pinned window doesn't change it.
		{"LeapsOver", 5, 25, false},
	}
	for _, tt := range table {
		t.Run(tt.name, func(t *testing.T) {
			if got := AffectsUpdate(h, false, tt.vOld, tt.vNew); got != tt.want {
				t.Errorf("AffectsUpdate(%d, %d): got %v, want %v", tt.vOld, tt.vNew, got, tt.want)
			}
		})
	}
}

// TestScenarioThreePagesDescending walks a descending-by-id list cached
// as three offset pages
// [10,9,8], [7,6,5], [4,3,2], the last one incomplete.
func TestScenarioThreePagesDescending(t *testing.T) {
	p1 := desc(10, 8)
	p2 := desc(7, 5)
	p3 := desc(4, 2)
	p3.Incomplete = true

	// Create id=1: only the incomplete tail page is affected.
	if Affects(p1, false, 1) || Affects(p2, false, 1) {
		t.Error("creating past the tail must not affect complete pages")
	}
	if !Affects(p3, false, 1) {
		t.Error("creating past the tail must affect the incomplete last page")
	}

	// Create id=7: cascade hits pages 2 and 3, page 1 is untouched.
	if Affects(p1, false, 7) {
		t.Error("page [10,8] must not be affected by a create at 7")
	}
	if !Affects(p2, false, 7) || !Affects(p3, false, 7) {
		t.Error("pages [7,5] and [4,2] must be affected by a create at 7")
	}

	// Update 100 -> 101: entirely outside every page, nothing affected.
	for i, p := range []Header{p1, p2, p3} {
		if AffectsUpdate(p, false, 100, 101) {
			t.Errorf("page %d must not be affected by an out-of-range move", i+1)
		}
	}
}

// TestScenarioCursorMiddlePage covers the localized cursor-mode example:
// header first=50, last=30, descending, middle, complete.
func TestScenarioCursorMiddlePage(t *testing.T) {
	h := desc(50, 30)
	h.CursorPaginated = true

	if !Affects(h, false, 35) {
		t.Error("value 35 lies within [50,30] and must affect the page")
	}
	if Affects(h, false, 60) {
		t.Error("value 60 lies outside [50,30] and must not affect the page")
	}
}
