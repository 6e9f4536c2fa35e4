package l2

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jcailloux/relais-sub002/pkg/bounds"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, "widgets"), mr
}

func pageWithHeader(h bounds.Header, payload string) []byte {
	enc := bounds.Encode(h)
	return append(enc[:], payload...)
}

func TestPutThenGetRoundTrips(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	raw := pageWithHeader(bounds.Header{FirstValue: 1, LastValue: 10}, "payload")
	if err := s.Put(ctx, []byte("page1"), []byte("group1"), 0, raw, time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, found, err := s.Get(ctx, []byte("page1"))
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if string(got) != string(raw) {
		t.Fatalf("round-trip mismatch: got %q want %q", got, raw)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)
	_, found, err := s.Get(context.Background(), []byte("nope"))
	if err != nil || found {
		t.Fatalf("expected clean miss, found=%v err=%v", found, err)
	}
}

func TestInvalidateGroupDeletesEverything(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	raw := pageWithHeader(bounds.Header{FirstValue: 1, LastValue: 5}, "x")
	s.Put(ctx, []byte("p1"), []byte("g1"), 0, raw, 0)
	s.Put(ctx, []byte("p2"), []byte("g1"), 0, raw, 0)

	n, err := s.InvalidateGroup(ctx, []byte("g1"))
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	if _, found, _ := s.Get(ctx, []byte("p1")); found {
		t.Fatalf("expected p1 gone")
	}
}

func TestInvalidateGroupSelectiveOnlyDeletesAffected(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Offset-mode, complete page with bounds [1, 10]: a create at v=100
	// is past the page's last value, so it must not be affected.
	complete := pageWithHeader(bounds.Header{FirstValue: 1, LastValue: 10}, "complete")
	// Offset-mode, incomplete page: cascade rule always affects it.
	incomplete := pageWithHeader(bounds.Header{FirstValue: 1, LastValue: 10, Incomplete: true}, "incomplete")

	s.Put(ctx, []byte("pa"), []byte("g"), 0, complete, 0)
	s.Put(ctx, []byte("pb"), []byte("g"), 0, incomplete, 0)

	n, err := s.InvalidateGroupSelective(ctx, []byte("g"), 100)
	if err != nil {
		t.Fatalf("selective: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the incomplete page to be deleted, got n=%d", n)
	}
	if _, found, _ := s.Get(ctx, []byte("pa")); !found {
		t.Fatalf("expected the complete, out-of-range page to survive")
	}
}

func TestInvalidateGroupSelectiveLeavesOutOfRangePages(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// Cursor-mode, middle page: bounds [30, 50], ascending.
	h := bounds.Header{FirstValue: 30, LastValue: 50, CursorPaginated: true}
	page := pageWithHeader(h, "middle")
	s.Put(ctx, []byte("pmid"), []byte("gcursor"), 0, page, 0)

	n, err := s.InvalidateGroupSelective(ctx, []byte("gcursor"), 1000)
	if err != nil {
		t.Fatalf("selective: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected out-of-range value to leave the page alone, deleted=%d", n)
	}
	if _, found, _ := s.Get(ctx, []byte("pmid")); !found {
		t.Fatalf("page should still be present")
	}

	n, err = s.InvalidateGroupSelective(ctx, []byte("gcursor"), 35)
	if err != nil {
		t.Fatalf("selective: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected in-range value to delete the page, deleted=%d", n)
	}
}

func TestInvalidateGroupSelectiveUpdateOutOfRange(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	h := bounds.Header{FirstValue: 10, LastValue: 8, Desc: true}
	page := pageWithHeader(h, "x")
	s.Put(ctx, []byte("p"), []byte("g"), 0, page, 0)

	n, err := s.InvalidateGroupSelectiveUpdate(ctx, []byte("g"), 100, 101)
	if err != nil {
		t.Fatalf("selective update: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected move from 100->101 to leave bounds [10,8] untouched, deleted=%d", n)
	}
}

func TestInvalidateGroupSelectiveHeaderlessAlwaysDeletes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	s.Put(ctx, []byte("legacy"), []byte("g"), 0, []byte("no header here"), 0)

	n, err := s.InvalidateGroupSelective(ctx, []byte("g"), 999999)
	if err != nil {
		t.Fatalf("selective: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected headerless payload to always be deleted, got %d", n)
	}
}

func TestInvalidateAllListGroups(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	raw := pageWithHeader(bounds.Header{FirstValue: 1, LastValue: 5}, "x")
	s.Put(ctx, []byte("p1"), []byte("g1"), 0, raw, 0)
	s.Put(ctx, []byte("p2"), []byte("g2"), 0, raw, 0)

	n, err := s.InvalidateAllListGroups(ctx)
	if err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted across groups, got %d", n)
	}
	groups, err := s.Groups(ctx)
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected master set empty after invalidate-all, got %v", groups)
	}
}

func TestInvalidatePatternSafeFallback(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	raw := pageWithHeader(bounds.Header{FirstValue: 1, LastValue: 5}, "x")
	s.Put(ctx, []byte("p1"), []byte("g1"), 0, raw, 0)

	n, err := s.InvalidatePatternSafe(ctx, "widgets:dlist:p:*")
	if err != nil {
		t.Fatalf("pattern safe: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
}

// TestScenarioSelectiveCreateThreePages seeds a descending-by-id list as
// three offset pages -- [10,9,8], [7,6,5], [4,3,2], the last incomplete --
// and checks which pages each kind of create may touch.
func TestScenarioSelectiveCreateThreePages(t *testing.T) {
	seed := func(t *testing.T) *Store {
		s, _ := newTestStore(t)
		ctx := context.Background()
		p1 := pageWithHeader(bounds.Header{FirstValue: 10, LastValue: 8, Desc: true, FirstPage: true}, "p1")
		p2 := pageWithHeader(bounds.Header{FirstValue: 7, LastValue: 5, Desc: true}, "p2")
		p3 := pageWithHeader(bounds.Header{FirstValue: 4, LastValue: 2, Desc: true, Incomplete: true}, "p3")
		s.Put(ctx, []byte("p1"), []byte("g"), 0, p1, 0)
		s.Put(ctx, []byte("p2"), []byte("g"), 0, p2, 0)
		s.Put(ctx, []byte("p3"), []byte("g"), 0, p3, 0)
		return s
	}
	present := func(t *testing.T, s *Store, key string) bool {
		t.Helper()
		_, found, err := s.Get(context.Background(), []byte(key))
		if err != nil {
			t.Fatalf("get %s: %v", key, err)
		}
		return found
	}

	t.Run("CreateAfterTail", func(t *testing.T) {
		s := seed(t)
		n, err := s.InvalidateGroupSelective(context.Background(), []byte("g"), 1)
		if err != nil {
			t.Fatalf("selective: %v", err)
		}
		if n != 1 {
			t.Fatalf("creating id=1 must delete only the incomplete tail page, deleted=%d", n)
		}
		if !present(t, s, "p1") || !present(t, s, "p2") {
			t.Error("complete pages above the new id must survive")
		}
		if present(t, s, "p3") {
			t.Error("the tail page must be gone")
		}
	})

	t.Run("CreateInMiddle", func(t *testing.T) {
		s := seed(t)
		n, err := s.InvalidateGroupSelective(context.Background(), []byte("g"), 7)
		if err != nil {
			t.Fatalf("selective: %v", err)
		}
		if n != 2 {
			t.Fatalf("creating id=7 must cascade into pages 2 and 3, deleted=%d", n)
		}
		if !present(t, s, "p1") {
			t.Error("page [10,8] must be untouched by a create at 7")
		}
		if present(t, s, "p2") || present(t, s, "p3") {
			t.Error("pages [7,5] and [4,2] must be gone")
		}
	})

	t.Run("UpdateOutOfRange", func(t *testing.T) {
		s := seed(t)
		n, err := s.InvalidateGroupSelectiveUpdate(context.Background(), []byte("g"), 100, 101)
		if err != nil {
			t.Fatalf("selective update: %v", err)
		}
		if n != 0 {
			t.Fatalf("an out-of-range move must not delete any page, deleted=%d", n)
		}
	})
}

func TestGroupsReportSortField(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	raw := pageWithHeader(bounds.Header{FirstValue: 1, LastValue: 5}, "x")
	s.Put(ctx, []byte("p1"), []byte("g1"), 2, raw, 0)

	groups, err := s.Groups(ctx)
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	if groups[0].SortField != 2 {
		t.Errorf("sort field: got %d, want 2", groups[0].SortField)
	}
}

func TestQueuedSelectiveInvalidation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	incomplete := pageWithHeader(bounds.Header{FirstValue: 1, LastValue: 10, Incomplete: true}, "x")
	s.Put(ctx, []byte("p1"), []byte("g1"), 0, incomplete, 0)
	if err := s.EnsureScript(ctx); err != nil {
		t.Fatalf("ensure script: %v", err)
	}

	groups, err := s.Groups(ctx)
	if err != nil || len(groups) != 1 {
		t.Fatalf("groups: %v, %v", groups, err)
	}
	pipe := s.rdb.Pipeline()
	s.QueueInvalidateSelective(groups[0].TrackingKey, 3)(ctx, pipe)
	if _, err := pipe.Exec(ctx); err != nil {
		t.Fatalf("pipeline exec: %v", err)
	}
	if _, found, _ := s.Get(ctx, []byte("p1")); found {
		t.Error("the queued selective invalidation must have deleted the page")
	}
}
