package l2

import (
	"context"
	"math"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jcailloux/relais-sub002/pkg/bounds"
)

// probeScript exposes the shared Lua predicate functions directly, so the
// remote-side decision can be compared against the in-process one on
// arbitrary inputs.
var probeScript = redis.NewScript(luaPredicate + `
local op = ARGV[1]
if op == "affects" then
  if affects(ARGV[2], ARGV[3]) then return 1 end
  return 0
end
if affects_update(ARGV[2], ARGV[3], ARGV[4]) then return 1 end
return 0
`)

func probeAffects(t *testing.T, rdb *redis.Client, hdr []byte, v int64) bool {
	t.Helper()
	n, err := probeScript.Run(context.Background(), rdb, []string{}, "affects", hdr, encodeI64(v)).Int64()
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	return n == 1
}

func probeAffectsUpdate(t *testing.T, rdb *redis.Client, hdr []byte, vOld, vNew int64) bool {
	t.Helper()
	n, err := probeScript.Run(context.Background(), rdb, []string{}, "affects_update", hdr, encodeI64(vOld), encodeI64(vNew)).Int64()
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	return n == 1
}

// testHeaders builds every flag combination over a spread of bounds,
// semantically meaningful or not: the two predicate implementations must
// agree on every input, not just the well-formed ones.
func testHeaders() []bounds.Header {
	pairs := [][2]int64{
		{10, 20},
		{20, 10},
		{0, 0},
		{-5, 5},
		{math.MinInt64, math.MaxInt64},
		{math.MaxInt64, math.MinInt64},
	}
	out := make([]bounds.Header, 0, len(pairs)*16)
	for _, p := range pairs {
		for i := 0; i < 16; i++ {
			out = append(out, bounds.Header{
				FirstValue:      p[0],
				LastValue:       p[1],
				Desc:            i&1 != 0,
				FirstPage:       i&2 != 0,
				Incomplete:      i&4 != 0,
				CursorPaginated: i&8 != 0,
			})
		}
	}
	return out
}

var probeValues = []int64{
	math.MinInt64, math.MinInt64 + 1, -100, -6, -5, -1, 0, 1,
	9, 10, 11, 15, 19, 20, 21, 100,
	math.MaxInt64 - 1, math.MaxInt64,
}

func TestLuaPredicateAgreesWithGo(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	for _, h := range testHeaders() {
		enc := bounds.Encode(h)
		for _, v := range probeValues {
			want := bounds.Affects(h, false, v)
			if got := probeAffects(t, rdb, enc[:], v); got != want {
				t.Fatalf("affects(%+v, %d): lua=%v go=%v", h, v, got, want)
			}
		}
	}
}

func TestLuaPredicateUpdateAgreesWithGo(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	updateValues := []int64{math.MinInt64, -100, -5, 0, 5, 10, 15, 20, 25, 100, math.MaxInt64}
	for _, h := range testHeaders() {
		enc := bounds.Encode(h)
		for _, vOld := range updateValues {
			for _, vNew := range updateValues {
				want := bounds.AffectsUpdate(h, false, vOld, vNew)
				if got := probeAffectsUpdate(t, rdb, enc[:], vOld, vNew); got != want {
					t.Fatalf("affects_update(%+v, %d, %d): lua=%v go=%v", h, vOld, vNew, got, want)
				}
			}
		}
	}
}

func TestLuaPredicateAbsentHeader(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	short := bounds.Encode(bounds.Header{})
	for _, hdr := range [][]byte{
		[]byte(""),
		[]byte("XX"),
		[]byte("not a header at all"),
		short[:18], // one byte short
	} {
		if !probeAffects(t, rdb, hdr, 0) {
			t.Errorf("headerless payload %q must always be affected", hdr)
		}
		if !probeAffectsUpdate(t, rdb, hdr, 1, 2) {
			t.Errorf("headerless payload %q must always be affected (update form)", hdr)
		}
	}
}
