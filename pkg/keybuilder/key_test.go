package keybuilder

import (
	"bytes"
	"testing"
)

func TestGroupKeyDeterministic(t *testing.T) {
	filters := []Value{Int64Value(42), {}, StringValue("alpine")}
	sort := Sort{Present: true, Field: 1, Direction: Desc}

	a := GroupKey(filters, sort)
	b := GroupKey(filters, sort)
	if !bytes.Equal(a, b) {
		t.Fatalf("group key not deterministic: %x != %x", a, b)
	}
}

func TestGroupKeyUnusedFilterNotElided(t *testing.T) {
	withGap := []Value{Int64Value(1), {}, Int64Value(3)}
	k := GroupKey(withGap, Sort{})
	// presence(1) + 8 bytes, presence(0) for the gap, presence(1) + 8 bytes, sort absence(1)
	want := 1 + 8 + 1 + 1 + 8 + 1
	if len(k) != want {
		t.Fatalf("expected gap filter to contribute a single 0x00 byte, got len %d want %d", len(k), want)
	}
	if k[9] != 0x00 {
		t.Fatalf("expected absent-filter byte at offset 9, got %#x", k[9])
	}
}

func TestPageKeyGroupPrefix(t *testing.T) {
	filters := []Value{Int64Value(7)}
	sort := Sort{Present: true, Field: 0, Direction: Asc}
	gk := GroupKey(filters, sort)

	pk1 := PageKey(gk, Pagination{Limit: 10, Offset: 20})
	pk2 := PageKey(gk, Pagination{Limit: 10, UseCursor: true, Cursor: []byte("abc")})

	if !bytes.HasPrefix(pk1, gk) || !bytes.HasPrefix(pk2, gk) {
		t.Fatalf("page keys must extend the group key verbatim")
	}
}

func TestPageKeyDistinguishesCursorAndOffsetFirstPage(t *testing.T) {
	gk := GroupKey(nil, Sort{})
	offsetFirst := PageKey(gk, Pagination{Limit: 5})
	cursorFirst := PageKey(gk, Pagination{Limit: 5, UseCursor: true})
	if bytes.Equal(offsetFirst, cursorFirst) {
		t.Fatalf("offset-mode and cursor-mode first pages must not collide")
	}
}

func TestPageKeyCursorWinsEncoding(t *testing.T) {
	gk := GroupKey(nil, Sort{})
	// Even with a non-zero offset field set, cursor mode ignores it in the
	// wire form -- callers are responsible for not setting both.
	p := Pagination{Limit: 3, UseCursor: true, Cursor: []byte("zzz"), Offset: 7}
	k := PageKey(gk, p)
	want := append([]byte{3, 0, 3, 0, 0, 0}, "zzz"...)
	if !bytes.HasSuffix(k, want) {
		t.Fatalf("unexpected cursor encoding: %x, want suffix %x", k, want)
	}
}
