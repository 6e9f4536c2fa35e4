package l1

import (
	"sync/atomic"
	"time"

	"github.com/jcailloux/relais-sub002/pkg/bounds"
)

// Bounds is the in-process counterpart of [bounds.Header]: the sort-bounds
// metadata kept alongside a cached page. Absent mirrors the wire format's
// "no header" case (an empty page, or a legacy headerless payload) and,
// like it, always reads as conservatively affected.
type Bounds struct {
	Header bounds.Header
	Absent bool
}

// entry is one chunk's concurrent map value. It is never copied once
// published: readers hold a pointer to it via [Handle], and the fields
// below are either immutable after Put or mutated only through the atomic
// accessCount or by the chunk's own single sweeper goroutine. Each Put
// publishes a freshly allocated entry; an evicted one is left to the
// garbage collector so a concurrent [Handle] never observes reuse.
type entry[I any] struct {
	key    []byte
	items  []I
	bounds Bounds

	// sortField is the index into the owning descriptor's declared sorts
	// that this page was ordered by -- needed because a [modlog.Mod]
	// carries one int64 per declared sort field, and different cached
	// pages of the same entity type may have been sorted by different
	// fields.
	sortField int

	cachedAt           int64 // UnixNano
	resultCount        int
	constructionCostUs int64
	memoryUsage        int64
	ttl                time.Duration

	accessCount atomic.Uint64
}

// score computes this entry's current GDSF value: access frequency times
// construction cost, amortized over memory footprint. Never called
// concurrently with itself for the same entry (only the chunk's single
// sweeper reads it), but accessCount is loaded atomically since Get bumps
// it concurrently.
func (e *entry[I]) score() float64 {
	mem := e.memoryUsage
	if mem <= 0 {
		mem = 1
	}
	return float64(e.accessCount.Load()) * float64(e.constructionCostUs) / float64(mem)
}

func (e *entry[I]) expired(now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	return now.UnixNano()-e.cachedAt >= int64(e.ttl)
}

// Handle is an epoch-guarded read handle to a cached page: while the caller
// holds it, the entry it points to is reachable from the Go stack/heap and
// so cannot be garbage collected, even if a concurrent writer has already
// removed it from the chunk's map. Release is an explicit, required call
// (not a finalizer) so the contract reads the same as a hand-rolled epoch
// scheme would, and so a future hazard-pointer-based rewrite is a drop-in
// replacement.
type Handle[I any] struct {
	e *entry[I]
}

// Items returns the cached page's items. The returned slice must not be
// mutated by the caller.
func (h Handle[I]) Items() []I { return h.e.items }

// Bounds returns the page's sort-bounds metadata.
func (h Handle[I]) Bounds() Bounds { return h.e.bounds }

// SortField returns the index of the descriptor-declared sort field this
// page was ordered by.
func (h Handle[I]) SortField() int { return h.e.sortField }

// CachedAt returns when this page was stored.
func (h Handle[I]) CachedAt() time.Time { return time.Unix(0, h.e.cachedAt) }

// ResultCount returns the number of items on the page (equal to len(Items)
// but kept for parity with the wire [Header]'s is-incomplete derivation).
func (h Handle[I]) ResultCount() int { return h.e.resultCount }

// AccessCount returns the entry's current access counter.
func (h Handle[I]) AccessCount() uint64 { return h.e.accessCount.Load() }

// Release ends the caller's hold on the handle.
//
// Under the Go-GC-backed reclamation strategy this package uses, Release
// does no work: the entry becomes collectible once the last Handle
// referencing it is itself unreachable. The call is kept mandatory in the
// API so the contract -- and any future reclamation strategy -- doesn't
// depend on callers happening to drop their reference promptly.
func (h Handle[I]) Release() {}
