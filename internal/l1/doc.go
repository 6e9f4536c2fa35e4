// Package l1 implements the in-process tier of the list-query cache: a
// chunked, concurrent map of cached pages with GDSF-style admission and
// TTL eviction, validated lazily against a [modlog.Log] rather than being
// eagerly invalidated on every write.
//
// Reads never suspend and never take a lock that a writer also takes;
// eviction during a lookup is a two-phase "remove if unchanged" so a
// concurrent store always wins over a concurrent evict. Memory for an
// entry a reader is still looking at is never reclaimed out from under it:
// callers get a [Handle] whose lifetime pins the entry through the Go
// garbage collector, which plays the role epoch reclamation plays for a
// hand-rolled allocator.
package l1
