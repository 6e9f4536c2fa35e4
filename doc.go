// Package dlist implements a two-tier (in-process + remote) read-through,
// write-around cache for paginated list query results sitting in front of
// a relational-database repository layer.
//
// The hard part, and the package's actual scope, is invalidation: deciding
// which cached pages of a list become stale when an entity the list could
// contain is created, updated, or deleted, in time proportional to the
// number of affected pages rather than the number of cached keys. The
// pieces that do that work live in their own packages so they can be
// tested and reasoned about independently:
//
//   - [pkg/keybuilder] builds the canonical (group key, page key) pair for
//     a query.
//   - [pkg/bounds] encodes the 19-byte sort-bounds header attached to every
//     cached page, and implements the range predicate that decides whether
//     a modification could affect a given page.
//   - [pkg/modlog] is the bounded, time-stamped log of recent writes that
//     an L1 lookup consults instead of scanning the cache.
//   - [internal/l1] is the in-process tier: a chunked, lock-free-ish map
//     with GDSF admission/eviction and lazy invalidation against the
//     modification log.
//   - [internal/l2] is the remote tier: a Redis-backed store with
//     group/master tracking sets and server-side scripts that invalidate
//     only the affected pages of a group in one round-trip.
//
// This package, [Repository], wires those pieces together behind the
// read/write entry points an HTTP handler or service layer actually calls.
package dlist
