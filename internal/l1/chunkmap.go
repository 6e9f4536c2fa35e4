package l1

import (
	"hash/maphash"
	"sync"
)

// chunk is one independently-owned shard of the map. Its concurrent map is
// backed by [sync.Map] rather than a hand-rolled lock-free structure: Go's
// sync.Map already gives lock-free Load/Store/CompareAndDelete for the
// read-heavy, append-mostly workload a cache shard sees, and CompareAndDelete
// in particular gives the two-phase "remove if unchanged" the lookup path
// needs for free.
//
// A removed entry is never pooled or reused: any reader may still hold a
// [Handle] to it, so its memory stays live until the last such handle is
// unreachable and the garbage collector reclaims it.
type chunk[I any] struct {
	m sync.Map // string(page key) -> *entry[I]
}

func newChunk[I any]() *chunk[I] {
	return &chunk[I]{}
}

// find looks up key, returning the live entry if present.
func (c *chunk[I]) find(key []byte) (*entry[I], bool) {
	v, ok := c.m.Load(string(key))
	if !ok {
		return nil, false
	}
	return v.(*entry[I]), true
}

// removeIfSame deletes key only if its current value is still exactly e --
// the two-phase remove that no-ops if another writer already replaced the
// entry. Losing that race is not an error; the newer entry stands.
func (c *chunk[I]) removeIfSame(key []byte, e *entry[I]) bool {
	return c.m.CompareAndDelete(string(key), e)
}

// cleanup walks every entry in the chunk, calling shouldEvict(e); entries
// for which it returns true are removed. cleanup must only be called by the
// chunk's single sweeper at a time.
func (c *chunk[I]) cleanup(shouldEvict func(e *entry[I]) (evict bool, reason string), onEvict func(reason string)) {
	c.m.Range(func(key, value any) bool {
		e := value.(*entry[I])
		if evict, reason := shouldEvict(e); evict {
			if c.m.CompareAndDelete(key, e) {
				onEvict(reason)
			}
		}
		return true
	})
}

// chunkHasher derives a chunk id from a page key's hash, using a single
// process-lifetime seed so the same key always lands in the same chunk for
// the life of the map.
type chunkHasher struct {
	seed maphash.Seed
}

func newChunkHasher() chunkHasher { return chunkHasher{seed: maphash.MakeSeed()} }

func (h chunkHasher) hash(key []byte) uint64 {
	return maphash.Bytes(h.seed, key)
}
