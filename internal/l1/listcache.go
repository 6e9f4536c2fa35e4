package l1

import (
	"sync/atomic"
	"time"

	"github.com/jcailloux/relais-sub002/pkg/bounds"
	"github.com/jcailloux/relais-sub002/pkg/modlog"
)

// Config configures a [ListCache].
type Config struct {
	// ChunkBits is k in "2^k chunks"; chunk count must end up in [2, 64]
	// to fit the modification log's single-uint64 bitmap.
	ChunkBits uint
	// DecayRate multiplies a chunk entry's access counter on each sweep
	// that visits it, in (0, 1].
	DecayRate float64
	// TTL is the maximum age of a cached page before it is evicted
	// regardless of its GDSF score. Zero disables TTL eviction.
	TTL time.Duration
	// CleanupDenominator controls how often a Put probabilistically
	// triggers a sweep: a store schedules one sweep iff
	// hash(key) & (CleanupDenominator-1) == 0. CleanupDenominator must be
	// a power of two; zero selects a default of 64.
	CleanupDenominator uint64
	// Percentile is the GDSF histogram percentile used as the eviction
	// threshold, in (0, 1]; zero or a negative value selects a default of
	// 0.1.
	Percentile float64
	Metrics    Metrics
}

func (c Config) withDefaults() Config {
	if c.ChunkBits == 0 {
		c.ChunkBits = 4 // 16 chunks
	}
	if c.DecayRate <= 0 || c.DecayRate > 1 {
		c.DecayRate = 0.9
	}
	if c.CleanupDenominator == 0 {
		c.CleanupDenominator = 64
	}
	if c.Percentile <= 0 {
		c.Percentile = 0.1
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	return c
}

// ListCache is the L1 tier: a chunked map of cached list pages, lazily
// invalidated against a [modlog.Log] and evicted by TTL, GDSF score, or a
// modification match discovered during a chunk sweep.
type ListCache[I any] struct {
	cfg    Config
	chunks []*chunk[I]
	hasher chunkHasher
	log    *modlog.Log
	hist   *histogram
	cursor atomic.Uint64
}

// NewListCache creates a ListCache backed by log, whose chunk count must
// equal 2^cfg.ChunkBits and must already be within [2, 64] (enforced by
// log's own constructor).
func NewListCache[I any](log *modlog.Log, cfg Config) *ListCache[I] {
	cfg = cfg.withDefaults()
	n := 1 << cfg.ChunkBits
	if n != log.ChunkCount() {
		panic("l1: chunk count mismatch between ListCache and its modlog.Log")
	}
	chunks := make([]*chunk[I], n)
	for i := range chunks {
		chunks[i] = newChunk[I]()
	}
	return &ListCache[I]{
		cfg:    cfg,
		chunks: chunks,
		hasher: newChunkHasher(),
		log:    log,
		hist:   newHistogram(cfg.Percentile),
	}
}

func (lc *ListCache[I]) chunkCount() int { return len(lc.chunks) }

// Len reports the number of currently cached pages. It walks every chunk,
// so it is meant for metrics scrapes and tests, not for control flow.
func (lc *ListCache[I]) Len() int {
	var n int
	for _, c := range lc.chunks {
		c.m.Range(func(_, _ any) bool {
			n++
			return true
		})
	}
	return n
}

func (lc *ListCache[I]) chunkIndex(h uint64) int {
	return int(h & uint64(len(lc.chunks)-1))
}

// Get looks up a page: hash once, find the entry, lazily validate it
// against the modification log, and bump its access counter on a hit.
func (lc *ListCache[I]) Get(key []byte) (Handle[I], bool) {
	h := lc.hasher.hash(key)
	idx := lc.chunkIndex(h)
	c := lc.chunks[idx]

	e, ok := c.find(key)
	if !ok {
		lc.cfg.Metrics.Miss()
		return Handle[I]{}, false
	}

	cachedAt := time.Unix(0, e.cachedAt)
	if lc.log.HasSince(cachedAt) {
		bit := uint64(1) << uint(idx)
		stale := false
		lc.log.ForEach(func(mod modlog.Mod, bitmap uint64) {
			if stale || bitmap&bit == 0 {
				return
			}
			if !mod.ModifiedAt.After(cachedAt) {
				return
			}
			if modAffects(e.bounds, e.sortField, mod) {
				stale = true
			}
		})
		if stale {
			c.removeIfSame(key, e)
			lc.cfg.Metrics.Miss()
			return Handle[I]{}, false
		}
	}

	e.accessCount.Add(1)
	lc.cfg.Metrics.Hit()
	return Handle[I]{e: e}, true
}

// PutInput bundles the fields needed to store a new page.
type PutInput[I any] struct {
	Key                []byte
	Items              []I
	Bounds             Bounds
	SortField          int
	ConstructionCostUs int64
	MemoryUsage        int64
}

// Put stores a new page. On replace, the previous access count carries
// forward with an update penalty (halved); items are never merged, only
// replaced wholesale.
func (lc *ListCache[I]) Put(in PutInput[I]) {
	h := lc.hasher.hash(in.Key)
	idx := lc.chunkIndex(h)
	c := lc.chunks[idx]

	var prevAccess uint64
	if old, ok := c.find(in.Key); ok {
		prevAccess = old.accessCount.Load() / 2
	}

	e := new(entry[I])
	e.key = in.Key
	e.items = in.Items
	e.bounds = in.Bounds
	e.sortField = in.SortField
	e.cachedAt = time.Now().UnixNano()
	e.resultCount = len(in.Items)
	e.constructionCostUs = in.ConstructionCostUs
	e.memoryUsage = in.MemoryUsage
	e.ttl = lc.cfg.TTL
	e.accessCount.Store(prevAccess + 1)

	c.m.Store(string(in.Key), e)
	lc.cfg.Metrics.Store()

	if h&(lc.cfg.CleanupDenominator-1) == 0 {
		lc.TrySweep()
	}
}

// TrySweep advances the cleanup cursor and sweeps exactly one chunk.
func (lc *ListCache[I]) TrySweep() {
	cutoff := time.Now()
	idx := int(lc.cursor.Add(1)-1) % len(lc.chunks)
	lc.sweepChunk(idx, cutoff)
}

// sweepChunk walks a single chunk: decay access counters, score against
// the GDSF histogram, evict on TTL/GDSF/modification match, then drain
// the chunk's bit in the modification log.
func (lc *ListCache[I]) sweepChunk(idx int, cutoff time.Time) {
	c := lc.chunks[idx]
	threshold := lc.hist.threshold()
	bit := uint64(1) << uint(idx)

	c.cleanup(func(e *entry[I]) (bool, string) {
		decayed := float64(e.accessCount.Load()) * lc.cfg.DecayRate
		e.accessCount.Store(uint64(decayed))

		score := e.score()
		lc.hist.record(score)

		if e.expired(cutoff) {
			return true, "ttl"
		}
		if score < threshold {
			return true, "gdsf"
		}
		affected := false
		lc.log.ForEach(func(mod modlog.Mod, bitmap uint64) {
			if affected || bitmap&bit == 0 {
				return
			}
			if modAffects(e.bounds, e.sortField, mod) {
				affected = true
			}
		})
		if affected {
			return true, "modification"
		}
		return false, ""
	}, lc.cfg.Metrics.Evict)

	lc.log.DrainChunk(cutoff, idx)
	lc.cfg.Metrics.Sweep()
}

// Purge sweeps every chunk and then drains the modification log in a
// single pass, resetting the GDSF histogram first (see the reset note in
// gdsf.go).
func (lc *ListCache[I]) Purge() {
	lc.hist.reset()
	cutoff := time.Now()
	for idx := range lc.chunks {
		lc.sweepChunk(idx, cutoff)
	}
	lc.log.Drain(cutoff)
}

// modAffects applies the range predicate appropriate to mod's kind against
// the sort-field value it carries for sortField.
func modAffects(b Bounds, sortField int, mod modlog.Mod) bool {
	switch mod.Kind {
	case modlog.Created:
		return bounds.Affects(b.Header, b.Absent, mod.New[sortField])
	case modlog.Deleted:
		return bounds.Affects(b.Header, b.Absent, mod.Old[sortField])
	case modlog.Updated:
		return bounds.AffectsUpdate(b.Header, b.Absent, mod.Old[sortField], mod.New[sortField])
	default:
		return true
	}
}
