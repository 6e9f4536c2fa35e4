package dlist

import (
	"sync/atomic"

	"github.com/jcailloux/relais-sub002/pkg/cachestats"
)

// CacheStats aggregates one repository cache's counters. It is handed to
// the L1 tier as its metrics sink and read back out as a
// [cachestats.Stat] snapshot on every scrape; all fields are atomics, so
// the hot path pays one relaxed add per event.
type CacheStats struct {
	hits     atomic.Uint64
	misses   atomic.Uint64
	stores   atomic.Uint64
	sweeps   atomic.Uint64
	dbErrors atomic.Uint64

	evictTTL   atomic.Uint64
	evictGDSF  atomic.Uint64
	evictMod   atomic.Uint64
	evictOther atomic.Uint64
}

func (s *CacheStats) Hit()   { s.hits.Add(1) }
func (s *CacheStats) Miss()  { s.misses.Add(1) }
func (s *CacheStats) Store() { s.stores.Add(1) }
func (s *CacheStats) Sweep() { s.sweeps.Add(1) }

func (s *CacheStats) Evict(reason string) {
	switch reason {
	case "ttl":
		s.evictTTL.Add(1)
	case "gdsf":
		s.evictGDSF.Add(1)
	case "modification":
		s.evictMod.Add(1)
	default:
		s.evictOther.Add(1)
	}
}

func (s *CacheStats) dbError() { s.dbErrors.Add(1) }

// snapshot renders the counters for a scrape; entries and trackedMods are
// sampled by the caller since they live on the cache tiers themselves.
func (s *CacheStats) snapshot(entries, trackedMods int) cachestats.Stat {
	ev := map[string]uint64{
		"ttl":          s.evictTTL.Load(),
		"gdsf":         s.evictGDSF.Load(),
		"modification": s.evictMod.Load(),
	}
	if n := s.evictOther.Load(); n > 0 {
		ev["other"] = n
	}
	return cachestats.Stat{
		Hits:        s.hits.Load(),
		Misses:      s.misses.Load(),
		Stores:      s.stores.Load(),
		Sweeps:      s.sweeps.Load(),
		DBErrors:    s.dbErrors.Load(),
		Evictions:   ev,
		Entries:     uint64(entries),
		TrackedMods: uint64(trackedMods),
	}
}
