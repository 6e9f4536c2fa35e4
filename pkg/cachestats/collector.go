// Package cachestats exposes a repository cache's counters as prometheus
// metrics without putting a registry dependency inside the cache tiers
// themselves: the cache hands out a snapshot function, and the Collector
// reads it on every scrape.
package cachestats

import (
	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = (*Collector)(nil)

// Stat is one scrape's worth of cache counters.
//
// The counter fields are cumulative since process start; the gauge fields
// (Entries, TrackedMods) are instantaneous.
type Stat struct {
	Hits   uint64
	Misses uint64
	Stores uint64
	Sweeps uint64
	// Evictions by reason; the keys are the cache's own reason strings
	// ("ttl", "gdsf", "modification").
	Evictions map[string]uint64
	// DBErrors counts list queries that failed against the database and
	// were reported to the caller as an empty page.
	DBErrors uint64
	// Entries is the number of pages currently cached in L1.
	Entries uint64
	// TrackedMods is the number of modifications currently pending in the
	// modification log.
	TrackedMods uint64
}

type statFunc func() Stat

// Collector is a prometheus.Collector over the statistics a list cache
// produces.
type Collector struct {
	name string
	stat statFunc

	hitsDesc        *prometheus.Desc
	missesDesc      *prometheus.Desc
	storesDesc      *prometheus.Desc
	sweepsDesc      *prometheus.Desc
	evictionsDesc   *prometheus.Desc
	dbErrorsDesc    *prometheus.Desc
	entriesDesc     *prometheus.Desc
	trackedModsDesc *prometheus.Desc
}

// Stater is a provider of the Stat() function. Implemented by the
// top-level repository cache.
type Stater interface {
	Stat() Stat
}

// NewCollector creates a new Collector reading from stater, labeled with
// the repository name. A label is required because an application commonly
// runs one cache per repository and registers them all.
func NewCollector(stater Stater, repository string) *Collector {
	fn := func() Stat { return stater.Stat() }
	return newCollector(fn, repository)
}

// NewCollector is an internal only constructor for a Collector. It accepts
// a statFunc which provides a closure for requesting a stats snapshot.
func newCollector(fn statFunc, n string) *Collector {
	return &Collector{
		name: n,
		stat: fn,
		hitsDesc: prometheus.NewDesc(
			"dlist_cache_hits_total",
			"Cumulative count of L1 lookups that returned a live page.",
			staticLabels, nil),
		missesDesc: prometheus.NewDesc(
			"dlist_cache_misses_total",
			"Cumulative count of L1 lookups that returned empty, including pages discarded by lazy invalidation.",
			staticLabels, nil),
		storesDesc: prometheus.NewDesc(
			"dlist_cache_stores_total",
			"Cumulative count of pages stored into L1.",
			staticLabels, nil),
		sweepsDesc: prometheus.NewDesc(
			"dlist_cache_sweeps_total",
			"Cumulative count of chunk sweeps.",
			staticLabels, nil),
		evictionsDesc: prometheus.NewDesc(
			"dlist_cache_evictions_total",
			"Cumulative count of pages evicted during sweeps, by reason.",
			[]string{"repository", "reason"}, nil),
		dbErrorsDesc: prometheus.NewDesc(
			"dlist_cache_db_errors_total",
			"Cumulative count of list queries that failed against the database and returned an empty page.",
			staticLabels, nil),
		entriesDesc: prometheus.NewDesc(
			"dlist_cache_entries",
			"Number of pages currently cached in L1.",
			staticLabels, nil),
		trackedModsDesc: prometheus.NewDesc(
			"dlist_cache_tracked_modifications",
			"Number of modifications currently pending in the modification log.",
			staticLabels, nil),
	}
}

var staticLabels = []string{"repository"}

// Describe implements the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements the prometheus.Collector interface.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	s := c.stat()
	metrics <- prometheus.MustNewConstMetric(
		c.hitsDesc,
		prometheus.CounterValue,
		float64(s.Hits),
		c.name,
	)
	metrics <- prometheus.MustNewConstMetric(
		c.missesDesc,
		prometheus.CounterValue,
		float64(s.Misses),
		c.name,
	)
	metrics <- prometheus.MustNewConstMetric(
		c.storesDesc,
		prometheus.CounterValue,
		float64(s.Stores),
		c.name,
	)
	metrics <- prometheus.MustNewConstMetric(
		c.sweepsDesc,
		prometheus.CounterValue,
		float64(s.Sweeps),
		c.name,
	)
	for reason, n := range s.Evictions {
		metrics <- prometheus.MustNewConstMetric(
			c.evictionsDesc,
			prometheus.CounterValue,
			float64(n),
			c.name,
			reason,
		)
	}
	metrics <- prometheus.MustNewConstMetric(
		c.dbErrorsDesc,
		prometheus.CounterValue,
		float64(s.DBErrors),
		c.name,
	)
	metrics <- prometheus.MustNewConstMetric(
		c.entriesDesc,
		prometheus.GaugeValue,
		float64(s.Entries),
		c.name,
	)
	metrics <- prometheus.MustNewConstMetric(
		c.trackedModsDesc,
		prometheus.GaugeValue,
		float64(s.TrackedMods),
		c.name,
	)
}
