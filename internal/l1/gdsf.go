package l1

import (
	"sort"
	"sync"
)

// histogram tracks recently observed GDSF scores and derives an eviction
// threshold from a configurable percentile of them.
//
// The histogram resets at the start of each full [ListCache.Purge], not
// per chunk sweep.
// Resetting per chunk-sweep would mean the threshold is computed from a
// single chunk's scores each time, which biases it toward whatever chunk
// happens to be swept most often; accumulating indefinitely would mean an
// old burst of cheap, cold entries permanently depresses the threshold long
// after they're gone. Resetting on a full purge keeps the threshold
// representative of "recent activity across every chunk" without either
// failure mode, and purge is the one operation that already walks every
// chunk in one call, so it is a natural point to start a fresh window.
type histogram struct {
	mu         sync.Mutex
	samples    []float64
	next       int
	percentile float64
}

// defaultHistogramCap bounds the histogram's memory use; it is large enough
// to give a stable percentile estimate without scanning every live entry on
// every sweep.
const defaultHistogramCap = 1024

func newHistogram(percentile float64) *histogram {
	return &histogram{
		samples:    make([]float64, 0, defaultHistogramCap),
		percentile: percentile,
	}
}

// record adds a sample, overwriting the oldest slot in round-robin order
// once the histogram is at capacity.
func (h *histogram) record(score float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) < cap(h.samples) {
		h.samples = append(h.samples, score)
		return
	}
	h.samples[h.next] = score
	h.next = (h.next + 1) % len(h.samples)
}

// threshold returns the score at the configured percentile of the current
// samples, or 0 if no samples have been recorded yet (nothing is evicted on
// GDSF grounds until the histogram has something to compare against).
func (h *histogram) threshold() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), h.samples...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)-1) * h.percentile)
	return sorted[idx]
}

// reset clears the histogram, starting a fresh accumulation window.
func (h *histogram) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = h.samples[:0]
	h.next = 0
}
