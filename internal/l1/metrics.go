package l1

// Metrics receives cache lifecycle events. An implementation is expected to
// be cheap and non-blocking (typically incrementing a prometheus counter);
// ListCache calls these synchronously on the hot path.
//
// Kept as a small interface rather than importing prometheus directly so
// the map stays free of registry plumbing; the top-level package provides
// the real implementation and [pkg/cachestats] exports it.
type Metrics interface {
	Hit()
	Miss()
	Store()
	Evict(reason string)
	Sweep()
}

type noopMetrics struct{}

func (noopMetrics) Hit()         {}
func (noopMetrics) Miss()        {}
func (noopMetrics) Store()       {}
func (noopMetrics) Evict(string) {}
func (noopMetrics) Sweep()       {}

var _ Metrics = noopMetrics{}
