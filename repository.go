package dlist

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jcailloux/relais-sub002/internal/cache"
	"github.com/jcailloux/relais-sub002/internal/l1"
	"github.com/jcailloux/relais-sub002/internal/l2"
	"github.com/jcailloux/relais-sub002/pkg/bounds"
	"github.com/jcailloux/relais-sub002/pkg/cachestats"
	"github.com/jcailloux/relais-sub002/pkg/cursor"
	"github.com/jcailloux/relais-sub002/pkg/keybuilder"
	"github.com/jcailloux/relais-sub002/pkg/microbatch"
	"github.com/jcailloux/relais-sub002/pkg/modlog"
	"github.com/jcailloux/relais-sub002/pkg/serialize"
	"github.com/jcailloux/relais-sub002/toolkit/log"
)

// Format selects the payload encoding used for L2 page values. Readers
// detect the format from this configuration, never by inspecting bytes.
type Format uint8

const (
	FormatJSON Format = iota
	FormatBinary
)

// Config tunes one repository's cache tiers. The zero value is usable.
type Config struct {
	// ChunkBits is k in "2^k L1 chunks"; the resulting chunk count must
	// land in [2, 64]. Zero selects 16 chunks.
	ChunkBits uint
	// L1TTL caps the age of an L1 page regardless of its score. Zero
	// disables TTL eviction.
	L1TTL time.Duration
	// L2TTL is applied to every stored L2 page value. Zero stores without
	// expiry.
	L2TTL time.Duration
	// TrackingTTL is the L2 tracking sets' create-time expiry; see
	// [internal/l2.Store]. Zero keeps the Store's default.
	TrackingTTL time.Duration
	// Format selects the L2 payload encoding.
	Format Format
	// InvalidationBatch bounds how many selective-invalidation script
	// calls ride in one pipeline during the write-path fan-out. Zero
	// selects 16.
	InvalidationBatch int
}

func (c Config) withDefaults() Config {
	if c.InvalidationBatch <= 0 {
		c.InvalidationBatch = 16
	}
	return c
}

// tier is the per-repository singleton state: every Repository constructed
// with the same name shares one modification log, one L1 map, and one L2
// store, no matter how many times it is wired up.
type tier struct {
	log   *modlog.Log
	lc    any // *l1.ListCache[E]
	store *l2.Store
	stats *CacheStats
}

var tiers cache.Registry[string, tier]

// Repository is the read-through, write-around cached repository for one
// entity type: L1 in-process, L2 in a remote key-value store, the database
// behind both.
type Repository[E any] struct {
	name string
	desc Descriptor[E]
	src  Source[E]
	rdb  redis.Cmdable

	log   *modlog.Log
	lc    *l1.ListCache[E]
	store *l2.Store
	stats *CacheStats

	format Format
	l2TTL  time.Duration
	batch  int

	closed atomic.Bool
}

// NewRepository wires a Repository for the descriptor's entity type.
//
// name namespaces every L2 key and identifies the repository's singleton
// cache tiers: calling NewRepository twice with the same name returns two
// handles over the same caches. A name must therefore map to exactly one
// entity type for the life of the process.
func NewRepository[E any](name string, desc Descriptor[E], src Source[E], rdb redis.Cmdable, cfg Config) (*Repository[E], error) {
	cfg = cfg.withDefaults()
	t, err := tiers.Get(context.Background(), name, func(_ context.Context, name string) (*tier, error) {
		stats := &CacheStats{}
		chunkBits := cfg.ChunkBits
		if chunkBits == 0 {
			chunkBits = 4
		}
		mlog := modlog.New(1<<chunkBits, 0)
		lc := l1.NewListCache[E](mlog, l1.Config{
			ChunkBits: chunkBits,
			TTL:       cfg.L1TTL,
			Metrics:   stats,
		})
		store := l2.NewStore(rdb, name)
		if cfg.TrackingTTL > 0 {
			store.TrackingTTL = cfg.TrackingTTL
		}
		return &tier{log: mlog, lc: lc, store: store, stats: stats}, nil
	})
	if err != nil {
		return nil, err
	}
	lc, ok := t.lc.(*l1.ListCache[E])
	if !ok {
		return nil, fmt.Errorf("dlist: repository %q already registered with a different entity type", name)
	}
	return &Repository[E]{
		name:   name,
		desc:   desc,
		src:    src,
		rdb:    rdb,
		log:    t.log,
		lc:     lc,
		store:  t.store,
		stats:  t.stats,
		format: cfg.Format,
		l2TTL:  cfg.L2TTL,
		batch:  cfg.InvalidationBatch,
	}, nil
}

// resolve validates q against the descriptor and canonicalizes it: the
// limit is clamped, an absent sort clause becomes the first declared sort
// with its default direction (so the two spellings share a group key), and
// a raw cursor is decoded if the caller hasn't already.
func (r *Repository[E]) resolve(q Query) (Query, error) {
	if len(q.Filters) == 0 {
		q.Filters = make([]keybuilder.Value, len(r.desc.Filters))
	}
	if len(q.Filters) != len(r.desc.Filters) {
		return q, ErrUnknownFilter
	}
	if q.Sort.Present {
		if q.Sort.Field < 0 || q.Sort.Field >= len(r.desc.Sorts) {
			return q, ErrUnknownSort
		}
	} else {
		q.Sort = keybuilder.Sort{
			Present:   true,
			Field:     0,
			Direction: r.desc.Sorts[0].DefaultDirection,
		}
	}
	q = q.normalized()
	if len(q.Cursor) > 0 && q.CursorPos == nil {
		pos, err := cursor.Default.Decode(q.Cursor)
		if err != nil {
			return q, fmt.Errorf("dlist: %w", err)
		}
		q.CursorPos = &pos
	}
	return q, nil
}

// Query returns one page of entities for q, reading through L1, L2, and
// the database in that order. Cache failures of any kind degrade to a
// database query, and a database failure degrades to an error-free empty
// page; only invalid input surfaces as an error.
func (r *Repository[E]) Query(ctx context.Context, q Query) (List[E], error) {
	if r.closed.Load() {
		return List[E]{}, ErrClosed
	}
	q, err := r.resolve(q)
	if err != nil {
		return List[E]{}, err
	}
	pageKey := q.PageKey()

	if h, ok := r.lc.Get(pageKey); ok {
		return List[E]{items: h.Items(), release: h.Release}, nil
	}

	if items, ok := r.fromL2(ctx, q, pageKey); ok {
		return List[E]{items: items}, nil
	}

	items, _ := r.fill(ctx, q, pageKey)
	return List[E]{items: items}, nil
}

// fromL2 attempts the remote tier: on a hit the page is decoded, promoted
// into L1 with the L2 read time as its construction cost, and returned.
func (r *Repository[E]) fromL2(ctx context.Context, q Query, pageKey []byte) ([]E, bool) {
	start := time.Now()
	raw, found, err := r.store.Get(ctx, pageKey)
	if err != nil {
		log.Logger(ctx).Warn("list cache: l2 read failed", "repository", r.name, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	hdr, ok := bounds.Decode(raw)
	payload := raw
	if ok {
		payload = raw[bounds.HeaderSize:]
	}
	items, err := r.codec().Decode(payload)
	if err != nil {
		log.Logger(ctx).Warn("list cache: corrupt l2 payload", "repository", r.name, "error", err)
		return nil, false
	}
	r.lc.Put(l1.PutInput[E]{
		Key:                pageKey,
		Items:              items,
		Bounds:             l1.Bounds{Header: hdr, Absent: !ok},
		SortField:          q.Sort.Field,
		ConstructionCostUs: time.Since(start).Microseconds(),
		MemoryUsage:        int64(len(raw)),
	})
	return items, true
}

// fill is the cache-miss path: query the database, compute the page's sort
// bounds, store the page in L2 (header-prefixed) and L1, and return it.
func (r *Repository[E]) fill(ctx context.Context, q Query, pageKey []byte) ([]E, []byte) {
	start := time.Now()
	rows, err := r.src.SelectPage(ctx, q)
	if err != nil {
		r.stats.dbError()
		log.Logger(ctx).Error("list cache: database query failed", "repository", r.name, "error", err)
		return nil, nil
	}
	// Strictly fewer items than requested marks the page incomplete; an
	// exactly-full last page is complete, the over-fetched row only tells
	// the caller whether a next page exists.
	incomplete := len(rows) < q.Limit
	items := rows
	if len(items) > q.Limit {
		items = items[:q.Limit]
	}

	payload, err := r.codec().Encode(items)
	if err != nil {
		log.Logger(ctx).Error("list cache: payload encoding failed", "repository", r.name, "error", err)
		return items, nil
	}

	b := r.boundsFor(q, items, incomplete)
	raw := payload
	if !b.Absent {
		hdr := bounds.Encode(b.Header)
		raw = append(hdr[:], payload...)
	}
	if err := r.store.Put(ctx, pageKey, q.GroupKey(), q.Sort.Field, raw, r.l2TTL); err != nil {
		log.Logger(ctx).Warn("list cache: l2 store failed", "repository", r.name, "error", err)
	}

	r.lc.Put(l1.PutInput[E]{
		Key:                pageKey,
		Items:              items,
		Bounds:             b,
		SortField:          q.Sort.Field,
		ConstructionCostUs: time.Since(start).Microseconds(),
		MemoryUsage:        int64(len(raw)),
	})
	return items, payload
}

// boundsFor derives the page's sort-bounds header. An empty page gets no
// header at all (Absent), matching the wire format's convention.
func (r *Repository[E]) boundsFor(q Query, items []E, incomplete bool) l1.Bounds {
	if len(items) == 0 {
		return l1.Bounds{Absent: true}
	}
	val := r.desc.Sorts[q.Sort.Field].Value
	return l1.Bounds{Header: bounds.Header{
		FirstValue:      val(items[0]),
		LastValue:       val(items[len(items)-1]),
		Desc:            q.Sort.Direction == keybuilder.Desc,
		FirstPage:       q.IsFirstPage(),
		Incomplete:      incomplete,
		CursorPaginated: q.UsesCursor(),
	}}
}

// QueryJSON returns the page serialized as JSON. When the repository's L2
// format is JSON, an L2 hit returns the stored payload with its 19-byte
// header skipped, no re-encoding.
func (r *Repository[E]) QueryJSON(ctx context.Context, q Query) ([]byte, error) {
	return r.querySerialized(ctx, q, FormatJSON)
}

// QueryBinary returns the page in the tagged binary encoding; the L2 hit
// path skips the 19-byte header the same way.
func (r *Repository[E]) QueryBinary(ctx context.Context, q Query) ([]byte, error) {
	return r.querySerialized(ctx, q, FormatBinary)
}

func (r *Repository[E]) querySerialized(ctx context.Context, q Query, want Format) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	q, err := r.resolve(q)
	if err != nil {
		return nil, err
	}
	pageKey := q.PageKey()

	if h, ok := r.lc.Get(pageKey); ok {
		defer h.Release()
		return codecFor[E](want).Encode(h.Items())
	}

	// The L2 value is already serialized; when the stored format is the
	// requested one, the payload passes through untouched.
	raw, found, err := r.store.Get(ctx, pageKey)
	if err != nil {
		log.Logger(ctx).Warn("list cache: l2 read failed", "repository", r.name, "error", err)
	} else if found {
		hdr, ok := bounds.Decode(raw)
		payload := raw
		if ok {
			payload = raw[bounds.HeaderSize:]
		}
		items, derr := r.codec().Decode(payload)
		if derr != nil {
			log.Logger(ctx).Warn("list cache: corrupt l2 payload", "repository", r.name, "error", derr)
		} else {
			r.lc.Put(l1.PutInput[E]{
				Key:       pageKey,
				Items:     items,
				Bounds:    l1.Bounds{Header: hdr, Absent: !ok},
				SortField: q.Sort.Field,
				// Promotion from L2 is nearly free; score it that way.
				ConstructionCostUs: 1,
				MemoryUsage:        int64(len(raw)),
			})
			if r.format == want {
				return payload, nil
			}
			return codecFor[E](want).Encode(items)
		}
	}

	items, payload := r.fill(ctx, q, pageKey)
	if r.format == want && payload != nil {
		return payload, nil
	}
	return codecFor[E](want).Encode(items)
}

func (r *Repository[E]) codec() serialize.Codec[E] { return codecFor[E](r.format) }

func codecFor[E any](f Format) serialize.Codec[E] {
	if f == FormatBinary {
		return serialize.Binary[E]{}
	}
	return serialize.JSON[E]{}
}

// Insert writes e to the database, then invalidates: L1 synchronously via
// the modification log, L2 best-effort.
func (r *Repository[E]) Insert(ctx context.Context, e E) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.src.Insert(ctx, e); err != nil {
		return err
	}
	r.NotifyCreated(ctx, e)
	return nil
}

// Update replaces the entity identified by id with e.
func (r *Repository[E]) Update(ctx context.Context, id string, e E) error {
	if r.closed.Load() {
		return ErrClosed
	}
	old, found, err := r.src.Update(ctx, id, e)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoRows
	}
	r.NotifyUpdated(ctx, old, e)
	return nil
}

// Patch applies a partial column update to the entity identified by id.
func (r *Repository[E]) Patch(ctx context.Context, id string, fields map[string]any) error {
	if r.closed.Load() {
		return ErrClosed
	}
	old, cur, found, err := r.src.Patch(ctx, id, fields)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoRows
	}
	r.NotifyUpdated(ctx, old, cur)
	return nil
}

// Erase deletes the entity identified by id.
func (r *Repository[E]) Erase(ctx context.Context, id string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	old, found, err := r.src.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoRows
	}
	r.NotifyDeleted(ctx, old)
	return nil
}

// Invalidate drops every cached page that could contain the entity
// identified by id, without writing to the database. It is meant for
// out-of-band changes the repository did not see itself.
//
// When the entity cannot be read back (deleted out-of-band, or the
// database is unavailable), the sort values it might have moved between
// are unknown, so the whole list cache for this repository is dropped.
func (r *Repository[E]) Invalidate(ctx context.Context, id string) {
	if r.closed.Load() {
		return
	}
	e, found, err := r.src.GetByID(ctx, id)
	if err != nil || !found {
		vals := make([]int64, len(r.desc.Sorts))
		old := make([]int64, len(r.desc.Sorts))
		for i := range vals {
			old[i] = math.MinInt64
			vals[i] = math.MaxInt64
		}
		r.notify(ctx, modlog.Mod{Kind: modlog.Updated, Old: old, New: vals, ModifiedAt: time.Now()})
		if _, err := r.store.InvalidateAllListGroups(ctx); err != nil {
			log.Logger(ctx).Warn("list cache: l2 invalidate-all failed", "repository", r.name, "error", err)
		}
		return
	}
	vals := r.desc.SortValues(e)
	r.notify(ctx, modlog.Mod{Kind: modlog.Updated, Old: vals, New: vals, ModifiedAt: time.Now()})
}

// NotifyCreated records an externally performed create, invalidating the
// affected pages in both tiers. Use it for cross-repository invalidation
// when another component owns the write itself.
func (r *Repository[E]) NotifyCreated(ctx context.Context, e E) {
	r.notify(ctx, modlog.Mod{Kind: modlog.Created, New: r.desc.SortValues(e), ModifiedAt: time.Now()})
}

// NotifyUpdated records an externally performed update from old to cur.
func (r *Repository[E]) NotifyUpdated(ctx context.Context, old, cur E) {
	r.notify(ctx, modlog.Mod{
		Kind:       modlog.Updated,
		Old:        r.desc.SortValues(old),
		New:        r.desc.SortValues(cur),
		ModifiedAt: time.Now(),
	})
}

// NotifyDeleted records an externally performed delete.
func (r *Repository[E]) NotifyDeleted(ctx context.Context, e E) {
	r.notify(ctx, modlog.Mod{Kind: modlog.Deleted, Old: r.desc.SortValues(e), ModifiedAt: time.Now()})
}

// notify appends the modification to the L1 log first -- every subsequent
// lookup sees it synchronously -- then fans the selective invalidation out
// to L2 best-effort.
func (r *Repository[E]) notify(ctx context.Context, mod modlog.Mod) {
	r.log.Notify(mod)
	r.invalidateL2(ctx, mod)
}

// invalidateL2 walks the master set of groups and queues one selective
// invalidation script call per group, batched into pipelines. Every
// failure is logged and swallowed: L2 staleness is bounded by the page
// TTLs, and the synchronous L1 notification has already happened.
func (r *Repository[E]) invalidateL2(ctx context.Context, mod modlog.Mod) {
	if err := r.store.EnsureScript(ctx); err != nil {
		log.Logger(ctx).Warn("list cache: l2 script load failed", "repository", r.name, "error", err)
		return
	}
	groups, err := r.store.Groups(ctx)
	if err != nil {
		log.Logger(ctx).Warn("list cache: l2 group listing failed", "repository", r.name, "error", err)
		return
	}
	if len(groups) == 0 {
		return
	}

	f := microbatch.NewFlush(r.rdb, r.batch, 0)
	for _, g := range groups {
		sf := g.SortField
		if sf < 0 || sf >= len(r.desc.Sorts) {
			sf = 0
		}
		var cmd microbatch.Cmd
		switch mod.Kind {
		case modlog.Created:
			cmd = r.store.QueueInvalidateSelective(g.TrackingKey, mod.New[sf])
		case modlog.Deleted:
			cmd = r.store.QueueInvalidateSelective(g.TrackingKey, mod.Old[sf])
		case modlog.Updated:
			cmd = r.store.QueueInvalidateSelectiveUpdate(g.TrackingKey, mod.Old[sf], mod.New[sf])
		default:
			continue
		}
		if err := f.Queue(ctx, cmd); err != nil {
			log.Logger(ctx).Warn("list cache: l2 invalidation batch failed", "repository", r.name, "error", err)
			break
		}
	}
	if err := f.Done(ctx); err != nil {
		log.Logger(ctx).Warn("list cache: l2 invalidation flush failed", "repository", r.name, "error", err)
	}
}

// NextCursor returns the opaque cursor addressing the page after the one
// holding items, or nil for an empty page.
func (r *Repository[E]) NextCursor(q Query, items []E) []byte {
	if len(items) == 0 {
		return nil
	}
	q, err := r.resolve(q)
	if err != nil {
		return nil
	}
	last := items[len(items)-1]
	return cursor.Default.Encode(cursor.Position{
		Value: r.desc.Sorts[q.Sort.Field].Value(last),
		ID:    r.desc.ID(last),
	})
}

// Purge sweeps every L1 chunk once, evicting the pages that TTL, GDSF
// score or a pending modification condemns, then drains the modification
// log; L1 pages none of those condemn stay cached. The L2 master set is
// walked and every tracked L2 page is deleted best-effort.
func (r *Repository[E]) Purge(ctx context.Context) {
	if r.closed.Load() {
		return
	}
	r.lc.Purge()
	if _, err := r.store.InvalidateAllListGroups(ctx); err != nil {
		log.Logger(ctx).Warn("list cache: l2 invalidate-all failed", "repository", r.name, "error", err)
	}
}

// RunSweeper sweeps one L1 chunk per tick until ctx is cancelled. Sweeps
// also happen probabilistically on stores; the ticker guarantees progress
// on read-mostly workloads where stores are rare.
func (r *Repository[E]) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.lc.TrySweep()
		}
	}
}

// Stat implements [cachestats.Stater].
func (r *Repository[E]) Stat() cachestats.Stat {
	return r.stats.snapshot(r.lc.Len(), r.log.Len())
}

// Close marks the repository closed; subsequent calls to the query and
// write methods return [ErrClosed], and Invalidate and Purge do nothing.
// The shared cache tiers are left intact for other handles on the same
// name.
func (r *Repository[E]) Close() error {
	r.closed.Store(true)
	return nil
}
