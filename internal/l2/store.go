package l2

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jcailloux/relais-sub002/pkg/bounds"
	"github.com/jcailloux/relais-sub002/pkg/microbatch"
)

// Store is the L2 tier for one repository: a thin wrapper over a redis
// client that applies this package's namespacing and invalidation
// protocol. Every operation is best-effort -- transient errors are
// returned to the caller so the repository layer can log and fall back to
// a cache miss; nothing in this package panics or retries.
type Store struct {
	rdb          redis.Cmdable
	repo         string
	scriptLoaded atomic.Bool

	// TrackingTTL is applied with NX semantics (no renewal) when a
	// tracking set is first created. If the set expires while page
	// entries are still live, a later selective invalidation won't find
	// them, leaving over-cached stale pages until their own TTL; that
	// trade is accepted rather than paying an EXPIRE on every store.
	TrackingTTL time.Duration
}

// NewStore creates a Store namespaced under repo (e.g. the repository's
// table or descriptor name).
func NewStore(rdb redis.Cmdable, repo string) *Store {
	return &Store{rdb: rdb, repo: repo, TrackingTTL: 10 * time.Minute}
}

// Get reads a page's raw value (header + payload) and reports whether the
// key existed. A miss (including one from a transient redis error) is
// reported the same way to the caller: "not found"; a transient error
// must degrade to a miss, never block a read. Callers that need to
// distinguish a real error should check err.
func (s *Store) Get(ctx context.Context, pageKey []byte) (raw []byte, found bool, err error) {
	v, err := s.rdb.Get(ctx, pageKeyName(s.repo, pageKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Put stores a page's raw value (header-prefixed payload), tracks its page
// key under the group's tracking set, adds the group to the repository's
// master set with the sort-field index the group was ordered by, and
// applies ttl to the page entry itself.
func (s *Store) Put(ctx context.Context, pageKey, groupKey []byte, sortField int, raw []byte, ttl time.Duration) error {
	pk := pageKeyName(s.repo, pageKey)
	tk := trackingKeyName(s.repo, groupKey)
	mk := masterSetName(s.repo)

	pipe := s.rdb.TxPipeline()
	if ttl > 0 {
		pipe.Set(ctx, pk, raw, ttl)
	} else {
		pipe.Set(ctx, pk, raw, 0)
	}
	pipe.SAdd(ctx, tk, pk)
	if s.TrackingTTL > 0 {
		pipe.ExpireNX(ctx, tk, s.TrackingTTL)
	}
	pipe.SAdd(ctx, mk, masterMember(sortField, tk))
	_, err := pipe.Exec(ctx)
	return err
}

// GroupRef is one master-set entry: a group's tracking-set key and the
// descriptor sort-field index its pages are ordered by. The index tells a
// selective invalidation which of a modification's sort values to compare
// against the group's page bounds.
type GroupRef struct {
	TrackingKey string
	SortField   int
}

// Groups returns every group currently registered in the repository's
// master set -- the invalidation frontier a write walks when deciding
// which groups might need a selective invalidation round-trip.
func (s *Store) Groups(ctx context.Context) ([]GroupRef, error) {
	members, err := s.rdb.SMembers(ctx, masterSetName(s.repo)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]GroupRef, 0, len(members))
	for _, m := range members {
		ref, ok := parseMasterMember(m)
		if !ok {
			continue
		}
		out = append(out, ref)
	}
	return out, nil
}

// InvalidateGroup deletes every page cached for groupKey and the tracking
// set itself, in one round-trip. Returns the number of pages deleted.
func (s *Store) InvalidateGroup(ctx context.Context, groupKey []byte) (int64, error) {
	tk := trackingKeyName(s.repo, groupKey)
	return s.runScript(ctx, []string{tk}, "group")
}

// InvalidateGroupSelective deletes only the pages in groupKey that
// [pkg/bounds.Affects] would mark affected by a single-value modification
// (a create or delete) at sort value v.
func (s *Store) InvalidateGroupSelective(ctx context.Context, groupKey []byte, v int64) (int64, error) {
	tk := trackingKeyName(s.repo, groupKey)
	return s.runScript(ctx, []string{tk}, "selective", encodeI64(v))
}

// InvalidateGroupSelectiveUpdate is the update-form counterpart of
// [Store.InvalidateGroupSelective], for an entity moving from vOld to vNew.
func (s *Store) InvalidateGroupSelectiveUpdate(ctx context.Context, groupKey []byte, vOld, vNew int64) (int64, error) {
	tk := trackingKeyName(s.repo, groupKey)
	return s.runScript(ctx, []string{tk}, "selective_update", encodeI64(vOld), encodeI64(vNew))
}

// InvalidateAllListGroups walks the master set of groups for the
// repository and deletes every cached page in every group, in one
// round-trip. Returns the total number of pages deleted.
func (s *Store) InvalidateAllListGroups(ctx context.Context) (int64, error) {
	mk := masterSetName(s.repo)
	return s.runScript(ctx, []string{mk}, "all_groups")
}

// EnsureScript loads the invalidation script into the server's script
// cache once per Store, so pipelined EVALSHA calls queued by the Queue*
// helpers cannot hit NOSCRIPT. Safe to call on every write; only the first
// successful call does a round-trip.
func (s *Store) EnsureScript(ctx context.Context) error {
	if s.scriptLoaded.Load() {
		return nil
	}
	if err := script.Load(ctx, s.rdb).Err(); err != nil {
		return err
	}
	s.scriptLoaded.Store(true)
	return nil
}

// QueueInvalidateSelective returns a command that runs the selective
// single-value invalidation for one tracking set as part of a pipeline.
// Callers must have run [Store.EnsureScript] first.
func (s *Store) QueueInvalidateSelective(trackingKey string, v int64) microbatch.Cmd {
	return func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.EvalSha(ctx, script.Hash(), []string{trackingKey}, "selective", encodeI64(v))
	}
}

// QueueInvalidateSelectiveUpdate is the update-form counterpart of
// [Store.QueueInvalidateSelective].
func (s *Store) QueueInvalidateSelectiveUpdate(trackingKey string, vOld, vNew int64) microbatch.Cmd {
	return func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.EvalSha(ctx, script.Hash(), []string{trackingKey}, "selective_update", encodeI64(vOld), encodeI64(vNew))
	}
}

func (s *Store) runScript(ctx context.Context, keys []string, argv ...any) (int64, error) {
	args := make([]any, 0, len(argv))
	args = append(args, argv...)
	res, err := script.Run(ctx, s.rdb, keys, args...).Result()
	if err != nil {
		return 0, err
	}
	n, _ := res.(int64)
	return n, nil
}

// InvalidatePatternSafe is the O(N) fallback, used only when a repository
// can't express the invalidation as a group operation (e.g. recovering
// from a corrupted master/tracking set). It performs an incremental SCAN
// rather than KEYS, deleting matched keys as it goes.
func (s *Store) InvalidatePatternSafe(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := s.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}

// DecodeHeader parses the 19-byte prefix of raw, as stored by [Store.Put].
func DecodeHeader(raw []byte) (bounds.Header, bool) {
	return bounds.Decode(raw)
}

func encodeI64(v int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}
