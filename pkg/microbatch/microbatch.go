// Package microbatch batches redis commands so a write-path fan-out (one
// selective invalidation per tracked group, say) costs a bounded number of
// round-trips instead of one per group.
package microbatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jcailloux/relais-sub002/internal/ringbuf"
)

// Cmd enqueues one command onto a pipeline. The command's reply is
// discarded; microbatch callers are best-effort by construction.
type Cmd func(ctx context.Context, pipe redis.Pipeliner)

// Flush creates batches limited by the configured batch size.
type Flush struct {
	// the client batches are sent on
	rdb redis.Cmdable
	// the current queued commands, pooled and bounded
	queue *ringbuf.Buf[Cmd]
	// the total number of commands sent
	total int
	// the timeout specified for a batch round-trip
	timeout time.Duration
}

// NewFlush returns a new micro batcher sending pipelines over rdb.
//
// batchSize is rounded to a power of two in [2, 64] (the ring buffer's
// pooling bounds); <= 1 picks a size from the runtime's processor count.
func NewFlush(rdb redis.Cmdable, batchSize int, timeout time.Duration) *Flush {
	if timeout == 0 {
		timeout = time.Minute
	}
	if batchSize > 1 {
		batchSize = ringbuf.GuessFunc(batchSize)
	}
	return &Flush{
		rdb:     rdb,
		queue:   ringbuf.GetBuf[Cmd](batchSize),
		timeout: timeout,
	}
}

// Queue enqueues a command into the current batch.
//
// When Queue is called all queued commands may be sent if the configured
// batch size is reached.
func (f *Flush) Queue(ctx context.Context, cmd Cmd) error {
	if f.queue.Full() {
		if err := f.sendBatch(ctx); err != nil {
			return fmt.Errorf("failed to flush batch when queueing command: %w", err)
		}
	}
	f.queue.Push(cmd)
	return nil
}

// Done submits any queued commands and returns the queue's backing buffer
// to its pool.
//
// Done MUST be called once the caller has queued everything to ensure the
// batches are properly flushed; the Flush must not be used afterward.
func (f *Flush) Done(ctx context.Context) error {
	q := f.queue
	defer func() {
		ringbuf.PutBuf(q)
		f.queue = nil
	}()
	if q.Empty() {
		return nil
	}
	return f.sendBatch(ctx)
}

// Total reports the number of commands sent so far, including ones flushed
// before Done.
func (f *Flush) Total() int { return f.total }

// sendBatch drains the queue onto a single pipeline and executes it under
// the configured timeout.
func (f *Flush) sendBatch(ctx context.Context) error {
	tctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	n := f.queue.Len()
	pipe := f.rdb.Pipeline()
	for cmd := range f.queue.All() {
		cmd(tctx, pipe)
	}
	if _, err := pipe.Exec(tctx); err != nil && err != redis.Nil {
		return fmt.Errorf("failed in batch of %d commands: %w", n, err)
	}
	f.total += n
	return nil
}
