package dlist

import "context"

// Source is the database side of a repository: everything the cache layer
// needs from the backing store, and nothing else. The postgres
// implementation lives in [datastore/postgres]; tests substitute their own.
type Source[E any] interface {
	// SelectPage returns one page of entities for q, over-fetched by one
	// row past q.Limit so the cache can mark the page complete or
	// incomplete without a second query.
	SelectPage(ctx context.Context, q Query) ([]E, error)

	// GetByID returns the entity identified by id, reporting found=false
	// for a clean not-found.
	GetByID(ctx context.Context, id string) (e E, found bool, err error)

	// Insert writes e as a new row.
	Insert(ctx context.Context, e E) error

	// Update replaces the row identified by id with e's values, returning
	// the previous entity so the caller can compute old sort values.
	Update(ctx context.Context, id string, e E) (old E, found bool, err error)

	// Patch applies a partial column update, returning both the previous
	// and resulting entity.
	Patch(ctx context.Context, id string, fields map[string]any) (old, cur E, found bool, err error)

	// Delete removes the row identified by id, returning the previous
	// entity.
	Delete(ctx context.Context, id string) (old E, found bool, err error)
}

// List is one page of query results.
//
// A List backed by an L1 hit borrows the cached page through a guarded
// handle; Release ends the borrow. Holding a List (or the slice returned
// by Items) keeps the page's memory stable even if a concurrent writer
// evicts it from the cache. Release is a no-op for pages that did not come
// from L1, so callers treat every List the same way.
type List[E any] struct {
	items   []E
	release func()
}

// Items returns the page's entities. The returned slice must not be
// mutated.
func (l List[E]) Items() []E { return l.items }

// Len returns the number of entities on the page.
func (l List[E]) Len() int { return len(l.items) }

// Release ends the caller's borrow of the underlying cached page.
func (l List[E]) Release() {
	if l.release != nil {
		l.release()
	}
}
