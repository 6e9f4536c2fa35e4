package dlist

import "errors"

// Sentinel errors returned by [Repository] methods.
var (
	// ErrClosed is returned by Query, QueryJSON, QueryBinary, Insert,
	// Update, Patch and Erase once Close has been called. Invalidate and
	// Purge do nothing after Close.
	ErrClosed = errors.New("dlist: repository closed")
	// ErrNoRows is returned by Update, Patch and Erase when the data source
	// has no entity with the given id.
	ErrNoRows = errors.New("dlist: no rows")
	// ErrUnknownSort is returned when a Query names a sort field the
	// owning Descriptor did not declare.
	ErrUnknownSort = errors.New("dlist: unknown sort field")
	// ErrUnknownFilter is returned when a Query's Filters do not hold
	// exactly one value per filter the owning Descriptor declares.
	ErrUnknownFilter = errors.New("dlist: unknown filter field")
)
