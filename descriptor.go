package dlist

import (
	"strconv"

	"github.com/jcailloux/relais-sub002/pkg/keybuilder"
)

// CompareOp is the comparison a declared filter applies between a query's
// supplied value and the column it maps to.
//
// The vocabulary is intentionally small and fixed -- every filter is one
// of these six comparisons against one declared column, never an arbitrary
// SQL predicate, so the cache can reason about filters by value equality
// alone.
type CompareOp uint8

const (
	OpEQ CompareOp = iota
	OpNE
	OpGT
	OpGE
	OpLT
	OpLE
)

func (op CompareOp) String() string {
	switch op {
	case OpEQ:
		return "="
	case OpNE:
		return "!="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	default:
		return "?"
	}
}

// FilterDef declares one filterable field on an entity type E.
type FilterDef[E any] struct {
	// Name is the external (HTTP parameter / descriptor lookup) name.
	Name string
	// Kind selects the wire encoding the key builder uses for this
	// filter's value.
	Kind keybuilder.Kind
	// Op is the fixed comparison this filter applies.
	Op CompareOp
	// Required marks a filter that must be supplied for a query to be
	// considered valid under strict parsing.
	Required bool
	// Column is the backing SQL column, used by the query-building layer
	// (datastore/postgres), not by the cache core itself.
	Column string
	// Value extracts this filter's value from an entity. The core
	// invalidation decision never calls it (the range predicate only
	// reasons about sort values, see [pkg/bounds]), but it is kept on
	// the descriptor so a caller building a write-path notification can
	// read an entity's filter value as a [keybuilder.Value] of this Kind.
	Value func(e E) keybuilder.Value
}

// SortDef declares one sortable field on an entity type E.
type SortDef[E any] struct {
	// Name is the external (HTTP `sort=name:dir` / descriptor lookup) name.
	Name string
	// DefaultDirection is used when a query requests this sort field
	// without specifying a direction.
	DefaultDirection keybuilder.Direction
	// Column is the backing SQL column.
	Column string
	// Value extracts this sort field's int64 value from an entity. Every
	// declared sort must map onto a signed 64-bit integer; that is what
	// the wire header and the range predicate operate on.
	Value func(e E) int64
}

// Descriptor is the compile-time declaration of an entity type's filter
// and sort vocabulary.
//
// A Descriptor is built once per entity type at startup (see [NewDescriptor])
// and never consulted in the hot lookup path itself -- it only supplies the
// closures the key builder and query layer use to turn entities and HTTP
// parameters into [keybuilder.Value]s. Generic instantiation per entity
// type was chosen over a registry of function tables because Go's generics
// already give the per-type specialization for free, with no per-call
// dynamic dispatch inside lookups.
type Descriptor[E any] struct {
	Filters []FilterDef[E]
	Sorts   []SortDef[E]
	// ID extracts an entity's identifier, used as the cursor's
	// tiebreaker.
	ID func(e E) string
}

// NewDescriptor validates and returns a Descriptor. It panics on a
// malformed declaration (no sorts, or a sort whose Value is nil) since
// these are programmer errors caught once at startup, not runtime
// conditions a caller should have to handle.
func NewDescriptor[E any](filters []FilterDef[E], sorts []SortDef[E], id func(E) string) Descriptor[E] {
	if len(sorts) == 0 {
		panic("dlist: a descriptor must declare at least one sort")
	}
	for i, s := range sorts {
		if s.Value == nil {
			panic("dlist: sort " + s.Name + " at index " + strconv.Itoa(i) + " has no Value accessor")
		}
	}
	if id == nil {
		panic("dlist: a descriptor must declare an ID accessor")
	}
	return Descriptor[E]{Filters: filters, Sorts: sorts, ID: id}
}

// SortValues returns e's value for every declared sort field, in
// declaration order -- the shape [pkg/modlog.Mod] expects for Old/New.
func (d Descriptor[E]) SortValues(e E) []int64 {
	out := make([]int64, len(d.Sorts))
	for i, s := range d.Sorts {
		out[i] = s.Value(e)
	}
	return out
}

// SortIndex returns the declaration index of the sort field named name, or
// -1 if none matches.
func (d Descriptor[E]) SortIndex(name string) int {
	for i, s := range d.Sorts {
		if s.Name == name {
			return i
		}
	}
	return -1
}

// FilterIndex returns the declaration index of the filter field named
// name, or -1 if none matches.
func (d Descriptor[E]) FilterIndex(name string) int {
	for i, f := range d.Filters {
		if f.Name == name {
			return i
		}
	}
	return -1
}
