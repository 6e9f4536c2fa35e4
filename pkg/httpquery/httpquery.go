// Package httpquery turns one request's parameter map into a [dlist.Query]
// against a descriptor's declared filter and sort vocabulary.
//
// Two modes. Strict parsing returns a tagged [*ParseError] on the first
// offending parameter; non-strict parsing silently drops the offending
// parameter and keeps going. Both produce a Query whose filter values are
// aligned with the descriptor's declaration order, ready for the canonical
// key builder.
package httpquery

import (
	"fmt"
	"strconv"
	"strings"

	dlist "github.com/jcailloux/relais-sub002"
	"github.com/jcailloux/relais-sub002/pkg/cursor"
	"github.com/jcailloux/relais-sub002/pkg/keybuilder"
)

// MaxStringValue caps the byte length of a string filter value; anything
// longer is dropped (non-strict) or rejected (strict).
const MaxStringValue = 256

// Kind tags a [ParseError] with what was wrong.
type Kind uint8

const (
	InvalidFilter Kind = iota
	InvalidSort
	InvalidLimit
	ConflictingPagination
)

func (k Kind) String() string {
	switch k {
	case InvalidFilter:
		return "invalid filter"
	case InvalidSort:
		return "invalid sort"
	case InvalidLimit:
		return "invalid limit"
	case ConflictingPagination:
		return "conflicting pagination"
	default:
		return "unknown"
	}
}

// ParseError is the value-carrying failure strict parsing returns.
type ParseError struct {
	Kind   Kind
	Param  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("httpquery: %s: parameter %q: %s", e.Kind, e.Param, e.Reason)
}

// Options configures a parse.
type Options struct {
	// Strict selects error-on-first-offense over drop-and-continue.
	Strict bool
	// LimitAllowList, when non-empty, is the set of limits strict mode
	// accepts. Non-strict mode ignores it and clamps instead.
	LimitAllowList []int
}

// Parse builds a Query for d from one request's parameters.
//
// Recognized parameters: "sort" ("<field>[:asc|:desc]", direction
// defaulting to desc), "limit", "after" (opaque cursor), "offset", and
// every declared filter by name. Unrecognized parameters are ignored in
// both modes; they belong to the surrounding HTTP layer, not the cache.
func Parse[E any](d dlist.Descriptor[E], params map[string]string, opts Options) (dlist.Query, error) {
	var q dlist.Query
	q.Filters = make([]keybuilder.Value, len(d.Filters))
	q.Limit = dlist.MaxLimit

	for i, def := range d.Filters {
		raw, ok := params[def.Name]
		if !ok {
			if def.Required && opts.Strict {
				return q, &ParseError{Kind: InvalidFilter, Param: def.Name, Reason: "required filter missing"}
			}
			continue
		}
		v, err := parseFilterValue(def.Kind, raw)
		if err != nil {
			if opts.Strict {
				return q, &ParseError{Kind: InvalidFilter, Param: def.Name, Reason: err.Error()}
			}
			continue
		}
		q.Filters[i] = v
	}

	if raw, ok := params["sort"]; ok {
		s, err := parseSort(d, raw)
		if err != nil {
			if opts.Strict {
				return q, err
			}
		} else {
			q.Sort = s
		}
	}

	if raw, ok := params["limit"]; ok {
		n, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			if opts.Strict {
				return q, &ParseError{Kind: InvalidLimit, Param: "limit", Reason: "not an integer"}
			}
		case opts.Strict && len(opts.LimitAllowList) > 0:
			if !contains(opts.LimitAllowList, n) {
				return q, &ParseError{Kind: InvalidLimit, Param: "limit", Reason: "not an allowed page size"}
			}
			q.Limit = n
		case opts.Strict:
			if n < dlist.MinLimit || n > dlist.MaxLimit {
				return q, &ParseError{Kind: InvalidLimit, Param: "limit", Reason: "out of range"}
			}
			q.Limit = n
		default:
			q.Limit = clamp(n, dlist.MinLimit, dlist.MaxLimit)
		}
	}

	after, hasAfter := params["after"]
	offset, hasOffset := params["offset"]
	if hasAfter && hasOffset && opts.Strict {
		return q, &ParseError{Kind: ConflictingPagination, Param: "offset", Reason: "cursor and offset are mutually exclusive"}
	}
	if hasAfter {
		pos, err := cursor.Default.Decode([]byte(after))
		if err != nil {
			if opts.Strict {
				return q, &ParseError{Kind: ConflictingPagination, Param: "after", Reason: "undecodable cursor"}
			}
		} else {
			q.Cursor = []byte(after)
			q.CursorPos = &pos
		}
	}
	if hasOffset && len(q.Cursor) == 0 {
		n, err := strconv.ParseUint(offset, 10, 32)
		if err != nil {
			if opts.Strict {
				return q, &ParseError{Kind: ConflictingPagination, Param: "offset", Reason: "not a non-negative integer"}
			}
		} else {
			q.Offset = n
		}
	}

	return q, nil
}

func parseFilterValue(kind keybuilder.Kind, raw string) (keybuilder.Value, error) {
	switch kind {
	case keybuilder.KindInt64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return keybuilder.Value{}, fmt.Errorf("not an integer")
		}
		return keybuilder.Int64Value(n), nil
	case keybuilder.KindString:
		if len(raw) > MaxStringValue {
			return keybuilder.Value{}, fmt.Errorf("longer than %d bytes", MaxStringValue)
		}
		return keybuilder.StringValue(raw), nil
	default:
		return keybuilder.Value{}, fmt.Errorf("unhandled filter kind")
	}
}

func parseSort[E any](d dlist.Descriptor[E], raw string) (keybuilder.Sort, *ParseError) {
	name := raw
	dir := keybuilder.Desc
	if i := strings.LastIndexByte(raw, ':'); i >= 0 {
		name = raw[:i]
		switch raw[i+1:] {
		case "asc":
			dir = keybuilder.Asc
		case "desc":
			dir = keybuilder.Desc
		default:
			return keybuilder.Sort{}, &ParseError{Kind: InvalidSort, Param: "sort", Reason: "direction must be asc or desc"}
		}
	}
	idx := d.SortIndex(name)
	if idx < 0 {
		return keybuilder.Sort{}, &ParseError{Kind: InvalidSort, Param: "sort", Reason: "undeclared sort field"}
	}
	return keybuilder.Sort{Present: true, Field: idx, Direction: dir}, nil
}

func contains(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}

func clamp(n, lo, hi int) int {
	switch {
	case n < lo:
		return lo
	case n > hi:
		return hi
	}
	return n
}
