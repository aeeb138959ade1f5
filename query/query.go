// Package query implements the path-query surface of spec §6: range
// query items, sized queries with limit/offset/direction, and the
// subquery mechanism applied to matched Tree elements.
package query

import "bytes"

// ItemKind discriminates the QueryItem variants of spec §6.
type ItemKind int

const (
	Key ItemKind = iota
	Range
	RangeInclusive
	RangeFrom
	RangeTo
	RangeToInclusive
	RangeAfter
	RangeFull
	RangeAfterTo
	RangeAfterToInclusive
)

// Item is one tagged-union query item. Which of Lower/Upper are
// meaningful, and whether each bound is inclusive, depends on Kind.
type Item struct {
	Kind  ItemKind
	Exact []byte // for Key
	Lower []byte // for Range*
	Upper []byte // for Range*, RangeTo*
}

// ExactKey builds a Key query item.
func ExactKey(k []byte) Item { return Item{Kind: Key, Exact: k} }

// Contains reports whether key falls within this query item.
func (it Item) Contains(key []byte) bool {
	switch it.Kind {
	case Key:
		return bytes.Equal(key, it.Exact)
	case Range:
		return bytes.Compare(key, it.Lower) >= 0 && bytes.Compare(key, it.Upper) < 0
	case RangeInclusive:
		return bytes.Compare(key, it.Lower) >= 0 && bytes.Compare(key, it.Upper) <= 0
	case RangeFrom:
		return bytes.Compare(key, it.Lower) >= 0
	case RangeTo:
		return bytes.Compare(key, it.Upper) < 0
	case RangeToInclusive:
		return bytes.Compare(key, it.Upper) <= 0
	case RangeAfter:
		return bytes.Compare(key, it.Lower) > 0
	case RangeAfterTo:
		return bytes.Compare(key, it.Lower) > 0 && bytes.Compare(key, it.Upper) < 0
	case RangeAfterToInclusive:
		return bytes.Compare(key, it.Lower) > 0 && bytes.Compare(key, it.Upper) <= 0
	case RangeFull:
		return true
	default:
		return false
	}
}

// Bounds returns a lower/upper byte-range bound usable for iterator
// seeking. A nil bound means unbounded in that direction.
// startExclusive reports whether Lower must itself be skipped
// (RangeAfter* variants); upper is exclusive unless UpperInclusive
// reports otherwise.
func (it Item) Bounds() (lower, upper []byte, startExclusive bool) {
	switch it.Kind {
	case Key:
		return it.Exact, nil, false
	case Range, RangeInclusive:
		return it.Lower, it.Upper, false
	case RangeFrom:
		return it.Lower, nil, false
	case RangeTo, RangeToInclusive:
		return nil, it.Upper, false
	case RangeAfter:
		return it.Lower, nil, true
	case RangeAfterTo, RangeAfterToInclusive:
		return it.Lower, it.Upper, true
	case RangeFull:
		return nil, nil, false
	default:
		return nil, nil, false
	}
}

// UpperInclusive reports whether this item's Upper bound is inclusive.
func (it Item) UpperInclusive() bool {
	return it.Kind == RangeInclusive || it.Kind == RangeToInclusive || it.Kind == RangeAfterToInclusive
}

// SizedQuery pairs a list of query items with the size-limiting
// options of spec §6.
type SizedQuery struct {
	Items       []Item
	Limit       *uint16
	Offset      *uint16
	LeftToRight bool

	// Default is the subquery applied to every Tree element matched by
	// Items, unless a per-key override exists in Conditional.
	Default *SizedQuery

	// Conditional maps a matched key (exact bytes) to an override
	// subquery, per spec §6 "per-matched-key conditional subqueries".
	Conditional map[string]*SizedQuery
}

// SubqueryFor returns the subquery that should run against the Tree
// element matched at key, or nil if none is configured.
func (q *SizedQuery) SubqueryFor(key []byte) *SizedQuery {
	if q == nil {
		return nil
	}
	if q.Conditional != nil {
		if sub, ok := q.Conditional[string(key)]; ok {
			return sub
		}
	}
	return q.Default
}
