package grove

import (
	"github.com/dashpay/grove/cost"
	"github.com/dashpay/grove/merk"
	"github.com/dashpay/grove/query"
	"github.com/dashpay/grove/storage"
	"github.com/dashpay/grove/storage/badgerdb"
)

// QueryResult is one element matched by a PathQuery (spec §6 query
// surface), tagged with the path of the subtree it was found in so a
// caller can tell results from different matched subtrees apart when
// subqueries concatenate them.
type QueryResult struct {
	Path    storage.Path
	Key     []byte
	Element Element
}

// PathQuery executes query.SizedQuery against the tree at path,
// honoring item bounds, limit/offset/left_to_right, and default/
// per-key conditional subqueries applied to every matched Tree element
// (spec §6 "Subqueries: ... Results concatenate per matched subtree in
// iteration order"). It runs against a single read-only snapshot of
// the whole grove so concurrent writers cannot produce a result set
// that straddles two different grove states.
func (d *Database) PathQuery(path storage.Path, q *query.SizedQuery) ([]QueryResult, cost.Cost, error) {
	tx := d.Direct()
	defer tx.Discard()
	var c cost.Cost
	results, err := pathQueryAt(tx, path, q, &c)
	if err == nil {
		err = d.checkCeiling(c)
	}
	return results, c, err
}

func pathQueryAt(tx *badgerdb.Transaction, path storage.Path, q *query.SizedQuery, c *cost.Cost) ([]QueryResult, error) {
	ctx := tx.NewContext(path)

	offset := 0
	if q.Offset != nil {
		offset = int(*q.Offset)
	}
	limit := -1
	if q.Limit != nil {
		limit = int(*q.Limit)
	}

	var matched []QueryResult
	skipped := 0
	done := false

	for _, item := range q.Items {
		if done {
			break
		}
		lower, upper := iterBounds(item)
		ic, err := ctx.Iterate(lower, upper, !q.LeftToRight, func(key, nodeBytes []byte) (bool, error) {
			if !item.Contains(key) {
				return true, nil
			}

			n, err := merk.Decode(key, nodeBytes)
			if err != nil {
				return false, err
			}
			elem, err := DecodeElement(n.Value)
			if err != nil {
				return false, err
			}

			if skipped < offset {
				skipped++
				return true, nil
			}

			if elem.IsTreePortal() {
				if sub := q.SubqueryFor(key); sub != nil {
					childPath := path.Append(append([]byte(nil), key...))
					subResults, err := pathQueryAt(tx, childPath, sub, c)
					if err != nil {
						return false, err
					}
					matched = append(matched, subResults...)
				} else {
					matched = append(matched, QueryResult{Path: path, Key: append([]byte(nil), key...), Element: elem})
				}
			} else {
				matched = append(matched, QueryResult{Path: path, Key: append([]byte(nil), key...), Element: elem})
			}

			if limit >= 0 && len(matched) >= limit {
				done = true
				return false, nil
			}
			return true, nil
		})
		c.Add(ic)
		if err != nil {
			return nil, err
		}
	}
	return matched, nil
}

// iterBounds computes a conservative [lower, upper) seek range for
// item, suitable for storage.Context.Iterate; exact semantics
// (exclusive-start RangeAfter* variants, inclusive-end boundaries) are
// enforced by item.Contains in the iteration callback rather than by
// the seek range itself, so an off-by-one here only costs a few extra
// scanned keys, never an incorrect result.
func iterBounds(item query.Item) (lower, upper []byte) {
	l, u, _ := item.Bounds()
	lower = l
	if u != nil {
		if item.UpperInclusive() {
			upper = successor(u)
		} else {
			upper = u
		}
	}
	return lower, upper
}

// successor returns the lexicographically smallest byte string
// strictly greater than b, used to turn an inclusive upper bound into
// the exclusive endKey storage.Context.Iterate expects.
func successor(b []byte) []byte {
	out := make([]byte, len(b)+1)
	copy(out, b)
	return out
}
