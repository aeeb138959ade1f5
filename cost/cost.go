// Package cost implements the resource accounting that flows through
// every grove operation: seek counts, bytes touched, storage deltas,
// and hash-function invocations (spec §5, §9 "monadic cost
// propagation").
package cost

import (
	"fmt"
)

// Cost accumulates the resources a single call chain has consumed.
// It is deliberately a plain struct, not an interface: per spec §9 the
// "result with cost" pattern is equally well expressed as a struct
// pair, a threaded context, or a task-local accumulator, and a struct
// is the simplest of the three to reason about and to sum.
type Cost struct {
	SeekCount       uint64
	BytesLoaded     uint64
	StorageAdded    uint64
	StorageReplaced uint64
	StorageRemoved  uint64
	HashCalls       uint64
}

// Add accumulates other into c in place and returns c, so call sites
// can chain: cost.Add(childCost).
func (c *Cost) Add(other Cost) *Cost {
	c.SeekCount += other.SeekCount
	c.BytesLoaded += other.BytesLoaded
	c.StorageAdded += other.StorageAdded
	c.StorageReplaced += other.StorageReplaced
	c.StorageRemoved += other.StorageRemoved
	c.HashCalls += other.HashCalls
	return c
}

// Seek records a single seek against the backing store.
func (c *Cost) Seek() { c.SeekCount++ }

// Load records n bytes read from the backing store.
func (c *Cost) Load(n int) { c.BytesLoaded += uint64(n) }

// Hash records a hash-function invocation that processed costUnits
// 64-byte blocks (see hash.ValueHashCost and friends).
func (c *Cost) Hash(costUnits uint64) { c.HashCalls += costUnits }

// Total is a rough scalar summary used only for monotonicity checks
// and logging; it is not part of any hash or proof.
func (c Cost) Total() uint64 {
	return c.SeekCount + c.BytesLoaded + c.StorageAdded + c.StorageReplaced + c.StorageRemoved + c.HashCalls
}

func (c Cost) String() string {
	return fmt.Sprintf("cost{seeks=%d loaded=%d added=%d replaced=%d removed=%d hashes=%d}",
		c.SeekCount, c.BytesLoaded, c.StorageAdded, c.StorageReplaced, c.StorageRemoved, c.HashCalls)
}

// Result pairs an operation's value with the cost it accumulated.
// Errors still carry the cost spent before the failure, per spec §7's
// propagation policy.
type Result[T any] struct {
	Value T
	Cost  Cost
	Err   error
}

// Ok wraps a successful value with the cost spent producing it.
func Ok[T any](v T, c Cost) Result[T] {
	return Result[T]{Value: v, Cost: c}
}

// Failed wraps an error together with the cost spent before it
// occurred.
func Failed[T any](c Cost, err error) Result[T] {
	return Result[T]{Cost: c, Err: err}
}

// Unwrap returns the value and error, discarding the cost; used at API
// boundaries that don't propagate cost further (e.g. test helpers).
func (r Result[T]) Unwrap() (T, error) {
	return r.Value, r.Err
}

// Limiter enforces a caller-supplied cost ceiling. A nil *Limiter
// never trips, matching the default of "no ceiling."
type Limiter struct {
	Max uint64
}

// ErrLimiter is satisfied by groveerr.CostLimitExceeded; kept as a
// function value (not an import) to avoid a dependency cycle between
// cost and groveerr.
var ErrLimiter func(spent, max uint64) error

// Check returns a CostLimitExceeded-flavored error (via ErrLimiter) if
// c's running total has crossed l.Max. A nil Limiter or nil Max (0,
// meaning "unset") never trips.
func (l *Limiter) Check(c Cost) error {
	if l == nil || l.Max == 0 {
		return nil
	}
	if spent := c.Total(); spent > l.Max {
		if ErrLimiter != nil {
			return ErrLimiter(spent, l.Max)
		}
	}
	return nil
}

// EstimatePut returns a worst-case cost prediction for inserting a
// key/value pair of the given lengths into a tree of the given depth,
// without performing the operation (spec §6 "Estimators").
func EstimatePut(maxKeyLen, maxValueLen int, treeDepth int) Cost {
	hashesPerLevel := uint64(3) // kv_hash + node_hash + one sibling value_hash amortized
	return Cost{
		SeekCount:    uint64(treeDepth) + 1,
		BytesLoaded:  uint64(treeDepth) * uint64(maxKeyLen+maxValueLen+2*32),
		StorageAdded: uint64(maxKeyLen + maxValueLen + 2*32 + 16),
		HashCalls:    uint64(treeDepth) * hashesPerLevel,
	}
}

// EstimateGet returns a worst-case cost prediction for reading a key
// from a tree of the given depth.
func EstimateGet(maxKeyLen, maxValueLen int, treeDepth int) Cost {
	return Cost{
		SeekCount:   uint64(treeDepth) + 1,
		BytesLoaded: uint64(treeDepth) * uint64(maxKeyLen+maxValueLen+2*32),
	}
}

// EstimateDelete returns a worst-case cost prediction for deleting a
// key from a tree of the given depth, including the cost of the
// promote-and-rebalance pass (spec §4.4).
func EstimateDelete(maxKeyLen, maxValueLen int, treeDepth int) Cost {
	put := EstimatePut(maxKeyLen, maxValueLen, treeDepth)
	put.StorageRemoved = put.StorageAdded
	put.StorageAdded = 0
	put.SeekCount += uint64(treeDepth) // promote-edge-node walk
	return put
}
