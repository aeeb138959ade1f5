package groveerr

import (
	"errors"
	"testing"

	"github.com/dashpay/grove/cost"
)

func TestIsMatchesOwnKindOnly(t *testing.T) {
	err := New(NotFound, "key %x missing", []byte("k"))
	if !Is(err, NotFound) {
		t.Fatalf("Is(err, NotFound) = false, want true")
	}
	if Is(err, TypeMismatch) {
		t.Fatalf("Is(err, TypeMismatch) = true, want false")
	}
}

func TestWrapPreservesKindAndCause(t *testing.T) {
	cause := errors.New("underlying badger failure")
	wrapped := Wrap(StorageFailure, cause, "opening database")
	if !Is(wrapped, StorageFailure) {
		t.Fatalf("Wrap must tag the result with its Kind")
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("Wrap must preserve the original cause in the chain")
	}
}

func TestWrapNilCauseReturnsNil(t *testing.T) {
	if Wrap(StorageFailure, nil, "no-op") != nil {
		t.Fatalf("Wrap(_, nil, _) must return nil")
	}
}

func TestIsSurvivesMultipleWrapLayers(t *testing.T) {
	inner := New(CorruptedData, "bad bytes")
	outer := Wrap(StorageFailure, inner, "while reading")
	if !Is(outer, StorageFailure) {
		t.Fatalf("outer wrap must report its own Kind")
	}
}

func TestKindStringNames(t *testing.T) {
	cases := map[Kind]string{
		NotFound:            "NotFound",
		InvalidPath:         "InvalidPath",
		TypeMismatch:        "TypeMismatch",
		InvalidBatch:        "InvalidBatch",
		CorruptedData:       "CorruptedData",
		ProofInvalid:        "ProofInvalid",
		TransactionConflict: "TransactionConflict",
		StorageFailure:      "StorageFailure",
		Overflow:            "Overflow",
		CostLimitExceeded:   "CostLimitExceeded",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
	if got := Kind(999).String(); got != "Unknown" {
		t.Fatalf("unknown Kind.String() = %q, want %q", got, "Unknown")
	}
}

// TestCostLimiterWiring exercises the init()-wired bridge from
// cost.Limiter back into this package's CostLimitExceeded kind,
// guarding against the cost/groveerr import-cycle workaround silently
// breaking.
func TestCostLimiterWiring(t *testing.T) {
	l := &cost.Limiter{Max: 5}
	err := l.Check(cost.Cost{SeekCount: 6})
	if err == nil {
		t.Fatalf("Limiter.Check must trip past its ceiling")
	}
	if !Is(err, CostLimitExceeded) {
		t.Fatalf("cost.Limiter's tripped error must carry groveerr.CostLimitExceeded, got %v", err)
	}
}
