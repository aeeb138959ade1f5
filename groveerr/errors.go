// Package groveerr implements the value-level error-kind taxonomy of
// spec §7 on top of github.com/cockroachdb/errors, so that every
// error surfacing out of hash, storage, merk and grove can be tested
// with a single Is(err, Kind) call regardless of how many package
// boundaries it has been wrapped across.
package groveerr

import (
	"github.com/cockroachdb/errors"
)

// Kind is one of the ten error categories named in spec §7.
type Kind int

const (
	_ Kind = iota
	NotFound
	InvalidPath
	TypeMismatch
	InvalidBatch
	CorruptedData
	ProofInvalid
	TransactionConflict
	StorageFailure
	Overflow
	CostLimitExceeded
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case InvalidPath:
		return "InvalidPath"
	case TypeMismatch:
		return "TypeMismatch"
	case InvalidBatch:
		return "InvalidBatch"
	case CorruptedData:
		return "CorruptedData"
	case ProofInvalid:
		return "ProofInvalid"
	case TransactionConflict:
		return "TransactionConflict"
	case StorageFailure:
		return "StorageFailure"
	case Overflow:
		return "Overflow"
	case CostLimitExceeded:
		return "CostLimitExceeded"
	default:
		return "Unknown"
	}
}

// kindError is a sentinel carrying only its Kind; it is never returned
// directly to a caller, only wrapped via New/Wrap below, so that
// errors.Is(err, sentinelFor(k)) matches through wrapping.
type kindError struct {
	kind Kind
}

func (e *kindError) Error() string { return e.kind.String() }

var sentinels = map[Kind]*kindError{
	NotFound:            {NotFound},
	InvalidPath:         {InvalidPath},
	TypeMismatch:        {TypeMismatch},
	InvalidBatch:        {InvalidBatch},
	CorruptedData:       {CorruptedData},
	ProofInvalid:        {ProofInvalid},
	TransactionConflict: {TransactionConflict},
	StorageFailure:      {StorageFailure},
	Overflow:            {Overflow},
	CostLimitExceeded:   {CostLimitExceeded},
}

// New constructs a new error of the given kind with a formatted
// message, wrapping the kind's sentinel so Is(err, kind) succeeds.
func New(k Kind, format string, args ...any) error {
	return errors.WithMessagef(sentinels[k], format, args...)
}

// Wrap attaches a kind to an existing error (e.g. one returned by the
// badger storage layer), preserving the original as the cause chain.
func Wrap(k Kind, cause error, format string, args ...any) error {
	if cause == nil {
		return nil
	}
	return errors.WithMessagef(errors.Mark(errors.Wrap(cause, sentinels[k].Error()), sentinels[k]), format, args...)
}

// Is reports whether err is, or wraps, an error of the given kind.
func Is(err error, k Kind) bool {
	return errors.Is(err, sentinels[k])
}

// As is re-exported for call sites that need typed extraction of a
// wrapped cause alongside a kind check.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// CostLimitExceededErr builds the CostLimitExceeded error used by
// cost.Limiter via cost.ErrLimiter, wired in an init() to avoid an
// import cycle between groveerr and cost.
func CostLimitExceededErr(spent, max uint64) error {
	return New(CostLimitExceeded, "operation cost %d exceeded ceiling %d", spent, max)
}
