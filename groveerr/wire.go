package groveerr

import "github.com/dashpay/grove/cost"

// init wires cost.Limiter's sentinel error construction to this
// package's CostLimitExceeded kind. cost cannot import groveerr
// directly (groveerr's Kind taxonomy has no reason to depend on the
// cost package, but cost.Limiter needs a constructor for the one kind
// it can trigger), so the dependency runs this direction instead.
func init() {
	cost.ErrLimiter = CostLimitExceededErr
}
