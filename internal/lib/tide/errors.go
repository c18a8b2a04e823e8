package tide

import "errors"

var (
	// ErrNoActiveValidators means stake targets cannot be computed because
	// every validator is inactive or the set is empty.
	ErrNoActiveValidators = errors.New("pool has no active validators to target")

	// ErrMaintainerLowBalance means our maintainer account is too poor to
	// pay fees and needs topping up before maintenance may run.
	ErrMaintainerLowBalance = errors.New("maintainer balance below minimum")

	// ErrCantFetchPoolState means the pool account was missing or
	// undecodable, nothing can proceed without it.
	ErrCantFetchPoolState = errors.New("unable to fetch pool state")

	// ErrValidatorNotFound is returned for lookups of a vote account the
	// pool does not contain.
	ErrValidatorNotFound = errors.New("validator not found in pool")
)
