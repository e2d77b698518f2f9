package health

import "github.com/cockroachdb/errors"

var (
	// ErrCheckFailed is wrapped by Run when at least one check fails.
	ErrCheckFailed = errors.New("health: check failed")

	// ErrCheckTimeout is reported for checks still running when the timeout hits.
	ErrCheckTimeout = errors.New("health: check timeout")
)
