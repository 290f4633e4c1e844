package nav

import "github.com/pkg/errors"

var (
	ErrNotInitialized     = errors.New("nav: not initialized")
	ErrOutOfOrder         = errors.New("nav: timestamp before current estimate")
	ErrSingularInnovation = errors.New("nav: innovation covariance singular")
	ErrNonFinite          = errors.New("nav: non-finite state or covariance")
	ErrInvalidConfig      = errors.New("nav: invalid configuration")
)
