package signup

import "errors"

// Rejections returned by claim and release. None of them mutate state.
var (
	ErrRoleTaken              = errors.New("role already taken")
	ErrAlreadySignedUp        = errors.New("already signed up")
	ErrIneligibleForAuxiliary = errors.New("auxiliary role requires a primary role")
	ErrNotSignedUp            = errors.New("not signed up")
	ErrUnknownRole            = errors.New("unknown role")
)

// Registry failures.
var (
	ErrEventNotActive = errors.New("event no longer active")
	ErrMalformedEvent = errors.New("malformed event announcement")
)

// IsRejection reports whether err is a user-facing claim or release rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrRoleTaken) ||
		errors.Is(err, ErrAlreadySignedUp) ||
		errors.Is(err, ErrIneligibleForAuxiliary) ||
		errors.Is(err, ErrNotSignedUp) ||
		errors.Is(err, ErrUnknownRole)
}
