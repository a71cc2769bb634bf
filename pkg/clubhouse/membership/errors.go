package membership

import "errors"

// Outcomes of membership operations. All of them are expected,
// user-facing results; anything else returned by the service is an
// infrastructure failure.
var (
	ErrInvalidCode       = errors.New("invalid group code")
	ErrAlreadyMember     = errors.New("already a member of this group")
	ErrNotAMember        = errors.New("not a member of this group")
	ErrAdminCannotLeave  = errors.New("the admin cannot leave the group")
	ErrNotAdmin          = errors.New("only the group admin can do that")
	ErrNotFound          = errors.New("group not found")
	ErrAlreadyInGroup    = errors.New("already in a group")
	ErrGroupNameRequired = errors.New("group name is required")
)

// IsOutcome reports whether err is one of the expected membership outcomes.
func IsOutcome(err error) bool {
	for _, outcome := range []error{
		ErrInvalidCode, ErrAlreadyMember, ErrNotAMember, ErrAdminCannotLeave,
		ErrNotAdmin, ErrNotFound, ErrAlreadyInGroup, ErrGroupNameRequired,
	} {
		if errors.Is(err, outcome) {
			return true
		}
	}
	return false
}
