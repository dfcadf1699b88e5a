package coordinator

import (
	"errors"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/galdahar56/raid-logger-bot-2/internal/signup"
)

// Reply texts shown to the requester.
const (
	ReplyNotActive   = "⚠️ This event is no longer active."
	ReplyMalformed   = "⚠️ This announcement is missing its activity, date/time or run id."
	ReplyNotSignedUp = "❌ You haven't signed up for this event."
	ReplyAlready     = "❌ You're already signed up for this event."
	ReplyRateLimited = "⏳ Slow down, try again in a moment."
	ReplyUnknownRole = "❌ That role is not part of this event."
	ReplyFailed      = "⚠️ Something went wrong, please try again."
	ledgerWarning    = "\n⚠️ The signup sheet could not be updated."
)

func upper(role signup.RoleID) string {
	return cases.Upper(language.English).String(string(role))
}

func claimedReply(role signup.RoleID) string {
	return fmt.Sprintf("✅ You signed up as **%s**.", upper(role))
}

func releasedReply(role signup.RoleID) string {
	return fmt.Sprintf("❌ Your signup for **%s** has been removed.", upper(role))
}

func rejectionReply(err error, selector signup.RoleID) string {
	switch {
	case errors.Is(err, signup.ErrRoleTaken):
		return fmt.Sprintf("❌ **%s** is already taken.", upper(selector))
	case errors.Is(err, signup.ErrAlreadySignedUp):
		return ReplyAlready
	case errors.Is(err, signup.ErrIneligibleForAuxiliary):
		return fmt.Sprintf("❌ Sign up for a main role before taking **%s**.", upper(selector))
	case errors.Is(err, signup.ErrNotSignedUp):
		return ReplyNotSignedUp
	case errors.Is(err, signup.ErrUnknownRole):
		return ReplyUnknownRole
	default:
		return ReplyFailed
	}
}

// reason is the metric label for a rejection.
func reason(err error) string {
	switch {
	case errors.Is(err, signup.ErrRoleTaken):
		return "role_taken"
	case errors.Is(err, signup.ErrAlreadySignedUp):
		return "already_signed_up"
	case errors.Is(err, signup.ErrIneligibleForAuxiliary):
		return "ineligible"
	case errors.Is(err, signup.ErrNotSignedUp):
		return "not_signed_up"
	case errors.Is(err, signup.ErrUnknownRole):
		return "unknown_role"
	case errors.Is(err, signup.ErrEventNotActive):
		return "not_active"
	case errors.Is(err, signup.ErrMalformedEvent):
		return "malformed"
	default:
		return "other"
	}
}
