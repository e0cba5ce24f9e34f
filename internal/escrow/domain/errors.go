package escrow

import "errors"

// Kind classifies an escrow error for transport mapping and metrics.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindTiming        Kind = "timing"
	KindAuthorization Kind = "authorization"
	KindArithmetic    Kind = "arithmetic"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
)

// Error is a guard failure. Every rejection leaves the record untouched.
type Error struct {
	Code string
	Kind Kind
	msg  string
}

// Error implements the error interface.
func (e *Error) Error() string { return e.msg }

func newError(code string, kind Kind, msg string) *Error {
	return &Error{Code: code, Kind: kind, msg: "escrow: " + msg}
}

var (
	// Validation failures on create parameters.
	ErrAlarmTimeInPast            = newError("AlarmTimeInPast", KindValidation, "alarm time must be in the future")
	ErrInvalidDeadline            = newError("InvalidDeadline", KindValidation, "deadline must be after alarm time")
	ErrDepositTooSmall            = newError("DepositTooSmall", KindValidation, "deposit amount below minimum")
	ErrInvalidPenaltyRoute        = newError("InvalidPenaltyRoute", KindValidation, "invalid penalty route")
	ErrPenaltyDestinationRequired = newError("PenaltyDestinationRequired", KindValidation, "penalty route requires destination address")
	ErrEmptyOwner                 = newError("EmptyOwner", KindValidation, "empty owner address")

	// State failures.
	ErrInvalidState      = newError("InvalidState", KindState, "record is not in a valid state for this operation")
	ErrStaleSnoozeCount  = newError("StaleSnoozeCount", KindState, "stale snooze count token")
	ErrMaxSnoozesReached = newError("MaxSnoozesReached", KindState, "maximum snooze count reached")

	// Timing failures.
	ErrTooEarly             = newError("TooEarly", KindTiming, "cannot perform operation before alarm time")
	ErrDeadlinePassed       = newError("DeadlinePassed", KindTiming, "alarm deadline has passed")
	ErrDeadlineNotPassed    = newError("DeadlineNotPassed", KindTiming, "alarm deadline has not passed yet")
	ErrTooLateForRefund     = newError("TooLateForRefund", KindTiming, "refund window closed at alarm time")
	ErrClaimGraceExpired    = newError("ClaimGraceExpired", KindTiming, "claim grace window has expired")
	ErrBuddyOnlySlashWindow = newError("BuddyOnlySlashWindow", KindTiming, "only the buddy may slash during the priority window")
	ErrSweepTooEarly        = newError("TooEarly", KindTiming, "claim grace window has not elapsed")

	// Authorization failures.
	ErrUnauthorized            = newError("Unauthorized", KindAuthorization, "caller is not the record owner")
	ErrInvalidSink             = newError("InvalidSinkAddress", KindAuthorization, "invalid sink address for penalties")
	ErrInvalidRecipient        = newError("InvalidPenaltyRecipient", KindAuthorization, "invalid penalty recipient address")
	ErrPenaltyDestinationUnset = newError("PenaltyDestinationNotSet", KindAuthorization, "penalty destination not set for this route")

	// Arithmetic failures.
	ErrOverflow            = newError("Overflow", KindArithmetic, "arithmetic overflow")
	ErrInsufficientDeposit = newError("InsufficientDeposit", KindArithmetic, "insufficient deposit remaining")

	// Existence failures.
	ErrProfileExists   = newError("AlreadyExists", KindConflict, "profile already exists for owner")
	ErrAlarmExists     = newError("AlreadyExists", KindConflict, "alarm already exists for owner and id")
	ErrProfileNotFound = newError("NotFound", KindNotFound, "profile not found")
	ErrAlarmNotFound   = newError("NotFound", KindNotFound, "alarm not found")
)

// KindOf extracts the error kind, or empty when err is not an escrow error.
func KindOf(err error) Kind {
	var escrowErr *Error
	if errors.As(err, &escrowErr) {
		return escrowErr.Kind
	}
	return ""
}

// CodeOf extracts the stable error code, or empty when err is not an escrow error.
func CodeOf(err error) string {
	var escrowErr *Error
	if errors.As(err, &escrowErr) {
		return escrowErr.Code
	}
	return ""
}
