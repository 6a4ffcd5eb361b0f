package domain

import "errors"

// Sentinel errors for the settlement lifecycle. Callers match them with
// errors.Is; the transport layer maps them onto HTTP statuses.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")

	// ErrInvalidState marks a status transition outside the allowed table.
	ErrInvalidState = errors.New("invalid state transition")

	// ErrConflict marks a lost race: the row moved under the caller between
	// read and conditional update, or a unique index fired.
	ErrConflict = errors.New("conflicting concurrent update")

	// ErrCollaborator wraps failures of the pricing, risk and engagement
	// subsystems. Callers treat these as fail-closed.
	ErrCollaborator = errors.New("collaborator unavailable")

	// ErrInvariant marks arithmetic that must never happen: breakdowns that
	// do not sum, refunds exceeding the charge, shares not matching total.
	ErrInvariant = errors.New("invariant violated")

	ErrRiskBlocked           = errors.New("payment blocked by risk assessment")
	ErrDuplicatePayment      = errors.New("booking already has an active payment")
	ErrDuplicateEscrow       = errors.New("payment already has an escrow record")
	ErrFrozen                = errors.New("escrow is frozen under a dispute")
	ErrOverRelease           = errors.New("release exceeds held funds")
	ErrConflictingFreeze     = errors.New("escrow already frozen under another dispute")
	ErrEngagementNotComplete = errors.New("engagement has not completed")
)
