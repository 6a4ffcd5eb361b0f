package domain

import "time"

type EscrowStatus string

const (
	EscrowHeld            EscrowStatus = "held"
	EscrowReleasedToPayee EscrowStatus = "released_to_payee"
	EscrowReleasedToPayer EscrowStatus = "released_to_payer"
	EscrowPartialRelease  EscrowStatus = "partial_release"
	EscrowDisputed        EscrowStatus = "disputed"
)

var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowHeld:           {EscrowReleasedToPayee, EscrowReleasedToPayer, EscrowPartialRelease, EscrowDisputed},
	EscrowPartialRelease: {EscrowReleasedToPayee, EscrowReleasedToPayer, EscrowPartialRelease, EscrowDisputed},
	EscrowDisputed:       {EscrowReleasedToPayee, EscrowReleasedToPayer},
}

func (s EscrowStatus) CanTransition(to EscrowStatus) bool {
	for _, next := range escrowTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Releasable reports whether funds may still move out of the record through
// the normal release path. A disputed record is not releasable until the
// dispute outcome is applied.
func (s EscrowStatus) Releasable() bool {
	return s == EscrowHeld || s == EscrowPartialRelease
}

// EscrowRecord custodies a payment's funds between authorization and final
// disbursement. HeldAmount + ReleasedAmount == TotalAmount at all times.
type EscrowRecord struct {
	ID        string
	PaymentID string

	TotalAmount    int64
	HeldAmount     int64
	ReleasedAmount int64

	// PayeeShare + PlatformShare == TotalAmount. The payee share carries the
	// base amount plus tax passthrough; the platform keeps its fee.
	PayeeShare    int64
	PlatformShare int64
	Currency      string

	Status        EscrowStatus
	AutoReleaseAt time.Time

	DisputeID    *string
	FreezeReason *string
	FrozenAt     *time.Time

	ReleasedAt    *time.Time
	ReleaseReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

type ReleaseKind string

const (
	ReleaseFull    ReleaseKind = "full"
	ReleasePartial ReleaseKind = "partial"
)
