package service

import "consult-settlement/internal/domain"

const (
	ReasonFreeCancellation = "free cancellation"
	ReasonCancellationFee  = "cancellation fee applied"
	ReasonNoRefund         = "no refund: too close to appointment"
)

type RefundOutcome struct {
	Percentage int64
	Amount     int64
	Reason     string
}

// DefaultCancellationPolicy applies when a payee has not configured one:
// free cancellation up to 24h out, nothing inside 2h, half the charge kept
// in between.
func DefaultCancellationPolicy() domain.CancellationPolicy {
	return domain.CancellationPolicy{
		FreeCancellationHours:  24,
		NoCancellationHours:    2,
		CancellationFeePercent: 50,
	}
}

// ComputeRefund resolves the refund for a cancellation by tiered lookup on
// hours remaining until the appointment. Amounts are minor currency units;
// the division rounds half to even so many small refunds do not drift in
// either party's favor.
func ComputeRefund(policy domain.CancellationPolicy, totalAmount int64, hoursUntil float64) RefundOutcome {
	if policy.IsZero() {
		policy = DefaultCancellationPolicy()
	}

	var (
		pct    int64
		reason string
	)
	switch {
	case hoursUntil >= policy.FreeCancellationHours:
		pct = 100
		reason = ReasonFreeCancellation
	case hoursUntil >= policy.NoCancellationHours:
		pct = 100 - policy.CancellationFeePercent
		reason = ReasonCancellationFee
	default:
		pct = 0
		reason = ReasonNoRefund
	}

	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	return RefundOutcome{
		Percentage: pct,
		Amount:     roundHalfEvenDiv(totalAmount*pct, 100),
		Reason:     reason,
	}
}

// roundHalfEvenDiv divides n by d (both non-negative, d > 0) rounding half
// to even.
func roundHalfEvenDiv(n, d int64) int64 {
	q := n / d
	r := n % d
	switch {
	case 2*r > d:
		return q + 1
	case 2*r < d:
		return q
	case q%2 != 0:
		// exactly half: round toward the even quotient
		return q + 1
	default:
		return q
	}
}
