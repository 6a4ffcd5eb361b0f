package domain

import "time"

type RefundType string

const (
	RefundFull               RefundType = "full"
	RefundPartial            RefundType = "partial"
	RefundCancellationPolicy RefundType = "cancellation_policy"
	RefundDispute            RefundType = "dispute"
)

type RefundStatus string

const (
	RefundPending RefundStatus = "pending"
	RefundSettled RefundStatus = "settled"
	RefundFailed  RefundStatus = "failed"
)

type Refund struct {
	ID        string
	PaymentID string
	Amount    int64
	Reason    string
	Type      RefundType
	Status    RefundStatus

	ExpectedSettlementAt *time.Time
	CreatedAt            time.Time
}

// CancellationPolicy drives refund computation for policy-typed refunds.
// Hours thresholds are measured from cancellation time to appointment start.
type CancellationPolicy struct {
	FreeCancellationHours  float64
	NoCancellationHours    float64
	CancellationFeePercent int64
}

func (p CancellationPolicy) IsZero() bool {
	return p.FreeCancellationHours == 0 && p.NoCancellationHours == 0 && p.CancellationFeePercent == 0
}
