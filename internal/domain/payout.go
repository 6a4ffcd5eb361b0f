package domain

import "time"

type PayoutStatus string

const (
	PayoutOpen       PayoutStatus = "open"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
)

// Payout batches a payee's released earnings for one settlement period.
// Aggregation key: (PayeeID, PeriodStart). Gross/Fee/Net always equal the
// sums over the payout's items.
type Payout struct {
	ID      string
	PayeeID string

	PeriodStart time.Time
	PeriodEnd   time.Time

	GrossAmount int64
	FeeAmount   int64
	NetAmount   int64
	Currency    string

	Status PayoutStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PayoutItem is one released engagement folded into a payout. An engagement
// contributes to at most one item across all payouts.
type PayoutItem struct {
	ID           string
	PayoutID     string
	EngagementID string
	PaymentID    string

	GrossAmount int64
	FeeAmount   int64
	NetAmount   int64

	CreatedAt time.Time
}
