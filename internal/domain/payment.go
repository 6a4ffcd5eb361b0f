package domain

import "time"

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentAuthorized        PaymentStatus = "authorized"
	PaymentCaptured          PaymentStatus = "captured"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
)

// paymentTransitions is the closed set of allowed status moves. Refunds are
// reachable from authorized as well as captured: a cancellation-policy refund
// happens before the engagement runs, while the payment is still only
// authorized.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:           {PaymentAuthorized, PaymentFailed},
	PaymentAuthorized:        {PaymentCaptured, PaymentFailed, PaymentRefunded, PaymentPartiallyRefunded},
	PaymentCaptured:          {PaymentRefunded, PaymentPartiallyRefunded},
	PaymentPartiallyRefunded: {PaymentRefunded, PaymentPartiallyRefunded},
}

func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range paymentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s PaymentStatus) Terminal() bool {
	return len(paymentTransitions[s]) == 0
}

type Payment struct {
	ID        string
	Reference string
	BookingID string
	PayerID   string
	PayeeID   string

	// Monetary fields are minor currency units. TotalAmount is fixed at
	// creation and always equals BaseAmount + PlatformFee + TaxAmount.
	BaseAmount  int64
	PlatformFee int64
	TaxAmount   int64
	TotalAmount int64
	Currency    string

	Status PaymentStatus

	Provider       string
	ProviderTxnRef *string

	RiskLevel   string
	RiskScore   float64
	RiskFactors []string

	EngagementEnd *time.Time

	CreatedAt    time.Time
	AuthorizedAt *time.Time
	CapturedAt   *time.Time
	RefundedAt   *time.Time
}

// ChargeBreakdown is the Pricing Collaborator's output, consumed opaquely.
type ChargeBreakdown struct {
	BaseAmount  int64  `json:"base_amount"`
	PlatformFee int64  `json:"platform_fee"`
	TaxAmount   int64  `json:"tax_amount"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
}

type RiskContext struct {
	BookingID string `json:"booking_id"`
	PayerID   string `json:"payer_id"`
	PayeeID   string `json:"payee_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Provider  string `json:"provider"`
}

type RiskAssessment struct {
	Level     string   `json:"level"`
	Score     float64  `json:"score"`
	Factors   []string `json:"factors"`
	AutoBlock bool     `json:"auto_block"`
}
