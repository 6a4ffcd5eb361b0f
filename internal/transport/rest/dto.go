package rest

import (
	"encoding/json"
	"time"

	"consult-settlement/internal/domain"
	"consult-settlement/internal/service"
)

type PaymentResponse struct {
	ID             string     `json:"id"`
	Reference      string     `json:"reference"`
	BookingID      string     `json:"booking_id"`
	PayerID        string     `json:"payer_id"`
	PayeeID        string     `json:"payee_id"`
	BaseAmount     int64      `json:"base_amount"`
	PlatformFee    int64      `json:"platform_fee"`
	TaxAmount      int64      `json:"tax_amount"`
	TotalAmount    int64      `json:"total_amount"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	Provider       string     `json:"provider,omitempty"`
	ProviderTxnRef *string    `json:"provider_txn_ref,omitempty"`
	RiskLevel      string     `json:"risk_level,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	AuthorizedAt   *time.Time `json:"authorized_at,omitempty"`
	CapturedAt     *time.Time `json:"captured_at,omitempty"`
	RefundedAt     *time.Time `json:"refunded_at,omitempty"`
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID,
		Reference:      p.Reference,
		BookingID:      p.BookingID,
		PayerID:        p.PayerID,
		PayeeID:        p.PayeeID,
		BaseAmount:     p.BaseAmount,
		PlatformFee:    p.PlatformFee,
		TaxAmount:      p.TaxAmount,
		TotalAmount:    p.TotalAmount,
		Currency:       p.Currency,
		Status:         string(p.Status),
		Provider:       p.Provider,
		ProviderTxnRef: p.ProviderTxnRef,
		RiskLevel:      p.RiskLevel,
		CreatedAt:      p.CreatedAt,
		AuthorizedAt:   p.AuthorizedAt,
		CapturedAt:     p.CapturedAt,
		RefundedAt:     p.RefundedAt,
	}
}

type EscrowResponse struct {
	ID             string     `json:"id"`
	PaymentID      string     `json:"payment_id"`
	TotalAmount    int64      `json:"total_amount"`
	HeldAmount     int64      `json:"held_amount"`
	ReleasedAmount int64      `json:"released_amount"`
	PayeeShare     int64      `json:"payee_share"`
	PlatformShare  int64      `json:"platform_share"`
	Currency       string     `json:"currency"`
	Status         string     `json:"status"`
	AutoReleaseAt  time.Time  `json:"auto_release_at"`
	DisputeID      *string    `json:"dispute_id,omitempty"`
	FreezeReason   *string    `json:"freeze_reason,omitempty"`
	ReleasedAt     *time.Time `json:"released_at,omitempty"`
	ReleaseReason  *string    `json:"release_reason,omitempty"`
}

func toEscrowResponse(e *domain.EscrowRecord) *EscrowResponse {
	if e == nil {
		return nil
	}
	return &EscrowResponse{
		ID:             e.ID,
		PaymentID:      e.PaymentID,
		TotalAmount:    e.TotalAmount,
		HeldAmount:     e.HeldAmount,
		ReleasedAmount: e.ReleasedAmount,
		PayeeShare:     e.PayeeShare,
		PlatformShare:  e.PlatformShare,
		Currency:       e.Currency,
		Status:         string(e.Status),
		AutoReleaseAt:  e.AutoReleaseAt,
		DisputeID:      e.DisputeID,
		FreezeReason:   e.FreezeReason,
		ReleasedAt:     e.ReleasedAt,
		ReleaseReason:  e.ReleaseReason,
	}
}

type RefundResponse struct {
	ID                   string     `json:"id,omitempty"`
	PaymentID            string     `json:"payment_id"`
	Amount               int64      `json:"amount"`
	Reason               string     `json:"reason"`
	Type                 string     `json:"type"`
	Status               string     `json:"status"`
	ExpectedSettlementAt *time.Time `json:"expected_settlement_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

func toRefundResponse(ref *domain.Refund) RefundResponse {
	return RefundResponse{
		ID:                   ref.ID,
		PaymentID:            ref.PaymentID,
		Amount:               ref.Amount,
		Reason:               ref.Reason,
		Type:                 string(ref.Type),
		Status:               string(ref.Status),
		ExpectedSettlementAt: ref.ExpectedSettlementAt,
		CreatedAt:            ref.CreatedAt,
	}
}

type AuditEntryResponse struct {
	ID          string    `json:"id"`
	SubjectType string    `json:"subject_type"`
	SubjectID   string    `json:"subject_id"`
	Action      string    `json:"action"`
	Actor       string    `json:"actor"`
	Before      any       `json:"before,omitempty"`
	After       any       `json:"after,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type StatusResponse struct {
	Payment       PaymentResponse      `json:"payment"`
	Escrow        *EscrowResponse      `json:"escrow,omitempty"`
	Refunds       []RefundResponse     `json:"refunds,omitempty"`
	RefundedTotal int64                `json:"refunded_total"`
	Audit         []AuditEntryResponse `json:"audit"`
}

func toStatusResponse(v *service.StatusView) StatusResponse {
	out := StatusResponse{
		Payment:       toPaymentResponse(v.Payment),
		Escrow:        toEscrowResponse(v.Escrow),
		RefundedTotal: v.RefundedTotal,
	}
	for _, ref := range v.Refunds {
		out.Refunds = append(out.Refunds, toRefundResponse(&ref))
	}
	for _, e := range v.Audit {
		out.Audit = append(out.Audit, AuditEntryResponse{
			ID:          e.ID,
			SubjectType: e.SubjectType,
			SubjectID:   e.SubjectID,
			Action:      e.Action,
			Actor:       e.Actor,
			Before:      rawToAny(e.Before),
			After:       rawToAny(e.After),
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}

type PayoutResponse struct {
	ID          string               `json:"id"`
	PayeeID     string               `json:"payee_id"`
	PeriodStart time.Time            `json:"period_start"`
	PeriodEnd   time.Time            `json:"period_end"`
	GrossAmount int64                `json:"gross_amount"`
	FeeAmount   int64                `json:"fee_amount"`
	NetAmount   int64                `json:"net_amount"`
	Currency    string               `json:"currency"`
	Status      string               `json:"status"`
	Items       []PayoutItemResponse `json:"items,omitempty"`
}

type PayoutItemResponse struct {
	ID           string    `json:"id"`
	EngagementID string    `json:"engagement_id"`
	PaymentID    string    `json:"payment_id"`
	GrossAmount  int64     `json:"gross_amount"`
	FeeAmount    int64     `json:"fee_amount"`
	NetAmount    int64     `json:"net_amount"`
	CreatedAt    time.Time `json:"created_at"`
}

func toPayoutResponse(p domain.Payout, items []domain.PayoutItem) PayoutResponse {
	out := PayoutResponse{
		ID:          p.ID,
		PayeeID:     p.PayeeID,
		PeriodStart: p.PeriodStart,
		PeriodEnd:   p.PeriodEnd,
		GrossAmount: p.GrossAmount,
		FeeAmount:   p.FeeAmount,
		NetAmount:   p.NetAmount,
		Currency:    p.Currency,
		Status:      string(p.Status),
	}
	for _, it := range items {
		out.Items = append(out.Items, PayoutItemResponse{
			ID:           it.ID,
			EngagementID: it.EngagementID,
			PaymentID:    it.PaymentID,
			GrossAmount:  it.GrossAmount,
			FeeAmount:    it.FeeAmount,
			NetAmount:    it.NetAmount,
			CreatedAt:    it.CreatedAt,
		})
	}
	return out
}

func rawToAny(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
