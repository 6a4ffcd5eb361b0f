package rest

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"consult-settlement/internal/domain"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type InitiatePaymentRequest struct {
	BookingID       string    `json:"booking_id"`
	PayerID         string    `json:"payer_id"`
	PayeeID         string    `json:"payee_id"`
	RateAmount      int64     `json:"rate_amount"`
	DurationMinutes int       `json:"duration_minutes"`
	Currency        string    `json:"currency"`
	Provider        string    `json:"provider"`
	EngagementEnd   time.Time `json:"engagement_end"`
}

type rawInitiateRequest struct {
	BookingID       string      `json:"booking_id"`
	PayerID         string      `json:"payer_id"`
	PayeeID         string      `json:"payee_id"`
	RateAmount      interface{} `json:"rate_amount"`
	DurationMinutes interface{} `json:"duration_minutes"`
	Currency        string      `json:"currency"`
	Provider        string      `json:"provider"`
	EngagementEnd   string      `json:"engagement_end"`
}

func ValidateInitiateRequest(r *http.Request) (*InitiatePaymentRequest, error) {
	var raw rawInitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}

	if raw.BookingID == "" {
		return nil, &ValidationError{Field: "booking_id", Message: "booking_id is required"}
	}
	if raw.PayerID == "" {
		return nil, &ValidationError{Field: "payer_id", Message: "payer_id is required"}
	}
	if raw.PayeeID == "" {
		return nil, &ValidationError{Field: "payee_id", Message: "payee_id is required"}
	}
	if raw.Currency == "" {
		return nil, &ValidationError{Field: "currency", Message: "currency is required"}
	}

	rate, err := toInt64(raw.RateAmount)
	if err != nil || rate <= 0 {
		return nil, &ValidationError{Field: "rate_amount", Message: "rate_amount must be a positive integer of minor units"}
	}
	duration, err := toInt64(raw.DurationMinutes)
	if err != nil || duration <= 0 {
		return nil, &ValidationError{Field: "duration_minutes", Message: "duration_minutes must be a positive integer"}
	}

	var engagementEnd time.Time
	if raw.EngagementEnd != "" {
		engagementEnd, err = time.Parse(time.RFC3339, raw.EngagementEnd)
		if err != nil {
			return nil, &ValidationError{Field: "engagement_end", Message: "engagement_end must be RFC3339"}
		}
	}

	return &InitiatePaymentRequest{
		BookingID:       raw.BookingID,
		PayerID:         raw.PayerID,
		PayeeID:         raw.PayeeID,
		RateAmount:      rate,
		DurationMinutes: int(duration),
		Currency:        raw.Currency,
		Provider:        raw.Provider,
		EngagementEnd:   engagementEnd,
	}, nil
}

type ConfirmPaymentRequest struct {
	ProviderTxnRef string `json:"provider_txn_ref"`
}

func ValidateConfirmRequest(r *http.Request) (*ConfirmPaymentRequest, error) {
	var req ConfirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, err
	}
	if req.ProviderTxnRef == "" {
		return nil, &ValidationError{Field: "provider_txn_ref", Message: "provider_txn_ref is required"}
	}
	return &req, nil
}

type RefundPaymentRequest struct {
	Type                  domain.RefundType `json:"type"`
	Amount                int64             `json:"amount"`
	Reason                string            `json:"reason"`
	HoursUntilAppointment float64           `json:"hours_until_appointment"`
	Policy                *struct {
		FreeCancellationHours  float64 `json:"free_cancellation_hours"`
		NoCancellationHours    float64 `json:"no_cancellation_hours"`
		CancellationFeePercent int64   `json:"cancellation_fee_percent"`
	} `json:"policy"`
}

func ValidateRefundRequest(r *http.Request) (*RefundPaymentRequest, error) {
	var req RefundPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, err
	}

	switch req.Type {
	case domain.RefundFull, domain.RefundCancellationPolicy:
	case domain.RefundPartial, domain.RefundDispute:
		if req.Amount <= 0 {
			return nil, &ValidationError{Field: "amount", Message: "amount must be a positive integer of minor units"}
		}
	default:
		return nil, &ValidationError{Field: "type", Message: "type must be one of full, partial, cancellation_policy, dispute"}
	}
	return &req, nil
}

func (r *RefundPaymentRequest) CancellationPolicy() domain.CancellationPolicy {
	if r.Policy == nil {
		return domain.CancellationPolicy{}
	}
	return domain.CancellationPolicy{
		FreeCancellationHours:  r.Policy.FreeCancellationHours,
		NoCancellationHours:    r.Policy.NoCancellationHours,
		CancellationFeePercent: r.Policy.CancellationFeePercent,
	}
}

type HoldFundsRequest struct {
	TotalAmount   int64  `json:"total_amount"`
	PayeeShare    int64  `json:"payee_share"`
	PlatformShare int64  `json:"platform_share"`
	Currency      string `json:"currency"`
	AutoReleaseAt string `json:"auto_release_at"`
}

func ValidateHoldRequest(r *http.Request) (*HoldFundsRequest, time.Time, error) {
	var req HoldFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, time.Time{}, err
	}
	if req.TotalAmount <= 0 {
		return nil, time.Time{}, &ValidationError{Field: "total_amount", Message: "total_amount must be positive"}
	}
	if req.Currency == "" {
		return nil, time.Time{}, &ValidationError{Field: "currency", Message: "currency is required"}
	}

	var autoReleaseAt time.Time
	if req.AutoReleaseAt != "" {
		var err error
		autoReleaseAt, err = time.Parse(time.RFC3339, req.AutoReleaseAt)
		if err != nil {
			return nil, time.Time{}, &ValidationError{Field: "auto_release_at", Message: "auto_release_at must be RFC3339"}
		}
	}
	return &req, autoReleaseAt, nil
}

type FreezeRequest struct {
	DisputeID string `json:"dispute_id"`
	Reason    string `json:"reason"`
}

func ValidateFreezeRequest(r *http.Request) (*FreezeRequest, error) {
	var req FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, err
	}
	if req.DisputeID == "" {
		return nil, &ValidationError{Field: "dispute_id", Message: "dispute_id is required"}
	}
	return &req, nil
}

type ResolveDisputeRequest struct {
	DisputeID string `json:"dispute_id"`
	ToPayee   bool   `json:"to_payee"`
	Amount    int64  `json:"amount"`
	Note      string `json:"note"`
}

func ValidateResolveDisputeRequest(r *http.Request) (*ResolveDisputeRequest, error) {
	var req ResolveDisputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, err
	}
	if req.DisputeID == "" {
		return nil, &ValidationError{Field: "dispute_id", Message: "dispute_id is required"}
	}
	if req.Amount < 0 {
		return nil, &ValidationError{Field: "amount", Message: "amount must not be negative"}
	}
	return &req, nil
}

type StatementExportRequest struct {
	PayeeID string `json:"payee_id"`
}

func ValidateStatementExportRequest(r *http.Request) (*StatementExportRequest, error) {
	var req StatementExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, err
	}
	if req.PayeeID == "" {
		return nil, &ValidationError{Field: "payee_id", Message: "payee_id is required"}
	}
	return &req, nil
}

func toInt64(v interface{}) (int64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		if t != math.Trunc(t) {
			return 0, &ValidationError{Message: "expected an integer amount of minor units"}
		}
		return int64(t), nil
	case string:
		if t == "" {
			return 0, nil
		}
		return strconv.ParseInt(t, 10, 64)
	case json.Number:
		return t.Int64()
	default:
		return 0, &ValidationError{Field: "", Message: "expected a number"}
	}
}
