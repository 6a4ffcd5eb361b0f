package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"consult-settlement/internal/clients"
	"consult-settlement/internal/domain"

	"github.com/google/uuid"
)

type PaymentStore interface {
	Create(ctx context.Context, p domain.Payment) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	GetActiveByBooking(ctx context.Context, bookingID string) (*domain.Payment, error)
	MarkAuthorized(ctx context.Context, id, providerTxnRef string, at time.Time) error
	MarkCaptured(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, at time.Time) error
	MarkRefunded(ctx context.Context, id string, to domain.PaymentStatus, at time.Time) error
}

type RefundStore interface {
	Create(ctx context.Context, ref domain.Refund) error
	SumActiveByPayment(ctx context.Context, paymentID string) (int64, error)
	ListByPayment(ctx context.Context, paymentID string) ([]domain.Refund, error)
}

type Pricing interface {
	ComputeCharge(ctx context.Context, params clients.ChargeParams) (domain.ChargeBreakdown, error)
}

type Risk interface {
	Assess(ctx context.Context, rc domain.RiskContext) (domain.RiskAssessment, error)
}

type Completion interface {
	IsEngagementComplete(ctx context.Context, engagementID string) (bool, error)
}

type StatusCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

const (
	refundSettlementDelay = 7 * 24 * time.Hour
	statusCacheTTL        = 30 * time.Second
)

// LedgerService drives the payment lifecycle end to end: pricing, risk
// screening, authorization, escrow custody, capture and refunds. All
// multi-entity steps run inside one transaction so a payment and its escrow
// record can never drift apart.
type LedgerService struct {
	payments   PaymentStore
	refunds    RefundStore
	escrow     *EscrowService
	pricing    Pricing
	risk       Risk
	completion Completion
	audit      *AuditTrail
	tx         Transactor
	ws         *clients.WebSocketClient
	cache      StatusCache

	autoReleaseBuffer time.Duration
}

func NewLedgerService(
	payments PaymentStore,
	refunds RefundStore,
	escrow *EscrowService,
	pricing Pricing,
	risk Risk,
	completion Completion,
	audit *AuditTrail,
	tx Transactor,
	ws *clients.WebSocketClient,
	cache StatusCache,
	autoReleaseBuffer time.Duration,
) *LedgerService {
	if autoReleaseBuffer <= 0 {
		autoReleaseBuffer = 24 * time.Hour
	}
	return &LedgerService{
		payments:          payments,
		refunds:           refunds,
		escrow:            escrow,
		pricing:           pricing,
		risk:              risk,
		completion:        completion,
		audit:             audit,
		tx:                tx,
		ws:                ws,
		cache:             cache,
		autoReleaseBuffer: autoReleaseBuffer,
	}
}

type InitiateRequest struct {
	BookingID       string
	PayerID         string
	PayeeID         string
	RateAmount      int64
	DurationMinutes int
	Currency        string
	Provider        string
	EngagementEnd   time.Time
	Actor           string
}

func newPaymentReference() string {
	return "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Initiate prices the consultation, screens it for risk and opens a pending
// payment. One active payment per booking: a second initiate for the same
// booking is rejected, not deduplicated silently.
func (s *LedgerService) Initiate(ctx context.Context, req InitiateRequest) (*domain.Payment, error) {
	if req.BookingID == "" || req.PayerID == "" || req.PayeeID == "" || req.Currency == "" {
		return nil, domain.ErrValidation
	}
	if req.RateAmount <= 0 || req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: rate and duration must be positive", domain.ErrValidation)
	}

	if existing, err := s.payments.GetActiveByBooking(ctx, req.BookingID); err == nil {
		return nil, fmt.Errorf("%w: booking %s already has payment %s", domain.ErrDuplicatePayment, req.BookingID, existing.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	breakdown, err := s.pricing.ComputeCharge(ctx, clients.ChargeParams{
		BookingID:       req.BookingID,
		PayeeID:         req.PayeeID,
		RateAmount:      req.RateAmount,
		DurationMinutes: req.DurationMinutes,
		Currency:        req.Currency,
	})
	if err != nil {
		return nil, err
	}
	if breakdown.TotalAmount <= 0 ||
		breakdown.BaseAmount+breakdown.PlatformFee+breakdown.TaxAmount != breakdown.TotalAmount {
		return nil, fmt.Errorf("%w: pricing breakdown does not sum to total", domain.ErrInvariant)
	}

	assessment, err := s.risk.Assess(ctx, domain.RiskContext{
		BookingID: req.BookingID,
		PayerID:   req.PayerID,
		PayeeID:   req.PayeeID,
		Amount:    breakdown.TotalAmount,
		Currency:  breakdown.Currency,
		Provider:  req.Provider,
	})
	if err != nil {
		// unreachable classifier blocks the payment, it never waves it through
		return nil, err
	}
	if assessment.AutoBlock {
		return nil, fmt.Errorf("%w: risk level %s", domain.ErrRiskBlocked, assessment.Level)
	}

	now := time.Now()
	engagementEnd := req.EngagementEnd
	p := domain.Payment{
		ID:          uuid.NewString(),
		Reference:   newPaymentReference(),
		BookingID:   req.BookingID,
		PayerID:     req.PayerID,
		PayeeID:     req.PayeeID,
		BaseAmount:  breakdown.BaseAmount,
		PlatformFee: breakdown.PlatformFee,
		TaxAmount:   breakdown.TaxAmount,
		TotalAmount: breakdown.TotalAmount,
		Currency:    breakdown.Currency,
		Status:      domain.PaymentPending,
		Provider:    req.Provider,
		RiskLevel:   assessment.Level,
		RiskScore:   assessment.Score,
		RiskFactors: assessment.Factors,
		CreatedAt:   now,
	}
	if !engagementEnd.IsZero() {
		p.EngagementEnd = &engagementEnd
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.payments.Create(ctx, p); err != nil {
			return err
		}
		return s.audit.Record(ctx, domain.AuditSubjectPayment, p.ID, "payment.initiated", req.Actor,
			nil, domain.SnapshotPayment(&p))
	})
	if err != nil {
		return nil, err
	}

	log.Printf("payment %s initiated for booking %s, total %d %s, risk %s",
		p.ID, p.BookingID, p.TotalAmount, p.Currency, p.RiskLevel)
	return &p, nil
}

// Confirm records the provider's successful authorization and places the
// full charge into escrow custody, both in one transaction. Funds released
// toward the payee carry base plus tax; the platform fee stays with the
// platform.
func (s *LedgerService) Confirm(ctx context.Context, paymentID, providerTxnRef, actor string) (*domain.Payment, error) {
	if paymentID == "" || providerTxnRef == "" {
		return nil, domain.ErrValidation
	}

	var after *domain.Payment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		before, err := s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := s.payments.MarkAuthorized(ctx, paymentID, providerTxnRef, now); err != nil {
			return err
		}
		after, err = s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}

		autoReleaseAt := now.Add(s.autoReleaseBuffer)
		if after.EngagementEnd != nil {
			autoReleaseAt = after.EngagementEnd.Add(s.autoReleaseBuffer)
		}
		rec, err := s.escrow.Hold(ctx, HoldRequest{
			PaymentID:     paymentID,
			TotalAmount:   after.TotalAmount,
			PayeeShare:    after.BaseAmount + after.TaxAmount,
			PlatformShare: after.PlatformFee,
			Currency:      after.Currency,
			AutoReleaseAt: autoReleaseAt,
		})
		if err != nil {
			return err
		}

		afterSnap := domain.SnapshotPayment(after)
		afterSnap.EscrowID = &rec.ID
		return s.audit.Record(ctx, domain.AuditSubjectPayment, paymentID, "payment.confirmed", actor,
			domain.SnapshotPayment(before), afterSnap)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStatus(ctx, paymentID)
	if s.ws != nil {
		_ = s.ws.NotifyPaymentStatus(ctx, 0, paymentID, string(after.Status))
	}
	return after, nil
}

// Fail records a declined or abandoned authorization.
func (s *LedgerService) Fail(ctx context.Context, paymentID, actor string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		before, err := s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := s.payments.MarkFailed(ctx, paymentID, time.Now()); err != nil {
			return err
		}
		after, err := s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, domain.AuditSubjectPayment, paymentID, "payment.failed", actor,
			domain.SnapshotPayment(before), domain.SnapshotPayment(after))
	})
	if err != nil {
		return err
	}
	s.invalidateStatus(ctx, paymentID)
	return nil
}

// Capture finalizes the charge after the consultation actually happened and
// releases escrow to its payee/platform split. The completion check fails
// closed: an unreachable engagement subsystem blocks capture.
func (s *LedgerService) Capture(ctx context.Context, paymentID, actor string) (*domain.Payment, error) {
	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	complete, err := s.completion.IsEngagementComplete(ctx, p.BookingID)
	if err != nil {
		return nil, err
	}
	if !complete {
		return nil, fmt.Errorf("%w: engagement %s has not finished", domain.ErrEngagementNotComplete, p.BookingID)
	}

	var after *domain.Payment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		before, err := s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := s.payments.MarkCaptured(ctx, paymentID, time.Now()); err != nil {
			return err
		}
		after, err = s.payments.GetByID(ctx, paymentID)
		if err != nil {
			return err
		}
		if err := s.audit.Record(ctx, domain.AuditSubjectPayment, paymentID, "payment.captured", actor,
			domain.SnapshotPayment(before), domain.SnapshotPayment(after)); err != nil {
			return err
		}

		_, err = s.escrow.Release(ctx, paymentID, domain.ReleaseFull, 0, "engagement completed", actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateStatus(ctx, paymentID)
	if s.ws != nil {
		_ = s.ws.NotifyPaymentStatus(ctx, 0, paymentID, string(after.Status))
	}
	log.Printf("payment %s captured, escrow released", paymentID)
	return after, nil
}

type RefundRequest struct {
	PaymentID string
	Type      domain.RefundType
	// Amount applies to partial and dispute refunds. Full refunds take the
	// outstanding remainder; policy refunds are computed from the policy.
	Amount                int64
	Reason                string
	HoursUntilAppointment float64
	Policy                domain.CancellationPolicy
	Actor                 string
}

// Refund returns money toward the payer, bounded so the lifetime refunded
// total never exceeds the original charge. A policy refund that lands on the
// 0% tier is reported back without persisting anything.
func (s *LedgerService) Refund(ctx context.Context, req RefundRequest) (*domain.Refund, error) {
	if req.PaymentID == "" {
		return nil, domain.ErrValidation
	}

	var out *domain.Refund
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.GetByID(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		switch p.Status {
		case domain.PaymentAuthorized, domain.PaymentCaptured, domain.PaymentPartiallyRefunded:
		default:
			return fmt.Errorf("%w: cannot refund payment in status %s", domain.ErrInvalidState, p.Status)
		}

		already, err := s.refunds.SumActiveByPayment(ctx, req.PaymentID)
		if err != nil {
			return err
		}

		amount := req.Amount
		reason := req.Reason
		switch req.Type {
		case domain.RefundFull:
			amount = p.TotalAmount - already
		case domain.RefundPartial, domain.RefundDispute:
			if amount <= 0 {
				return fmt.Errorf("%w: refund amount must be positive", domain.ErrValidation)
			}
		case domain.RefundCancellationPolicy:
			outcome := ComputeRefund(req.Policy, p.TotalAmount, req.HoursUntilAppointment)
			amount = outcome.Amount
			reason = outcome.Reason
			if amount == 0 {
				out = &domain.Refund{
					PaymentID: req.PaymentID,
					Amount:    0,
					Reason:    reason,
					Type:      req.Type,
					Status:    domain.RefundSettled,
				}
				return nil
			}
		default:
			return fmt.Errorf("%w: unknown refund type %q", domain.ErrValidation, req.Type)
		}

		if already+amount > p.TotalAmount {
			return fmt.Errorf("%w: refunds %d would exceed charge %d", domain.ErrInvariant, already+amount, p.TotalAmount)
		}

		// Pull the refunded portion out of custody. After capture the escrow
		// is already settled, which is fine; a frozen escrow blocks the
		// refund until the dispute resolves.
		err = s.escrow.ReleaseToPayer(ctx, req.PaymentID, amount, refundReleaseReason(req.Type), req.Actor)
		if err != nil && !errors.Is(err, domain.ErrInvalidState) && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		now := time.Now()
		to := domain.PaymentPartiallyRefunded
		if already+amount == p.TotalAmount {
			to = domain.PaymentRefunded
		}
		if err := s.payments.MarkRefunded(ctx, req.PaymentID, to, now); err != nil {
			return err
		}

		settleAt := now.Add(refundSettlementDelay)
		refund := domain.Refund{
			ID:                   uuid.NewString(),
			PaymentID:            req.PaymentID,
			Amount:               amount,
			Reason:               reason,
			Type:                 req.Type,
			Status:               domain.RefundPending,
			ExpectedSettlementAt: &settleAt,
			CreatedAt:            now,
		}
		if err := s.refunds.Create(ctx, refund); err != nil {
			return err
		}

		after, err := s.payments.GetByID(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		beforeSnap := domain.SnapshotPayment(p)
		beforeSnap.RefundedAmount = already
		afterSnap := domain.SnapshotPayment(after)
		afterSnap.RefundedAmount = already + amount
		if err := s.audit.Record(ctx, domain.AuditSubjectPayment, req.PaymentID, "payment.refunded", req.Actor,
			beforeSnap, afterSnap); err != nil {
			return err
		}

		out = &refund
		return nil
	})
	if err != nil {
		return nil, err
	}

	if out.ID != "" {
		s.invalidateStatus(ctx, req.PaymentID)
		if s.ws != nil {
			_ = s.ws.NotifyPaymentStatus(ctx, 0, req.PaymentID, "refund_"+string(out.Status))
		}
	}
	return out, nil
}

func refundReleaseReason(t domain.RefundType) string {
	switch t {
	case domain.RefundCancellationPolicy:
		return "cancellation refund"
	case domain.RefundDispute:
		return "dispute refund"
	default:
		return "refund"
	}
}

// StatusView is the aggregate read model for one payment.
type StatusView struct {
	Payment       *domain.Payment        `json:"payment"`
	Escrow        *domain.EscrowRecord   `json:"escrow,omitempty"`
	Refunds       []domain.Refund        `json:"refunds,omitempty"`
	RefundedTotal int64                  `json:"refunded_total"`
	Audit         []domain.AuditLogEntry `json:"audit"`
}

func statusCacheKey(paymentID string) string {
	return "payment_status:" + paymentID
}

// GetStatus assembles the payment, its escrow record, refunds and audit
// trail. Views are cached briefly; every mutation invalidates the key.
func (s *LedgerService) GetStatus(ctx context.Context, paymentID string) (*StatusView, error) {
	if paymentID == "" {
		return nil, domain.ErrValidation
	}

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, statusCacheKey(paymentID)); err == nil && raw != "" {
			var view StatusView
			if err := json.Unmarshal([]byte(raw), &view); err == nil {
				return &view, nil
			}
		}
	}

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	view := StatusView{Payment: p}

	rec, err := s.escrow.GetByPaymentID(ctx, paymentID)
	switch {
	case err == nil:
		view.Escrow = rec
	case errors.Is(err, domain.ErrNotFound):
	default:
		return nil, err
	}

	view.Refunds, err = s.refunds.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	for _, r := range view.Refunds {
		if r.Status != domain.RefundFailed {
			view.RefundedTotal += r.Amount
		}
	}

	view.Audit, err = s.audit.ListBySubject(ctx, domain.AuditSubjectPayment, paymentID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(view); err == nil {
			_ = s.cache.Set(ctx, statusCacheKey(paymentID), string(raw), statusCacheTTL)
		}
	}
	return &view, nil
}

func (s *LedgerService) invalidateStatus(ctx context.Context, paymentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, statusCacheKey(paymentID)); err != nil {
		log.Printf("invalidate status cache for %s: %v", paymentID, err)
	}
}
