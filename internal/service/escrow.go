package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consult-settlement/internal/clients"
	"consult-settlement/internal/domain"

	"github.com/google/uuid"
)

type EscrowStore interface {
	Create(ctx context.Context, e domain.EscrowRecord) error
	GetByPaymentID(ctx context.Context, paymentID string) (*domain.EscrowRecord, error)
	ReleaseFull(ctx context.Context, paymentID string, to domain.EscrowStatus, reason string, at time.Time) (*domain.EscrowRecord, error)
	ReleasePartial(ctx context.Context, paymentID string, amount int64, reason string, at time.Time) (*domain.EscrowRecord, error)
	Freeze(ctx context.Context, paymentID, disputeID, reason string, at time.Time) error
	ResolveDispute(ctx context.Context, paymentID, disputeID string, to domain.EscrowStatus, at time.Time) (*domain.EscrowRecord, error)
	ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]domain.EscrowRecord, error)
}

type PaymentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
}

type PayoutEnroller interface {
	Enroll(ctx context.Context, payeeID, engagementID, paymentID string, grossAmount, platformFee int64, currency string) error
}

type HoldRequest struct {
	PaymentID     string
	TotalAmount   int64
	PayeeShare    int64
	PlatformShare int64
	Currency      string
	AutoReleaseAt time.Time
}

// EscrowService custodies funds between payment authorization and final
// disbursement. Every fund movement goes through a conditional store update,
// so two concurrent releases can never both apply.
type EscrowService struct {
	store    EscrowStore
	payments PaymentReader
	payouts  PayoutEnroller
	audit    *AuditTrail
	tx       Transactor
	ws       *clients.WebSocketClient
}

func NewEscrowService(store EscrowStore, payments PaymentReader, payouts PayoutEnroller, audit *AuditTrail, tx Transactor, ws *clients.WebSocketClient) *EscrowService {
	return &EscrowService{store: store, payments: payments, payouts: payouts, audit: audit, tx: tx, ws: ws}
}

// Hold opens custody for an authorized payment. The audit entry for the
// normal path is written by the confirm operation that triggers the hold;
// HoldForReconciliation covers the standalone path.
func (s *EscrowService) Hold(ctx context.Context, req HoldRequest) (*domain.EscrowRecord, error) {
	if req.PaymentID == "" || req.TotalAmount <= 0 || req.PayeeShare < 0 || req.PlatformShare < 0 {
		return nil, domain.ErrValidation
	}
	if req.PayeeShare+req.PlatformShare != req.TotalAmount {
		return nil, fmt.Errorf("%w: payee and platform shares must sum to total", domain.ErrInvariant)
	}

	p, err := s.payments.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != domain.PaymentAuthorized {
		return nil, fmt.Errorf("%w: payment %s is %s, not authorized", domain.ErrInvalidState, p.ID, p.Status)
	}

	now := time.Now()
	rec := domain.EscrowRecord{
		ID:            uuid.NewString(),
		PaymentID:     req.PaymentID,
		TotalAmount:   req.TotalAmount,
		HeldAmount:    req.TotalAmount,
		PayeeShare:    req.PayeeShare,
		PlatformShare: req.PlatformShare,
		Currency:      req.Currency,
		Status:        domain.EscrowHeld,
		AutoReleaseAt: req.AutoReleaseAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// HoldForReconciliation is the standalone hold entry point used by tooling
// when a confirm-and-hold was interrupted and needs manual completion.
func (s *EscrowService) HoldForReconciliation(ctx context.Context, req HoldRequest, actor string) (*domain.EscrowRecord, error) {
	var rec *domain.EscrowRecord
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.Hold(ctx, req)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, domain.AuditSubjectEscrow, rec.ID, "escrow.held", actor, nil, domain.SnapshotEscrow(rec))
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Release moves held funds to the payee/platform split. Full releases close
// the record; partial releases decrement held and leave it open. Any
// payee-directed release enrolls exactly the amount it moved with the payout
// aggregator, atomically with the fund movement; the platform fee is prorated
// over the released portion.
func (s *EscrowService) Release(ctx context.Context, paymentID string, kind domain.ReleaseKind, amount int64, reason string, actor string) (*domain.EscrowRecord, error) {
	var rec *domain.EscrowRecord

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		before, err := s.store.GetByPaymentID(ctx, paymentID)
		if err != nil {
			return err
		}

		now := time.Now()
		var (
			action   string
			released int64
		)
		switch kind {
		case domain.ReleaseFull:
			rec, err = s.store.ReleaseFull(ctx, paymentID, domain.EscrowReleasedToPayee, reason, now)
			action = "escrow.released"
			released = before.HeldAmount
		case domain.ReleasePartial:
			rec, err = s.store.ReleasePartial(ctx, paymentID, amount, reason, now)
			action = "escrow.partial_release"
			released = amount
		default:
			return domain.ErrValidation
		}
		if err != nil {
			return err
		}

		if released > 0 {
			p, err := s.payments.GetByID(ctx, paymentID)
			if err != nil {
				return err
			}
			fee := roundHalfEvenDiv(released*rec.PlatformShare, rec.TotalAmount)
			if err := s.payouts.Enroll(ctx, p.PayeeID, p.BookingID, paymentID, released, fee, rec.Currency); err != nil {
				return err
			}
		}

		return s.audit.Record(ctx, domain.AuditSubjectEscrow, rec.ID, action, actor,
			domain.SnapshotEscrow(before), domain.SnapshotEscrow(rec))
	})
	if err != nil {
		return nil, err
	}

	if s.ws != nil {
		_ = s.ws.NotifyEscrowReleased(ctx, 0, paymentID, rec.ReleasedAmount, string(rec.Status))
	}
	return rec, nil
}

// ReleaseToPayer returns held funds toward the payer as part of a refund.
// No payout enrollment happens here.
func (s *EscrowService) ReleaseToPayer(ctx context.Context, paymentID string, amount int64, reason string, actor string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		before, err := s.store.GetByPaymentID(ctx, paymentID)
		if err != nil {
			return err
		}

		now := time.Now()
		var rec *domain.EscrowRecord
		if amount >= before.HeldAmount {
			rec, err = s.store.ReleaseFull(ctx, paymentID, domain.EscrowReleasedToPayer, reason, now)
		} else {
			rec, err = s.store.ReleasePartial(ctx, paymentID, amount, reason, now)
		}
		if err != nil {
			return err
		}

		return s.audit.Record(ctx, domain.AuditSubjectEscrow, rec.ID, "escrow.released_to_payer", actor,
			domain.SnapshotEscrow(before), domain.SnapshotEscrow(rec))
	})
}

// Freeze pins the record under a dispute. Re-freezing under the same dispute
// is a no-op; a different dispute is rejected.
func (s *EscrowService) Freeze(ctx context.Context, paymentID, disputeID, reason string, actor string) error {
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		before, err := s.store.GetByPaymentID(ctx, paymentID)
		if err != nil {
			return err
		}
		if before.Status == domain.EscrowDisputed && before.DisputeID != nil && *before.DisputeID == disputeID {
			return nil
		}

		if err := s.store.Freeze(ctx, paymentID, disputeID, reason, time.Now()); err != nil {
			return err
		}

		after, err := s.store.GetByPaymentID(ctx, paymentID)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, domain.AuditSubjectEscrow, after.ID, "escrow.frozen", actor,
			domain.SnapshotEscrow(before), domain.SnapshotEscrow(after))
	})
	if err != nil {
		return err
	}

	if s.ws != nil {
		_ = s.ws.NotifyEscrowFrozen(ctx, 0, paymentID, disputeID, reason)
	}
	return nil
}

// ResolveDispute applies the dispute's fund split and lifts the freeze.
// Amount goes to the side named by the resolution; the remainder of the held
// funds goes to the other side. Safe to replay for the same dispute.
func (s *EscrowService) ResolveDispute(ctx context.Context, res domain.DisputeResolution, actor string) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		before, err := s.store.GetByPaymentID(ctx, res.PaymentID)
		if err != nil {
			return err
		}

		if before.Status != domain.EscrowDisputed {
			// Replay of an already-applied resolution is fine; anything else
			// is an ordering bug.
			if before.DisputeID != nil && *before.DisputeID == res.DisputeID && !before.Status.Releasable() {
				return nil
			}
			return fmt.Errorf("%w: escrow for payment %s is %s, not disputed", domain.ErrInvalidState, res.PaymentID, before.Status)
		}
		if res.Amount < 0 || res.Amount > before.HeldAmount {
			return fmt.Errorf("%w: resolution amount %d outside held funds %d", domain.ErrInvariant, res.Amount, before.HeldAmount)
		}

		to := domain.EscrowReleasedToPayer
		payeePortion := before.HeldAmount - res.Amount
		if res.ToPayee {
			to = domain.EscrowReleasedToPayee
			payeePortion = res.Amount
		}

		rec, err := s.store.ResolveDispute(ctx, res.PaymentID, res.DisputeID, to, time.Now())
		if err != nil {
			return err
		}

		if payeePortion > 0 {
			p, err := s.payments.GetByID(ctx, res.PaymentID)
			if err != nil {
				return err
			}
			if err := s.payouts.Enroll(ctx, p.PayeeID, p.BookingID, res.PaymentID, payeePortion, 0, rec.Currency); err != nil {
				return err
			}
		}

		return s.audit.Record(ctx, domain.AuditSubjectEscrow, rec.ID, "escrow.dispute_resolved", actor,
			domain.SnapshotEscrow(before), domain.SnapshotEscrow(rec))
	})
}

func (s *EscrowService) GetByPaymentID(ctx context.Context, paymentID string) (*domain.EscrowRecord, error) {
	rec, err := s.store.GetByPaymentID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load escrow for payment %s: %w", paymentID, err)
	}
	return rec, nil
}

func (s *EscrowService) ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]domain.EscrowRecord, error) {
	return s.store.ListAutoReleasable(ctx, now, limit)
}
