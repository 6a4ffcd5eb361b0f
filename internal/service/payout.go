package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"consult-settlement/internal/domain"

	"github.com/google/uuid"
)

// Transactor runs fn inside a database transaction carried on the context.
// Nested calls reuse the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type PayoutStore interface {
	GetOpenPayout(ctx context.Context, payeeID string, periodStart time.Time) (*domain.Payout, error)
	CreatePayout(ctx context.Context, p domain.Payout) error
	AppendItem(ctx context.Context, item domain.PayoutItem) error
	MarkProcessing(ctx context.Context, before time.Time, at time.Time) (int64, error)
	ListByPayee(ctx context.Context, payeeID string) ([]domain.Payout, error)
	ListItems(ctx context.Context, payoutID string) ([]domain.PayoutItem, error)
}

// PayoutService aggregates released earnings into weekly payouts, one open
// payout per payee per period. Every enrollment rides the transaction of the
// one-winner escrow release that triggered it, so a movement can never be
// counted twice.
type PayoutService struct {
	store PayoutStore
	tx    Transactor
}

func NewPayoutService(store PayoutStore, tx Transactor) *PayoutService {
	return &PayoutService{store: store, tx: tx}
}

// payoutPeriodStart truncates t to the Monday 00:00 UTC opening its
// settlement week.
func payoutPeriodStart(t time.Time) time.Time {
	t = t.UTC()
	day := t.Truncate(24 * time.Hour)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Enroll folds one payee-directed fund movement into the payee's current
// open payout, creating the payout if the period has none yet. Each call
// records its own item; callers run it inside the same transaction as the
// conditional escrow release, which guarantees one item per movement. An
// engagement released in stages therefore contributes one item per stage,
// summing to exactly what left custody toward the payee.
func (s *PayoutService) Enroll(ctx context.Context, payeeID, engagementID, paymentID string, grossAmount, platformFee int64, currency string) error {
	if payeeID == "" || engagementID == "" {
		return domain.ErrValidation
	}
	if grossAmount <= 0 || platformFee < 0 || platformFee > grossAmount {
		return fmt.Errorf("%w: enroll amounts gross=%d fee=%d", domain.ErrValidation, grossAmount, platformFee)
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		now := time.Now()
		periodStart := payoutPeriodStart(now)

		payout, err := s.store.GetOpenPayout(ctx, payeeID, periodStart)
		if errors.Is(err, domain.ErrNotFound) {
			payout = &domain.Payout{
				ID:          uuid.NewString(),
				PayeeID:     payeeID,
				PeriodStart: periodStart,
				PeriodEnd:   periodStart.AddDate(0, 0, 7),
				Currency:    currency,
				Status:      domain.PayoutOpen,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.store.CreatePayout(ctx, *payout); err != nil {
				// lost a race to another enrollment, reload theirs
				if errors.Is(err, domain.ErrConflict) {
					payout, err = s.store.GetOpenPayout(ctx, payeeID, periodStart)
					if err != nil {
						return err
					}
				} else {
					return err
				}
			}
		} else if err != nil {
			return err
		}

		item := domain.PayoutItem{
			ID:           uuid.NewString(),
			PayoutID:     payout.ID,
			EngagementID: engagementID,
			PaymentID:    paymentID,
			GrossAmount:  grossAmount,
			FeeAmount:    platformFee,
			NetAmount:    grossAmount - platformFee,
			CreatedAt:    now,
		}
		return s.store.AppendItem(ctx, item)
	})
}

// ClosePeriods flips every open payout whose period has ended into
// processing, handing them to the disbursement run.
func (s *PayoutService) ClosePeriods(ctx context.Context, now time.Time) (int64, error) {
	return s.store.MarkProcessing(ctx, now, now)
}

func (s *PayoutService) ListByPayee(ctx context.Context, payeeID string) ([]domain.Payout, error) {
	if payeeID == "" {
		return nil, domain.ErrValidation
	}
	return s.store.ListByPayee(ctx, payeeID)
}

func (s *PayoutService) ListItems(ctx context.Context, payoutID string) ([]domain.PayoutItem, error) {
	return s.store.ListItems(ctx, payoutID)
}
