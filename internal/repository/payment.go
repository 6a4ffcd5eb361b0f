package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"consult-settlement/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) q(ctx context.Context) querier {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return r.db
}

const paymentColumns = `id, reference, booking_id, payer_id, payee_id, base_amount, platform_fee, tax_amount, total_amount, currency, status, provider, provider_txn_ref, risk_level, risk_score, risk_factors, engagement_end, created_at, authorized_at, captured_at, refunded_at`

func (r *PaymentRepository) Create(ctx context.Context, p domain.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	_, err := r.q(ctx).ExecContext(ctx, query,
		p.ID,
		p.Reference,
		p.BookingID,
		p.PayerID,
		p.PayeeID,
		p.BaseAmount,
		p.PlatformFee,
		p.TaxAmount,
		p.TotalAmount,
		p.Currency,
		string(p.Status),
		p.Provider,
		p.ProviderTxnRef,
		p.RiskLevel,
		p.RiskScore,
		strings.Join(p.RiskFactors, ","),
		p.EngagementEnd,
		p.CreatedAt,
		p.AuthorizedAt,
		p.CapturedAt,
		p.RefundedAt,
	)
	if err != nil {
		// payments has a partial unique index on booking_id where status <> 'failed'
		if isUniqueViolation(err) {
			return domain.ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.scanOne(r.q(ctx).QueryRowContext(ctx, query, id))
}

// GetActiveByBooking returns the single non-failed payment for a booking.
func (r *PaymentRepository) GetActiveByBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE booking_id = $1 AND status <> 'failed' LIMIT 1`
	return r.scanOne(r.q(ctx).QueryRowContext(ctx, query, bookingID))
}

func (r *PaymentRepository) scanOne(row *sql.Row) (*domain.Payment, error) {
	var (
		p           domain.Payment
		status      string
		providerRef sql.NullString
		riskFactors sql.NullString
	)
	err := row.Scan(
		&p.ID,
		&p.Reference,
		&p.BookingID,
		&p.PayerID,
		&p.PayeeID,
		&p.BaseAmount,
		&p.PlatformFee,
		&p.TaxAmount,
		&p.TotalAmount,
		&p.Currency,
		&status,
		&p.Provider,
		&providerRef,
		&p.RiskLevel,
		&p.RiskScore,
		&riskFactors,
		&p.EngagementEnd,
		&p.CreatedAt,
		&p.AuthorizedAt,
		&p.CapturedAt,
		&p.RefundedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	p.Status = domain.PaymentStatus(status)
	if providerRef.Valid {
		p.ProviderTxnRef = &providerRef.String
	}
	if riskFactors.Valid && riskFactors.String != "" {
		p.RiskFactors = strings.Split(riskFactors.String, ",")
	}
	return &p, nil
}

// transition performs the conditional status update that makes concurrent
// double-moves impossible: the write applies only if the row is still in one
// of the expected source statuses.
func (r *PaymentRepository) transition(ctx context.Context, id string, from []domain.PaymentStatus, query string, args ...any) error {
	res, err := r.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("payment transition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("payment transition rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Lost the race or wrong state; classify from the current row.
	current, getErr := r.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	for _, s := range from {
		if current.Status == s {
			// Row was in an expected state on re-read: the conditional write
			// lost to a concurrent transaction. Caller may retry.
			return domain.ErrConflict
		}
	}
	return domain.ErrInvalidState
}

func (r *PaymentRepository) MarkAuthorized(ctx context.Context, id, providerTxnRef string, at time.Time) error {
	query := `UPDATE payments SET status = 'authorized', provider_txn_ref = $1, authorized_at = $2 WHERE id = $3 AND status = 'pending'`
	return r.transition(ctx, id, []domain.PaymentStatus{domain.PaymentPending}, query, providerTxnRef, at, id)
}

func (r *PaymentRepository) MarkCaptured(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE payments SET status = 'captured', captured_at = $1 WHERE id = $2 AND status = 'authorized'`
	return r.transition(ctx, id, []domain.PaymentStatus{domain.PaymentAuthorized}, query, at, id)
}

func (r *PaymentRepository) MarkFailed(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE payments SET status = 'failed' WHERE id = $1 AND status IN ('pending', 'authorized')`
	return r.transition(ctx, id, []domain.PaymentStatus{domain.PaymentPending, domain.PaymentAuthorized}, query, id)
}

func (r *PaymentRepository) MarkRefunded(ctx context.Context, id string, to domain.PaymentStatus, at time.Time) error {
	if to != domain.PaymentRefunded && to != domain.PaymentPartiallyRefunded {
		return domain.ErrValidation
	}
	query := `UPDATE payments SET status = $1, refunded_at = $2 WHERE id = $3 AND status IN ('authorized', 'captured', 'partially_refunded')`
	from := []domain.PaymentStatus{domain.PaymentAuthorized, domain.PaymentCaptured, domain.PaymentPartiallyRefunded}
	return r.transition(ctx, id, from, query, string(to), at, id)
}
