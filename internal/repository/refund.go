package repository

import (
	"context"
	"database/sql"
	"fmt"

	"consult-settlement/internal/domain"
)

type RefundRepository struct {
	db *sql.DB
}

func NewRefundRepository(db *sql.DB) *RefundRepository {
	return &RefundRepository{db: db}
}

func (r *RefundRepository) q(ctx context.Context) querier {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return r.db
}

func (r *RefundRepository) Create(ctx context.Context, ref domain.Refund) error {
	query := `INSERT INTO refunds (id, payment_id, amount, reason, type, status, expected_settlement_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.q(ctx).ExecContext(ctx, query,
		ref.ID,
		ref.PaymentID,
		ref.Amount,
		ref.Reason,
		string(ref.Type),
		string(ref.Status),
		ref.ExpectedSettlementAt,
		ref.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// SumActiveByPayment totals all non-failed refunds against a payment; used
// to enforce the conservation invariant before creating another refund.
func (r *RefundRepository) SumActiveByPayment(ctx context.Context, paymentID string) (int64, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE payment_id = $1 AND status <> 'failed'`

	var sum int64
	if err := r.q(ctx).QueryRowContext(ctx, query, paymentID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum refunds: %w", err)
	}
	return sum, nil
}

func (r *RefundRepository) ListByPayment(ctx context.Context, paymentID string) ([]domain.Refund, error) {
	query := `SELECT id, payment_id, amount, reason, type, status, expected_settlement_at, created_at
		FROM refunds WHERE payment_id = $1 ORDER BY created_at ASC`

	rows, err := r.q(ctx).QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var out []domain.Refund
	for rows.Next() {
		var (
			ref    domain.Refund
			rtype  string
			status string
		)
		if err := rows.Scan(&ref.ID, &ref.PaymentID, &ref.Amount, &ref.Reason, &rtype, &status, &ref.ExpectedSettlementAt, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan refund: %w", err)
		}
		ref.Type = domain.RefundType(rtype)
		ref.Status = domain.RefundStatus(status)
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
