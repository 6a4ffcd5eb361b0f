package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"consult-settlement/internal/domain"
)

type PayoutRepository struct {
	db *sql.DB
}

func NewPayoutRepository(db *sql.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) q(ctx context.Context) querier {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return r.db
}

func (r *PayoutRepository) GetOpenPayout(ctx context.Context, payeeID string, periodStart time.Time) (*domain.Payout, error) {
	query := `SELECT id, payee_id, period_start, period_end, gross_amount, fee_amount, net_amount, currency, status, created_at, updated_at
		FROM payouts WHERE payee_id = $1 AND period_start = $2 AND status = 'open'`

	var (
		p      domain.Payout
		status string
	)
	err := r.q(ctx).QueryRowContext(ctx, query, payeeID, periodStart).Scan(
		&p.ID, &p.PayeeID, &p.PeriodStart, &p.PeriodEnd,
		&p.GrossAmount, &p.FeeAmount, &p.NetAmount, &p.Currency,
		&status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get open payout: %w", err)
	}
	p.Status = domain.PayoutStatus(status)
	return &p, nil
}

func (r *PayoutRepository) CreatePayout(ctx context.Context, p domain.Payout) error {
	query := `INSERT INTO payouts (id, payee_id, period_start, period_end, gross_amount, fee_amount, net_amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.q(ctx).ExecContext(ctx, query,
		p.ID, p.PayeeID, p.PeriodStart, p.PeriodEnd,
		p.GrossAmount, p.FeeAmount, p.NetAmount, p.Currency,
		string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// AppendItem inserts the item and bumps the payout's running totals. Both
// statements run on the caller's transaction so they land together.
func (r *PayoutRepository) AppendItem(ctx context.Context, item domain.PayoutItem) error {
	insert := `INSERT INTO payout_items (id, payout_id, engagement_id, payment_id, gross_amount, fee_amount, net_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.q(ctx).ExecContext(ctx, insert,
		item.ID, item.PayoutID, item.EngagementID, item.PaymentID,
		item.GrossAmount, item.FeeAmount, item.NetAmount, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payout item: %w", err)
	}

	update := `UPDATE payouts
		SET gross_amount = gross_amount + $1,
		    fee_amount = fee_amount + $2,
		    net_amount = net_amount + $3,
		    updated_at = $4
		WHERE id = $5 AND status = 'open'`

	res, err := r.q(ctx).ExecContext(ctx, update, item.GrossAmount, item.FeeAmount, item.NetAmount, item.CreatedAt, item.PayoutID)
	if err != nil {
		return fmt.Errorf("update payout totals: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payout totals rows: %w", err)
	}
	if affected != 1 {
		return domain.ErrInvalidState
	}
	return nil
}

// MarkProcessing closes out open payouts whose period ended before the cutoff.
func (r *PayoutRepository) MarkProcessing(ctx context.Context, before time.Time, at time.Time) (int64, error) {
	query := `UPDATE payouts SET status = 'processing', updated_at = $1 WHERE status = 'open' AND period_end <= $2`

	res, err := r.q(ctx).ExecContext(ctx, query, at, before)
	if err != nil {
		return 0, fmt.Errorf("mark payouts processing: %w", err)
	}
	return res.RowsAffected()
}

func (r *PayoutRepository) ListByPayee(ctx context.Context, payeeID string) ([]domain.Payout, error) {
	query := `SELECT id, payee_id, period_start, period_end, gross_amount, fee_amount, net_amount, currency, status, created_at, updated_at
		FROM payouts WHERE payee_id = $1 ORDER BY period_start DESC`

	rows, err := r.q(ctx).QueryContext(ctx, query, payeeID)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var out []domain.Payout
	for rows.Next() {
		var (
			p      domain.Payout
			status string
		)
		if err := rows.Scan(
			&p.ID, &p.PayeeID, &p.PeriodStart, &p.PeriodEnd,
			&p.GrossAmount, &p.FeeAmount, &p.NetAmount, &p.Currency,
			&status, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		p.Status = domain.PayoutStatus(status)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PayoutRepository) ListItems(ctx context.Context, payoutID string) ([]domain.PayoutItem, error) {
	query := `SELECT id, payout_id, engagement_id, payment_id, gross_amount, fee_amount, net_amount, created_at
		FROM payout_items WHERE payout_id = $1 ORDER BY created_at ASC`

	rows, err := r.q(ctx).QueryContext(ctx, query, payoutID)
	if err != nil {
		return nil, fmt.Errorf("list payout items: %w", err)
	}
	defer rows.Close()

	var out []domain.PayoutItem
	for rows.Next() {
		var item domain.PayoutItem
		if err := rows.Scan(
			&item.ID, &item.PayoutID, &item.EngagementID, &item.PaymentID,
			&item.GrossAmount, &item.FeeAmount, &item.NetAmount, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payout item: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
