package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"consult-settlement/internal/domain"
)

type EscrowRepository struct {
	db *sql.DB
}

func NewEscrowRepository(db *sql.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

func (r *EscrowRepository) q(ctx context.Context) querier {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return r.db
}

const escrowColumns = `id, payment_id, total_amount, held_amount, released_amount, payee_share, platform_share, currency, status, auto_release_at, dispute_id, freeze_reason, frozen_at, released_at, release_reason, created_at, updated_at`

func (r *EscrowRepository) Create(ctx context.Context, e domain.EscrowRecord) error {
	query := `INSERT INTO escrow_records (` + escrowColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.q(ctx).ExecContext(ctx, query,
		e.ID,
		e.PaymentID,
		e.TotalAmount,
		e.HeldAmount,
		e.ReleasedAmount,
		e.PayeeShare,
		e.PlatformShare,
		e.Currency,
		string(e.Status),
		e.AutoReleaseAt,
		e.DisputeID,
		e.FreezeReason,
		e.FrozenAt,
		e.ReleasedAt,
		e.ReleaseReason,
		e.CreatedAt,
		e.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicateEscrow
		}
		return fmt.Errorf("insert escrow record: %w", err)
	}
	return nil
}

func (r *EscrowRepository) GetByPaymentID(ctx context.Context, paymentID string) (*domain.EscrowRecord, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_records WHERE payment_id = $1`
	return scanEscrow(r.q(ctx).QueryRowContext(ctx, query, paymentID))
}

func scanEscrow(row *sql.Row) (*domain.EscrowRecord, error) {
	var (
		e             domain.EscrowRecord
		status        string
		disputeID     sql.NullString
		freezeReason  sql.NullString
		releaseReason sql.NullString
	)
	err := row.Scan(
		&e.ID,
		&e.PaymentID,
		&e.TotalAmount,
		&e.HeldAmount,
		&e.ReleasedAmount,
		&e.PayeeShare,
		&e.PlatformShare,
		&e.Currency,
		&status,
		&e.AutoReleaseAt,
		&disputeID,
		&freezeReason,
		&e.FrozenAt,
		&e.ReleasedAt,
		&releaseReason,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan escrow record: %w", err)
	}

	e.Status = domain.EscrowStatus(status)
	if disputeID.Valid {
		e.DisputeID = &disputeID.String
	}
	if freezeReason.Valid {
		e.FreezeReason = &freezeReason.String
	}
	if releaseReason.Valid {
		e.ReleaseReason = &releaseReason.String
	}
	return &e, nil
}

// ReleaseFull moves all held funds to released in a single conditional
// update. Arithmetic happens inside the UPDATE, so the conservation invariant
// (held + released == total) can never be broken by a concurrent writer.
func (r *EscrowRepository) ReleaseFull(ctx context.Context, paymentID string, to domain.EscrowStatus, reason string, at time.Time) (*domain.EscrowRecord, error) {
	if to != domain.EscrowReleasedToPayee && to != domain.EscrowReleasedToPayer {
		return nil, domain.ErrValidation
	}

	query := `UPDATE escrow_records
		SET released_amount = released_amount + held_amount,
		    held_amount = 0,
		    status = $1,
		    released_at = $2,
		    release_reason = $3,
		    updated_at = $2
		WHERE payment_id = $4 AND status IN ('held', 'partial_release')
		RETURNING ` + escrowColumns

	rec, err := scanEscrow(r.q(ctx).QueryRowContext(ctx, query, string(to), at, reason, paymentID))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return nil, r.classifyReleaseFailure(ctx, paymentID, 0)
}

// ReleasePartial decrements held and increments released by amount, guarded
// by held_amount >= amount in the WHERE clause.
func (r *EscrowRepository) ReleasePartial(ctx context.Context, paymentID string, amount int64, reason string, at time.Time) (*domain.EscrowRecord, error) {
	if amount <= 0 {
		return nil, domain.ErrValidation
	}

	query := `UPDATE escrow_records
		SET held_amount = held_amount - $1,
		    released_amount = released_amount + $1,
		    status = 'partial_release',
		    release_reason = $2,
		    updated_at = $3
		WHERE payment_id = $4 AND status IN ('held', 'partial_release') AND held_amount >= $1
		RETURNING ` + escrowColumns

	rec, err := scanEscrow(r.q(ctx).QueryRowContext(ctx, query, amount, reason, at, paymentID))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	return nil, r.classifyReleaseFailure(ctx, paymentID, amount)
}

// classifyReleaseFailure turns a zero-row conditional release into the
// precise domain error.
func (r *EscrowRepository) classifyReleaseFailure(ctx context.Context, paymentID string, amount int64) error {
	current, err := r.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	switch {
	case current.Status == domain.EscrowDisputed:
		return domain.ErrFrozen
	case !current.Status.Releasable():
		return domain.ErrInvalidState
	case amount > 0 && current.HeldAmount < amount:
		return domain.ErrOverRelease
	default:
		return domain.ErrConflict
	}
}

// Freeze is idempotent per dispute: re-freezing under the same dispute id is
// a no-op, a different dispute id is a conflict.
func (r *EscrowRepository) Freeze(ctx context.Context, paymentID, disputeID, reason string, at time.Time) error {
	query := `UPDATE escrow_records
		SET status = 'disputed', dispute_id = $1, freeze_reason = $2, frozen_at = $3, updated_at = $3
		WHERE payment_id = $4 AND status IN ('held', 'partial_release')`

	res, err := r.q(ctx).ExecContext(ctx, query, disputeID, reason, at, paymentID)
	if err != nil {
		return fmt.Errorf("freeze escrow: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("freeze escrow rows: %w", err)
	}
	if affected == 1 {
		return nil
	}

	current, err := r.GetByPaymentID(ctx, paymentID)
	if err != nil {
		return err
	}
	if current.Status == domain.EscrowDisputed {
		if current.DisputeID != nil && *current.DisputeID == disputeID {
			return nil
		}
		return domain.ErrConflictingFreeze
	}
	return domain.ErrInvalidState
}

// ResolveDispute clears the freeze and moves all held funds out under the
// dispute's terminal status. Only valid from disputed, and only for the
// dispute that froze the record.
func (r *EscrowRepository) ResolveDispute(ctx context.Context, paymentID, disputeID string, to domain.EscrowStatus, at time.Time) (*domain.EscrowRecord, error) {
	if to != domain.EscrowReleasedToPayee && to != domain.EscrowReleasedToPayer {
		return nil, domain.ErrValidation
	}

	query := `UPDATE escrow_records
		SET released_amount = released_amount + held_amount,
		    held_amount = 0,
		    status = $1,
		    released_at = $2,
		    release_reason = 'dispute_resolution',
		    frozen_at = NULL,
		    freeze_reason = NULL,
		    updated_at = $2
		WHERE payment_id = $3 AND status = 'disputed' AND dispute_id = $4
		RETURNING ` + escrowColumns

	rec, err := scanEscrow(r.q(ctx).QueryRowContext(ctx, query, string(to), at, paymentID, disputeID))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	current, getErr := r.GetByPaymentID(ctx, paymentID)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == domain.EscrowDisputed {
		return nil, domain.ErrConflictingFreeze
	}
	return nil, domain.ErrInvalidState
}

// ListAutoReleasable returns held records whose auto-release deadline has
// passed, oldest deadline first.
func (r *EscrowRepository) ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]domain.EscrowRecord, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrow_records
		WHERE status = 'held' AND auto_release_at <= $1
		ORDER BY auto_release_at ASC
		LIMIT $2`

	rows, err := r.q(ctx).QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list auto-releasable: %w", err)
	}
	defer rows.Close()

	var out []domain.EscrowRecord
	for rows.Next() {
		var (
			e             domain.EscrowRecord
			status        string
			disputeID     sql.NullString
			freezeReason  sql.NullString
			releaseReason sql.NullString
		)
		if err := rows.Scan(
			&e.ID,
			&e.PaymentID,
			&e.TotalAmount,
			&e.HeldAmount,
			&e.ReleasedAmount,
			&e.PayeeShare,
			&e.PlatformShare,
			&e.Currency,
			&status,
			&e.AutoReleaseAt,
			&disputeID,
			&freezeReason,
			&e.FrozenAt,
			&e.ReleasedAt,
			&releaseReason,
			&e.CreatedAt,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan auto-releasable: %w", err)
		}
		e.Status = domain.EscrowStatus(status)
		if disputeID.Valid {
			e.DisputeID = &disputeID.String
		}
		if freezeReason.Valid {
			e.FreezeReason = &freezeReason.String
		}
		if releaseReason.Valid {
			e.ReleaseReason = &releaseReason.String
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
