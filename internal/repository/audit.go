package repository

import (
	"context"
	"database/sql"
	"fmt"

	"consult-settlement/internal/domain"
)

type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) q(ctx context.Context) querier {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return r.db
}

// Append inserts one audit entry. The table is append-only; there are no
// update or delete methods on purpose.
func (r *AuditRepository) Append(ctx context.Context, e domain.AuditLogEntry) error {
	query := `INSERT INTO audit_log (id, subject_type, subject_id, action, actor, before_state, after_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.q(ctx).ExecContext(ctx, query,
		e.ID,
		e.SubjectType,
		e.SubjectID,
		e.Action,
		e.Actor,
		[]byte(e.Before),
		[]byte(e.After),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListBySubject(ctx context.Context, subjectType, subjectID string) ([]domain.AuditLogEntry, error) {
	query := `SELECT id, subject_type, subject_id, action, actor, before_state, after_state, created_at
		FROM audit_log WHERE subject_type = $1 AND subject_id = $2 ORDER BY created_at ASC`

	rows, err := r.q(ctx).QueryContext(ctx, query, subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []domain.AuditLogEntry
	for rows.Next() {
		var (
			e      domain.AuditLogEntry
			before []byte
			after  []byte
		)
		if err := rows.Scan(&e.ID, &e.SubjectType, &e.SubjectID, &e.Action, &e.Actor, &before, &after, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Before = before
		e.After = after
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
