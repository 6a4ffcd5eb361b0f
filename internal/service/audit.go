package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"consult-settlement/internal/domain"

	"github.com/google/uuid"
)

type AuditStore interface {
	Append(ctx context.Context, e domain.AuditLogEntry) error
	ListBySubject(ctx context.Context, subjectType, subjectID string) ([]domain.AuditLogEntry, error)
}

// AuditTrail writes one append-only entry per state-changing operation. It is
// always invoked on the same context as the mutation, so a transactional
// caller commits the entry and the mutation together.
type AuditTrail struct {
	store AuditStore
}

func NewAuditTrail(store AuditStore) *AuditTrail {
	return &AuditTrail{store: store}
}

func (a *AuditTrail) Record(ctx context.Context, subjectType, subjectID, action, actor string, before, after any) error {
	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return fmt.Errorf("marshal before snapshot: %w", err)
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return fmt.Errorf("marshal after snapshot: %w", err)
	}

	return a.store.Append(ctx, domain.AuditLogEntry{
		ID:          uuid.NewString(),
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Action:      action,
		Actor:       actor,
		Before:      beforeJSON,
		After:       afterJSON,
		CreatedAt:   time.Now(),
	})
}

func (a *AuditTrail) ListBySubject(ctx context.Context, subjectType, subjectID string) ([]domain.AuditLogEntry, error) {
	return a.store.ListBySubject(ctx, subjectType, subjectID)
}
