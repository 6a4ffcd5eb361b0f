package domain

import (
	"encoding/json"
	"time"
)

const (
	AuditSubjectPayment = "payment"
	AuditSubjectEscrow  = "escrow"
	AuditSubjectPayout  = "payout"
)

// AuditLogEntry records one state-changing operation. Entries are append-only
// and written in the same transaction as the mutation they describe.
type AuditLogEntry struct {
	ID          string
	SubjectType string
	SubjectID   string
	Action      string
	Actor       string
	Before      json.RawMessage
	After       json.RawMessage
	CreatedAt   time.Time
}

// PaymentSnapshot is the audited view of a payment at a point in time.
type PaymentSnapshot struct {
	Status         PaymentStatus `json:"status"`
	TotalAmount    int64         `json:"total_amount"`
	Currency       string        `json:"currency"`
	ProviderTxnRef *string       `json:"provider_txn_ref,omitempty"`
	EscrowID       *string       `json:"escrow_id,omitempty"`
	RefundedAmount int64         `json:"refunded_amount,omitempty"`
}

// EscrowSnapshot is the audited view of an escrow record.
type EscrowSnapshot struct {
	Status         EscrowStatus `json:"status"`
	HeldAmount     int64        `json:"held_amount"`
	ReleasedAmount int64        `json:"released_amount"`
	DisputeID      *string      `json:"dispute_id,omitempty"`
}

func SnapshotPayment(p *Payment) *PaymentSnapshot {
	if p == nil {
		return nil
	}
	return &PaymentSnapshot{
		Status:         p.Status,
		TotalAmount:    p.TotalAmount,
		Currency:       p.Currency,
		ProviderTxnRef: p.ProviderTxnRef,
	}
}

func SnapshotEscrow(e *EscrowRecord) *EscrowSnapshot {
	if e == nil {
		return nil
	}
	return &EscrowSnapshot{
		Status:         e.Status,
		HeldAmount:     e.HeldAmount,
		ReleasedAmount: e.ReleasedAmount,
		DisputeID:      e.DisputeID,
	}
}
