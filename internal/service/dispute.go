package service

import (
	"context"
	"fmt"
	"log"

	"consult-settlement/internal/domain"
)

// DisputeGate translates dispute lifecycle events from the disputes
// subsystem into escrow freezes and resolutions. Events may be delivered
// more than once; both handlers tolerate replays.
type DisputeGate struct {
	escrow *EscrowService
	cache  StatusCache
}

func NewDisputeGate(escrow *EscrowService, cache StatusCache) *DisputeGate {
	return &DisputeGate{escrow: escrow, cache: cache}
}

// HandleOpened freezes the payment's escrow under the dispute. A redelivered
// open event for the same dispute is a no-op; a second dispute on an
// already-frozen escrow is rejected.
func (g *DisputeGate) HandleOpened(ctx context.Context, ev domain.DisputeEvent, actor string) error {
	if ev.DisputeID == "" || ev.PaymentID == "" {
		return domain.ErrValidation
	}
	if err := g.escrow.Freeze(ctx, ev.PaymentID, ev.DisputeID, ev.Reason, actor); err != nil {
		return fmt.Errorf("freeze escrow for dispute %s: %w", ev.DisputeID, err)
	}
	g.invalidate(ctx, ev.PaymentID)
	log.Printf("escrow for payment %s frozen under dispute %s", ev.PaymentID, ev.DisputeID)
	return nil
}

// HandleResolved applies the dispute outcome and lifts the freeze.
func (g *DisputeGate) HandleResolved(ctx context.Context, res domain.DisputeResolution, actor string) error {
	if res.DisputeID == "" || res.PaymentID == "" {
		return domain.ErrValidation
	}
	if err := g.escrow.ResolveDispute(ctx, res, actor); err != nil {
		return fmt.Errorf("resolve dispute %s: %w", res.DisputeID, err)
	}
	g.invalidate(ctx, res.PaymentID)
	log.Printf("dispute %s on payment %s resolved", res.DisputeID, res.PaymentID)
	return nil
}

func (g *DisputeGate) invalidate(ctx context.Context, paymentID string) {
	if g.cache == nil {
		return
	}
	_ = g.cache.Del(ctx, statusCacheKey(paymentID))
}
