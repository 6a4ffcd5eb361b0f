package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"consult-settlement/internal/domain"
)

const sweepBatchSize = 100

// Capturer is the slice of the ledger the sweeper drives. Auto-release goes
// through the same capture path as a manual capture, so both produce the
// same audit trail and payout enrollment.
type Capturer interface {
	Capture(ctx context.Context, paymentID, actor string) (*domain.Payment, error)
}

// SweepReport tallies one sweeper pass.
type SweepReport struct {
	Scanned  int
	Released int
	Skipped  int
	Failed   int
}

// Sweeper periodically releases escrow records whose auto-release deadline
// has passed. Conditional updates underneath capture make each record
// release exactly once even when two sweeper instances overlap.
type Sweeper struct {
	escrow     *EscrowService
	payments   PaymentReader
	completion Completion
	ledger     Capturer

	interval time.Duration
}

func NewSweeper(escrow *EscrowService, payments PaymentReader, completion Completion, ledger Capturer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{escrow: escrow, payments: payments, completion: completion, ledger: ledger, interval: interval}
}

// Sweep releases every due record it can and keeps going past individual
// failures. A record whose engagement never completed is skipped and picked
// up again on the next pass.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	var report SweepReport

	due, err := s.escrow.ListAutoReleasable(ctx, now, sweepBatchSize)
	if err != nil {
		return report, fmt.Errorf("list auto-releasable escrow: %w", err)
	}
	report.Scanned = len(due)

	var errs []error
	for _, rec := range due {
		p, err := s.payments.GetByID(ctx, rec.PaymentID)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("payment %s: %w", rec.PaymentID, err))
			continue
		}

		complete, err := s.completion.IsEngagementComplete(ctx, p.BookingID)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("completion check for %s: %w", p.BookingID, err))
			continue
		}
		if !complete {
			report.Skipped++
			continue
		}

		if _, err := s.ledger.Capture(ctx, rec.PaymentID, "sweeper"); err != nil {
			// another instance got there first, not a failure
			if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrConflict) {
				report.Skipped++
				continue
			}
			report.Failed++
			errs = append(errs, fmt.Errorf("capture %s: %w", rec.PaymentID, err))
			continue
		}
		report.Released++
	}

	if report.Scanned > 0 {
		log.Printf("sweep: scanned=%d released=%d skipped=%d failed=%d",
			report.Scanned, report.Released, report.Skipped, report.Failed)
	}
	return report, errors.Join(errs...)
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := s.Sweep(ctx, now); err != nil {
				log.Printf("sweep pass finished with errors: %v", err)
			}
		}
	}
}
