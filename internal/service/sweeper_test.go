package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"consult-settlement/internal/domain"
)

func TestSweeper_ReleasesDueEscrow(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	p := e.initiateAndConfirm(ctx, "bk-sw1")

	// before the deadline nothing is due
	report, err := e.sweeper.Sweep(ctx, time.Now())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Scanned != 0 {
		t.Fatalf("scanned = %d, want 0 before the deadline", report.Scanned)
	}

	report, err = e.sweeper.Sweep(ctx, time.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Scanned != 1 || report.Released != 1 {
		t.Fatalf("report = %+v, want one scanned and released", report)
	}

	p2, _ := e.payments.GetByID(ctx, p.ID)
	if p2.Status != domain.PaymentCaptured {
		t.Fatalf("payment status = %s, want captured", p2.Status)
	}
	rec, _ := e.escrow.GetByPaymentID(ctx, p.ID)
	if rec.Status != domain.EscrowReleasedToPayee {
		t.Fatalf("escrow status = %s, want released_to_payee", rec.Status)
	}

	// the auto-release went through capture, so it audits and enrolls like a
	// manual one
	payouts, _ := e.payouts.ListByPayee(ctx, "payee-1")
	if len(payouts) != 1 {
		t.Fatalf("payouts = %d, want 1", len(payouts))
	}
}

func TestSweeper_SkipsIncompleteEngagements(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	e.initiateAndConfirm(ctx, "bk-sw2")

	e.completion.complete = false
	report, err := e.sweeper.Sweep(ctx, time.Now().Add(48*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Skipped != 1 || report.Released != 0 {
		t.Fatalf("report = %+v, want one skipped", report)
	}

	// the record stays due and releases once the engagement completes
	e.completion.complete = true
	report, _ = e.sweeper.Sweep(ctx, time.Now().Add(48*time.Hour))
	if report.Released != 1 {
		t.Fatalf("report = %+v, want one released on retry", report)
	}
}

func TestSweeper_CompletionOutageCountsAsFailure(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	e.initiateAndConfirm(ctx, "bk-sw3")

	e.completion.err = domain.ErrCollaborator
	report, err := e.sweeper.Sweep(ctx, time.Now().Add(48*time.Hour))
	if err == nil {
		t.Fatal("expected a joined error from the failed pass")
	}
	if report.Failed != 1 || report.Released != 0 {
		t.Fatalf("report = %+v, want one failed", report)
	}
}

func TestSweeper_ConcurrentPassesReleaseOnce(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()
	p := e.initiateAndConfirm(ctx, "bk-sw4")

	now := time.Now().Add(48 * time.Hour)
	reports := make([]SweepReport, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], _ = e.sweeper.Sweep(ctx, now)
		}(i)
	}
	wg.Wait()

	released := reports[0].Released + reports[1].Released
	if released != 1 {
		t.Fatalf("released across passes = %d, want exactly 1", released)
	}

	rec, _ := e.escrow.GetByPaymentID(ctx, p.ID)
	if rec.ReleasedAmount != rec.TotalAmount {
		t.Fatalf("released = %d, want %d", rec.ReleasedAmount, rec.TotalAmount)
	}
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	e := newTestEngine()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		e.sweeper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
