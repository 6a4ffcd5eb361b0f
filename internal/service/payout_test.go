package service

import (
	"context"
	"testing"
	"time"

	"consult-settlement/internal/domain"
)

func TestPayoutPeriodStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"monday maps to itself",
			time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		},
		{
			"mid week",
			time.Date(2026, 8, 26, 15, 4, 5, 0, time.UTC),
			time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		},
		{
			"sunday belongs to the preceding monday",
			time.Date(2026, 8, 30, 23, 59, 59, 0, time.UTC),
			time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		},
		{
			"non-utc input is normalized",
			time.Date(2026, 8, 24, 1, 0, 0, 0, time.FixedZone("east", 3*3600)),
			time.Date(2026, 8, 17, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := payoutPeriodStart(tc.in); !got.Equal(tc.want) {
				t.Errorf("payoutPeriodStart(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestPayout_EnrollAggregatesWithinPeriod(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()

	if err := e.payouts.Enroll(ctx, "payee-1", "eng-1", "pay-1", 15000, 2250, "USD"); err != nil {
		t.Fatalf("enroll eng-1: %v", err)
	}
	if err := e.payouts.Enroll(ctx, "payee-1", "eng-2", "pay-2", 8000, 1200, "USD"); err != nil {
		t.Fatalf("enroll eng-2: %v", err)
	}

	payouts, err := e.payouts.ListByPayee(ctx, "payee-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(payouts) != 1 {
		t.Fatalf("payouts = %d, want 1 for a single period", len(payouts))
	}
	po := payouts[0]
	if po.GrossAmount != 23000 || po.FeeAmount != 3450 || po.NetAmount != 19550 {
		t.Fatalf("gross/fee/net = %d/%d/%d, want 23000/3450/19550", po.GrossAmount, po.FeeAmount, po.NetAmount)
	}
	if !po.PeriodEnd.Equal(po.PeriodStart.AddDate(0, 0, 7)) {
		t.Fatalf("period end = %v, want start + 7d", po.PeriodEnd)
	}

	items, err := e.payouts.ListItems(ctx, po.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	for _, it := range items {
		if it.NetAmount != it.GrossAmount-it.FeeAmount {
			t.Errorf("item %s net = %d, want gross - fee", it.EngagementID, it.NetAmount)
		}
	}
}

func TestPayout_EnrollStagedReleasesSumUp(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()

	// an engagement released in two stages contributes one item per stage
	if err := e.payouts.Enroll(ctx, "payee-1", "eng-staged", "pay-1", 1000, 150, "USD"); err != nil {
		t.Fatalf("enroll first stage: %v", err)
	}
	if err := e.payouts.Enroll(ctx, "payee-1", "eng-staged", "pay-1", 14000, 2100, "USD"); err != nil {
		t.Fatalf("enroll second stage: %v", err)
	}

	payouts, _ := e.payouts.ListByPayee(ctx, "payee-1")
	if len(payouts) != 1 {
		t.Fatalf("payouts = %d, want 1", len(payouts))
	}
	if payouts[0].GrossAmount != 15000 || payouts[0].FeeAmount != 2250 || payouts[0].NetAmount != 12750 {
		t.Fatalf("gross/fee/net = %d/%d/%d, want 15000/2250/12750",
			payouts[0].GrossAmount, payouts[0].FeeAmount, payouts[0].NetAmount)
	}
	items, _ := e.payouts.ListItems(ctx, payouts[0].ID)
	if len(items) != 2 {
		t.Fatalf("items = %d, want one per stage", len(items))
	}
}

func TestPayout_EnrollSeparatePayees(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()

	if err := e.payouts.Enroll(ctx, "payee-a", "eng-a", "pay-a", 10000, 1500, "USD"); err != nil {
		t.Fatalf("enroll a: %v", err)
	}
	if err := e.payouts.Enroll(ctx, "payee-b", "eng-b", "pay-b", 20000, 3000, "USD"); err != nil {
		t.Fatalf("enroll b: %v", err)
	}

	a, _ := e.payouts.ListByPayee(ctx, "payee-a")
	b, _ := e.payouts.ListByPayee(ctx, "payee-b")
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("payouts a=%d b=%d, want one each", len(a), len(b))
	}
	if a[0].NetAmount != 8500 || b[0].NetAmount != 17000 {
		t.Fatalf("nets = %d/%d, want 8500/17000", a[0].NetAmount, b[0].NetAmount)
	}
}

func TestPayout_EnrollValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()

	if err := e.payouts.Enroll(ctx, "", "eng", "pay", 100, 0, "USD"); err == nil {
		t.Error("empty payee accepted")
	}
	if err := e.payouts.Enroll(ctx, "payee-1", "eng", "pay", 0, 0, "USD"); err == nil {
		t.Error("zero gross accepted")
	}
	if err := e.payouts.Enroll(ctx, "payee-1", "eng", "pay", 100, 200, "USD"); err == nil {
		t.Error("fee above gross accepted")
	}
}

func TestPayout_ClosePeriods(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine()

	if err := e.payouts.Enroll(ctx, "payee-1", "eng-cl", "pay-cl", 15000, 2250, "USD"); err != nil {
		t.Fatalf("enroll: %v", err)
	}

	// the current period is still open, nothing closes yet
	n, err := e.payouts.ClosePeriods(ctx, time.Now())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if n != 0 {
		t.Fatalf("closed = %d, want 0 before the period ends", n)
	}

	// a week later the payout moves to processing
	n, err = e.payouts.ClosePeriods(ctx, time.Now().AddDate(0, 0, 8))
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if n != 1 {
		t.Fatalf("closed = %d, want 1", n)
	}

	payouts, _ := e.payouts.ListByPayee(ctx, "payee-1")
	if payouts[0].Status != domain.PayoutProcessing {
		t.Fatalf("status = %s, want processing", payouts[0].Status)
	}

	// a closed period can no longer absorb enrollments, a fresh payout opens
	if err := e.payouts.Enroll(ctx, "payee-1", "eng-cl2", "pay-cl2", 5000, 750, "USD"); err != nil {
		t.Fatalf("enroll into closed period: %v", err)
	}
	payouts, _ = e.payouts.ListByPayee(ctx, "payee-1")
	if len(payouts) != 2 {
		t.Fatalf("payouts = %d, want 2 after reopening", len(payouts))
	}
}
