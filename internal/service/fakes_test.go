package service

import (
	"context"
	"sync"
	"time"

	"consult-settlement/internal/clients"
	"consult-settlement/internal/domain"
)

// fakeTx satisfies Transactor without a database. Store-level locking gives
// the same one-winner behavior the conditional SQL updates give in
// production.
type fakeTx struct{}

func (fakeTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakePaymentStore struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{payments: make(map[string]*domain.Payment)}
}

func (s *fakePaymentStore) Create(ctx context.Context, p domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.payments {
		if existing.BookingID == p.BookingID && existing.Status != domain.PaymentFailed {
			return domain.ErrDuplicatePayment
		}
	}
	cp := p
	s.payments[p.ID] = &cp
	return nil
}

func (s *fakePaymentStore) GetByID(ctx context.Context, id string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakePaymentStore) GetActiveByBooking(ctx context.Context, bookingID string) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payments {
		if p.BookingID == bookingID && p.Status != domain.PaymentFailed {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakePaymentStore) transition(id string, from []domain.PaymentStatus, apply func(p *domain.Payment)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok {
		return domain.ErrNotFound
	}
	for _, st := range from {
		if p.Status == st {
			apply(p)
			return nil
		}
	}
	return domain.ErrInvalidState
}

func (s *fakePaymentStore) MarkAuthorized(ctx context.Context, id, providerTxnRef string, at time.Time) error {
	return s.transition(id, []domain.PaymentStatus{domain.PaymentPending}, func(p *domain.Payment) {
		p.Status = domain.PaymentAuthorized
		p.ProviderTxnRef = &providerTxnRef
		p.AuthorizedAt = &at
	})
}

func (s *fakePaymentStore) MarkCaptured(ctx context.Context, id string, at time.Time) error {
	return s.transition(id, []domain.PaymentStatus{domain.PaymentAuthorized}, func(p *domain.Payment) {
		p.Status = domain.PaymentCaptured
		p.CapturedAt = &at
	})
}

func (s *fakePaymentStore) MarkFailed(ctx context.Context, id string, at time.Time) error {
	return s.transition(id, []domain.PaymentStatus{domain.PaymentPending, domain.PaymentAuthorized}, func(p *domain.Payment) {
		p.Status = domain.PaymentFailed
	})
}

func (s *fakePaymentStore) MarkRefunded(ctx context.Context, id string, to domain.PaymentStatus, at time.Time) error {
	from := []domain.PaymentStatus{domain.PaymentAuthorized, domain.PaymentCaptured, domain.PaymentPartiallyRefunded}
	return s.transition(id, from, func(p *domain.Payment) {
		p.Status = to
		p.RefundedAt = &at
	})
}

type fakeEscrowStore struct {
	mu      sync.Mutex
	records map[string]*domain.EscrowRecord // keyed by payment id
}

func newFakeEscrowStore() *fakeEscrowStore {
	return &fakeEscrowStore{records: make(map[string]*domain.EscrowRecord)}
}

func (s *fakeEscrowStore) Create(ctx context.Context, e domain.EscrowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[e.PaymentID]; ok {
		return domain.ErrDuplicateEscrow
	}
	cp := e
	s.records[e.PaymentID] = &cp
	return nil
}

func (s *fakeEscrowStore) GetByPaymentID(ctx context.Context, paymentID string) (*domain.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *fakeEscrowStore) ReleaseFull(ctx context.Context, paymentID string, to domain.EscrowStatus, reason string, at time.Time) (*domain.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !e.Status.Releasable() {
		if e.Status == domain.EscrowDisputed {
			return nil, domain.ErrFrozen
		}
		return nil, domain.ErrInvalidState
	}

	e.ReleasedAmount += e.HeldAmount
	e.HeldAmount = 0
	e.Status = to
	e.ReleasedAt = &at
	e.ReleaseReason = &reason
	e.UpdatedAt = at

	cp := *e
	return &cp, nil
}

func (s *fakeEscrowStore) ReleasePartial(ctx context.Context, paymentID string, amount int64, reason string, at time.Time) (*domain.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if !e.Status.Releasable() {
		if e.Status == domain.EscrowDisputed {
			return nil, domain.ErrFrozen
		}
		return nil, domain.ErrInvalidState
	}
	if e.HeldAmount < amount {
		return nil, domain.ErrOverRelease
	}

	e.HeldAmount -= amount
	e.ReleasedAmount += amount
	e.Status = domain.EscrowPartialRelease
	e.ReleaseReason = &reason
	e.UpdatedAt = at

	cp := *e
	return &cp, nil
}

func (s *fakeEscrowStore) Freeze(ctx context.Context, paymentID, disputeID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	if e.Status == domain.EscrowDisputed {
		if e.DisputeID != nil && *e.DisputeID == disputeID {
			return nil
		}
		return domain.ErrConflictingFreeze
	}
	if !e.Status.Releasable() {
		return domain.ErrInvalidState
	}

	e.Status = domain.EscrowDisputed
	e.DisputeID = &disputeID
	e.FreezeReason = &reason
	e.FrozenAt = &at
	e.UpdatedAt = at
	return nil
}

func (s *fakeEscrowStore) ResolveDispute(ctx context.Context, paymentID, disputeID string, to domain.EscrowStatus, at time.Time) (*domain.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.records[paymentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if e.Status != domain.EscrowDisputed || e.DisputeID == nil || *e.DisputeID != disputeID {
		return nil, domain.ErrInvalidState
	}

	e.ReleasedAmount += e.HeldAmount
	e.HeldAmount = 0
	e.Status = to
	reason := "dispute_resolution"
	e.ReleaseReason = &reason
	e.ReleasedAt = &at
	e.FreezeReason = nil
	e.FrozenAt = nil
	e.UpdatedAt = at

	cp := *e
	return &cp, nil
}

func (s *fakeEscrowStore) ListAutoReleasable(ctx context.Context, now time.Time, limit int) ([]domain.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.EscrowRecord
	for _, e := range s.records {
		if e.Status == domain.EscrowHeld && !e.AutoReleaseAt.After(now) {
			out = append(out, *e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type fakeRefundStore struct {
	mu      sync.Mutex
	refunds []domain.Refund
}

func (s *fakeRefundStore) Create(ctx context.Context, ref domain.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refunds = append(s.refunds, ref)
	return nil
}

func (s *fakeRefundStore) SumActiveByPayment(ctx context.Context, paymentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sum int64
	for _, r := range s.refunds {
		if r.PaymentID == paymentID && r.Status != domain.RefundFailed {
			sum += r.Amount
		}
	}
	return sum, nil
}

func (s *fakeRefundStore) ListByPayment(ctx context.Context, paymentID string) ([]domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Refund
	for _, r := range s.refunds {
		if r.PaymentID == paymentID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakePayoutStore struct {
	mu      sync.Mutex
	payouts map[string]*domain.Payout
	items   map[string][]domain.PayoutItem // keyed by payout id
}

func newFakePayoutStore() *fakePayoutStore {
	return &fakePayoutStore{
		payouts: make(map[string]*domain.Payout),
		items:   make(map[string][]domain.PayoutItem),
	}
}

func (s *fakePayoutStore) GetOpenPayout(ctx context.Context, payeeID string, periodStart time.Time) (*domain.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.payouts {
		if p.PayeeID == payeeID && p.PeriodStart.Equal(periodStart) && p.Status == domain.PayoutOpen {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakePayoutStore) CreatePayout(ctx context.Context, p domain.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.payouts {
		if existing.PayeeID == p.PayeeID && existing.PeriodStart.Equal(p.PeriodStart) && existing.Status == domain.PayoutOpen {
			return domain.ErrConflict
		}
	}
	cp := p
	s.payouts[p.ID] = &cp
	return nil
}

func (s *fakePayoutStore) AppendItem(ctx context.Context, item domain.PayoutItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payouts[item.PayoutID]
	if !ok || p.Status != domain.PayoutOpen {
		return domain.ErrInvalidState
	}

	s.items[item.PayoutID] = append(s.items[item.PayoutID], item)
	p.GrossAmount += item.GrossAmount
	p.FeeAmount += item.FeeAmount
	p.NetAmount += item.NetAmount
	p.UpdatedAt = item.CreatedAt
	return nil
}

func (s *fakePayoutStore) MarkProcessing(ctx context.Context, before time.Time, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, p := range s.payouts {
		if p.Status == domain.PayoutOpen && !p.PeriodEnd.After(before) {
			p.Status = domain.PayoutProcessing
			p.UpdatedAt = at
			n++
		}
	}
	return n, nil
}

func (s *fakePayoutStore) ListByPayee(ctx context.Context, payeeID string) ([]domain.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Payout
	for _, p := range s.payouts {
		if p.PayeeID == payeeID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakePayoutStore) ListItems(ctx context.Context, payoutID string) ([]domain.PayoutItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PayoutItem(nil), s.items[payoutID]...), nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []domain.AuditLogEntry
}

func (s *fakeAuditStore) Append(ctx context.Context, e domain.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeAuditStore) ListBySubject(ctx context.Context, subjectType, subjectID string) ([]domain.AuditLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AuditLogEntry
	for _, e := range s.entries {
		if e.SubjectType == subjectType && e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeAuditStore) all() []domain.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditLogEntry(nil), s.entries...)
}

type fakePricing struct {
	breakdown domain.ChargeBreakdown
	err       error
}

func (f *fakePricing) ComputeCharge(ctx context.Context, params clients.ChargeParams) (domain.ChargeBreakdown, error) {
	if f.err != nil {
		return domain.ChargeBreakdown{}, f.err
	}
	return f.breakdown, nil
}

type fakeRisk struct {
	assessment domain.RiskAssessment
	err        error
}

func (f *fakeRisk) Assess(ctx context.Context, rc domain.RiskContext) (domain.RiskAssessment, error) {
	if f.err != nil {
		return domain.RiskAssessment{}, f.err
	}
	return f.assessment, nil
}

type fakeCompletion struct {
	complete bool
	err      error
}

func (f *fakeCompletion) IsEngagementComplete(ctx context.Context, engagementID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.complete, nil
}

// testEngine bundles the full service graph over in-memory stores.
type testEngine struct {
	ledger   *LedgerService
	escrow   *EscrowService
	payouts  *PayoutService
	disputes *DisputeGate
	sweeper  *Sweeper

	payments   *fakePaymentStore
	escrows    *fakeEscrowStore
	refunds    *fakeRefundStore
	payoutRepo *fakePayoutStore
	audits     *fakeAuditStore
	pricing    *fakePricing
	risk       *fakeRisk
	completion *fakeCompletion
}

func newTestEngine() *testEngine {
	e := &testEngine{
		payments:   newFakePaymentStore(),
		escrows:    newFakeEscrowStore(),
		refunds:    &fakeRefundStore{},
		payoutRepo: newFakePayoutStore(),
		audits:     &fakeAuditStore{},
		pricing: &fakePricing{breakdown: domain.ChargeBreakdown{
			BaseAmount:  12000,
			PlatformFee: 2250,
			TaxAmount:   750,
			TotalAmount: 15000,
			Currency:    "USD",
		}},
		risk:       &fakeRisk{assessment: domain.RiskAssessment{Level: "low", Score: 0.1}},
		completion: &fakeCompletion{complete: true},
	}

	tx := fakeTx{}
	audit := NewAuditTrail(e.audits)
	e.payouts = NewPayoutService(e.payoutRepo, tx)
	e.escrow = NewEscrowService(e.escrows, e.payments, e.payouts, audit, tx, nil)
	e.ledger = NewLedgerService(
		e.payments, e.refunds, e.escrow,
		e.pricing, e.risk, e.completion,
		audit, tx, nil, nil,
		24*time.Hour,
	)
	e.disputes = NewDisputeGate(e.escrow, nil)
	e.sweeper = NewSweeper(e.escrow, e.payments, e.completion, e.ledger, time.Minute)
	return e
}

func (e *testEngine) initiate(ctx context.Context, bookingID string) (*domain.Payment, error) {
	end := time.Now().Add(2 * time.Hour)
	return e.ledger.Initiate(ctx, InitiateRequest{
		BookingID:       bookingID,
		PayerID:         "payer-1",
		PayeeID:         "payee-1",
		RateAmount:      12000,
		DurationMinutes: 60,
		Currency:        "USD",
		Provider:        "stripe",
		EngagementEnd:   end,
		Actor:           "test",
	})
}

func (e *testEngine) initiateAndConfirm(ctx context.Context, bookingID string) *domain.Payment {
	p, err := e.initiate(ctx, bookingID)
	if err != nil {
		panic(err)
	}
	p, err = e.ledger.Confirm(ctx, p.ID, "txn-"+bookingID, "test")
	if err != nil {
		panic(err)
	}
	return p
}
