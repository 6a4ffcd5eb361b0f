package rest

import (
	"context"
	"net/http"
	"time"

	"consult-settlement/internal/domain"
	"consult-settlement/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Ledger interface {
	Initiate(ctx context.Context, req service.InitiateRequest) (*domain.Payment, error)
	Confirm(ctx context.Context, paymentID, providerTxnRef, actor string) (*domain.Payment, error)
	Fail(ctx context.Context, paymentID, actor string) error
	Capture(ctx context.Context, paymentID, actor string) (*domain.Payment, error)
	Refund(ctx context.Context, req service.RefundRequest) (*domain.Refund, error)
	GetStatus(ctx context.Context, paymentID string) (*service.StatusView, error)
}

type Escrow interface {
	HoldForReconciliation(ctx context.Context, req service.HoldRequest, actor string) (*domain.EscrowRecord, error)
}

type Disputes interface {
	HandleOpened(ctx context.Context, ev domain.DisputeEvent, actor string) error
	HandleResolved(ctx context.Context, res domain.DisputeResolution, actor string) error
}

type Payouts interface {
	ListByPayee(ctx context.Context, payeeID string) ([]domain.Payout, error)
	ListItems(ctx context.Context, payoutID string) ([]domain.PayoutItem, error)
	ClosePeriods(ctx context.Context, now time.Time) (int64, error)
}

type Statements interface {
	StartPayoutStatementExport(ctx context.Context, payeeID string, userID int64) (string, error)
	GetExports(ctx context.Context, userID int64) ([]service.ExportStatus, error)
	GetExport(ctx context.Context, exportID string, userID int64) (*service.ExportStatus, error)
}

type Handler struct {
	ledger     Ledger
	escrow     Escrow
	disputes   Disputes
	payouts    Payouts
	statements Statements
}

func NewHandler(ledger Ledger, escrow Escrow, disputes Disputes, payouts Payouts, statements Statements) *Handler {
	return &Handler{
		ledger:     ledger,
		escrow:     escrow,
		disputes:   disputes,
		payouts:    payouts,
		statements: statements,
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}

	r.Route("/payments", func(r chi.Router) {
		r.Post("/", h.initiatePayment)
		r.Get("/{payment_id}", h.getPaymentStatus)
		r.Post("/{payment_id}/confirm", h.confirmPayment)
		r.Post("/{payment_id}/fail", h.failPayment)
		r.Post("/{payment_id}/capture", h.capturePayment)
		r.Post("/{payment_id}/refund", h.refundPayment)
		r.Post("/{payment_id}/hold", h.holdFunds)
		r.Post("/{payment_id}/freeze", h.freezeEscrow)
		r.Post("/{payment_id}/resolve-dispute", h.resolveDispute)
	})

	r.Route("/payouts", func(r chi.Router) {
		r.Get("/payee/{payee_id}", h.listPayouts)
		r.Post("/close", h.closePayouts)
	})

	r.Route("/export", func(r chi.Router) {
		r.Get("/", h.listExports)
		r.Get("/{export_id}", h.getExport)
		r.Post("/payouts", h.exportPayoutStatement)
	})

	return r
}
