package rest

import (
	"fmt"
	"net/http"

	"consult-settlement/internal/service"
	"consult-settlement/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

func requestActor(r *http.Request) string {
	if userID, err := auth.GetUserID(r.Context()); err == nil {
		return fmt.Sprintf("user:%d", userID)
	}
	return "system"
}

func (h *Handler) initiatePayment(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateInitiateRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	p, err := h.ledger.Initiate(r.Context(), service.InitiateRequest{
		BookingID:       req.BookingID,
		PayerID:         req.PayerID,
		PayeeID:         req.PayeeID,
		RateAmount:      req.RateAmount,
		DurationMinutes: req.DurationMinutes,
		Currency:        req.Currency,
		Provider:        req.Provider,
		EngagementEnd:   req.EngagementEnd,
		Actor:           requestActor(r),
	})
	if err != nil {
		ErrorFromDomain(w, err)
		return
	}

	SuccessCreated(w, "payment initiated", toPaymentResponse(p))
}

func (h *Handler) getPaymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "payment_id")
	if paymentID == "" {
		ErrorBadRequest(w, "payment_id is required")
		return
	}

	view, err := h.ledger.GetStatus(r.Context(), paymentID)
	if err != nil {
		ErrorFromDomain(w, err)
		return
	}

	Success(w, "", toStatusResponse(view))
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "payment_id")
	req, err := ValidateConfirmRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	p, err := h.ledger.Confirm(r.Context(), paymentID, req.ProviderTxnRef, requestActor(r))
	if err != nil {
		ErrorFromDomain(w, err)
		return
	}

	Success(w, "payment confirmed", toPaymentResponse(p))
}

func (h *Handler) failPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "payment_id")

	if err := h.ledger.Fail(r.Context(), paymentID, requestActor(r)); err != nil {
		ErrorFromDomain(w, err)
		return
	}

	Success(w, "payment marked failed", nil)
}

func (h *Handler) capturePayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "payment_id")

	p, err := h.ledger.Capture(r.Context(), paymentID, requestActor(r))
	if err != nil {
		ErrorFromDomain(w, err)
		return
	}

	Success(w, "payment captured", toPaymentResponse(p))
}

func (h *Handler) refundPayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "payment_id")
	req, err := ValidateRefundRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	ref, err := h.ledger.Refund(r.Context(), service.RefundRequest{
		PaymentID:             paymentID,
		Type:                  req.Type,
		Amount:                req.Amount,
		Reason:                req.Reason,
		HoursUntilAppointment: req.HoursUntilAppointment,
		Policy:                req.CancellationPolicy(),
		Actor:                 requestActor(r),
	})
	if err != nil {
		ErrorFromDomain(w, err)
		return
	}

	Success(w, "refund processed", toRefundResponse(ref))
}
