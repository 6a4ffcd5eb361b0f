package rest

import (
	"net/http"

	"consult-settlement/internal/domain"
	"consult-settlement/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) holdFunds(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "payment_id")
	req, autoReleaseAt, err := ValidateHoldRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	rec, err := h.escrow.HoldForReconciliation(r.Context(), service.HoldRequest{
		PaymentID:     paymentID,
		TotalAmount:   req.TotalAmount,
		PayeeShare:    req.PayeeShare,
		PlatformShare: req.PlatformShare,
		Currency:      req.Currency,
		AutoReleaseAt: autoReleaseAt,
	}, requestActor(r))
	if err != nil {
		ErrorFromDomain(w, err)
		return
	}

	SuccessCreated(w, "funds held in escrow", toEscrowResponse(rec))
}

func (h *Handler) freezeEscrow(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "payment_id")
	req, err := ValidateFreezeRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	err = h.disputes.HandleOpened(r.Context(), domain.DisputeEvent{
		DisputeID: req.DisputeID,
		PaymentID: paymentID,
		Reason:    req.Reason,
	}, requestActor(r))
	if err != nil {
		ErrorFromDomain(w, err)
		return
	}

	Success(w, "escrow frozen", nil)
}

func (h *Handler) resolveDispute(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "payment_id")
	req, err := ValidateResolveDisputeRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	err = h.disputes.HandleResolved(r.Context(), domain.DisputeResolution{
		DisputeID: req.DisputeID,
		PaymentID: paymentID,
		ToPayee:   req.ToPayee,
		Amount:    req.Amount,
		Note:      req.Note,
	}, requestActor(r))
	if err != nil {
		ErrorFromDomain(w, err)
		return
	}

	Success(w, "dispute resolved", nil)
}
