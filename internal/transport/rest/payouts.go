package rest

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listPayouts(w http.ResponseWriter, r *http.Request) {
	payeeID := chi.URLParam(r, "payee_id")
	if payeeID == "" {
		ErrorBadRequest(w, "payee_id is required")
		return
	}

	payouts, err := h.payouts.ListByPayee(r.Context(), payeeID)
	if err != nil {
		ErrorFromDomain(w, err)
		return
	}

	out := make([]PayoutResponse, 0, len(payouts))
	for _, p := range payouts {
		items, err := h.payouts.ListItems(r.Context(), p.ID)
		if err != nil {
			ErrorFromDomain(w, err)
			return
		}
		out = append(out, toPayoutResponse(p, items))
	}

	Success(w, "", out)
}

func (h *Handler) closePayouts(w http.ResponseWriter, r *http.Request) {
	closed, err := h.payouts.ClosePeriods(r.Context(), time.Now())
	if err != nil {
		log.Printf("[HTTP] closePayouts error: %v", err)
		ErrorInternal(w, "failed to close payout periods")
		return
	}

	Success(w, "payout periods closed", map[string]interface{}{
		"closed": closed,
	})
}
