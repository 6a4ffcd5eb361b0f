package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"consult-settlement/internal/domain"
)

type ChargeParams struct {
	BookingID       string `json:"booking_id"`
	PayeeID         string `json:"payee_id"`
	RateAmount      int64  `json:"rate_amount"`
	DurationMinutes int    `json:"duration_minutes"`
	Currency        string `json:"currency"`
}

// PricingClient calls the external pricing collaborator that turns
// consultation parameters into a charge breakdown. The breakdown is consumed
// opaquely; tax and fee policy live entirely on the pricing side.
type PricingClient struct {
	baseURL string
	httpc   *http.Client
}

func NewPricingClient(baseURL string, timeout time.Duration) *PricingClient {
	return &PricingClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (c *PricingClient) ComputeCharge(ctx context.Context, params ChargeParams) (domain.ChargeBreakdown, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return domain.ChargeBreakdown{}, fmt.Errorf("%w: marshal pricing request: %v", domain.ErrCollaborator, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/pricing/compute", bytes.NewReader(body))
	if err != nil {
		return domain.ChargeBreakdown{}, fmt.Errorf("%w: build pricing request: %v", domain.ErrCollaborator, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return domain.ChargeBreakdown{}, fmt.Errorf("%w: pricing call: %v", domain.ErrCollaborator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ChargeBreakdown{}, fmt.Errorf("%w: pricing returned status %d", domain.ErrCollaborator, resp.StatusCode)
	}

	var breakdown domain.ChargeBreakdown
	if err := json.NewDecoder(resp.Body).Decode(&breakdown); err != nil {
		return domain.ChargeBreakdown{}, fmt.Errorf("%w: decode pricing response: %v", domain.ErrCollaborator, err)
	}
	return breakdown, nil
}
