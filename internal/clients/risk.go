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

// RiskClient calls the external risk classifier. Any transport failure or
// timeout is surfaced as an error so callers fail closed instead of treating
// an unreachable classifier as low risk.
type RiskClient struct {
	baseURL string
	httpc   *http.Client
}

func NewRiskClient(baseURL string, timeout time.Duration) *RiskClient {
	return &RiskClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (c *RiskClient) Assess(ctx context.Context, rc domain.RiskContext) (domain.RiskAssessment, error) {
	body, err := json.Marshal(rc)
	if err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("%w: marshal risk request: %v", domain.ErrCollaborator, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/risk/assess", bytes.NewReader(body))
	if err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("%w: build risk request: %v", domain.ErrCollaborator, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("%w: risk call: %v", domain.ErrCollaborator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.RiskAssessment{}, fmt.Errorf("%w: risk returned status %d", domain.ErrCollaborator, resp.StatusCode)
	}

	var assessment domain.RiskAssessment
	if err := json.NewDecoder(resp.Body).Decode(&assessment); err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("%w: decode risk response: %v", domain.ErrCollaborator, err)
	}
	return assessment, nil
}
