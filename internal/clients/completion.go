package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"consult-settlement/internal/domain"
)

// CompletionClient asks the engagement subsystem whether a consultation has
// finished. Capture and auto-release gate on this answer.
type CompletionClient struct {
	baseURL string
	httpc   *http.Client
}

func NewCompletionClient(baseURL string, timeout time.Duration) *CompletionClient {
	return &CompletionClient{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (c *CompletionClient) IsEngagementComplete(ctx context.Context, engagementID string) (bool, error) {
	url := fmt.Sprintf("%s/v1/engagements/%s/status", c.baseURL, engagementID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("%w: build completion request: %v", domain.ErrCollaborator, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: completion call: %v", domain.ErrCollaborator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: completion returned status %d", domain.ErrCollaborator, resp.StatusCode)
	}

	var payload struct {
		Complete bool `json:"complete"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("%w: decode completion response: %v", domain.ErrCollaborator, err)
	}
	return payload.Complete, nil
}
