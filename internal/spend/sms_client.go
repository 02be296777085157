package spend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
	"github.com/civicpulse/fundraise-monitor/internal/pkg/httpretry"
)

// SMSCostClient reads daily messaging cost from the SMS vendor's usage
// endpoint.
type SMSCostClient struct {
	baseURL    string
	apiKey     string
	httpClient httpretry.HTTPDoer
}

// SMSConfig holds SMS vendor API settings.
type SMSConfig struct {
	BaseURL string
	APIKey  string
}

// NewSMSCostClient creates an SMS usage-cost client.
func NewSMSCostClient(cfg SMSConfig) *SMSCostClient {
	return &SMSCostClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 30 * time.Second,
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *SMSCostClient) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

type smsUsageResponse struct {
	Usage []struct {
		Date string  `json:"date"`
		Cost float64 `json:"cost"`
	} `json:"usage"`
}

// FetchSpend reads day-level messaging cost for the date range.
func (c *SMSCostClient) FetchSpend(ctx context.Context, orgID, startDate, endDate string) ([]domain.SpendRecord, error) {
	params := url.Values{}
	params.Set("account", orgID)
	params.Set("from", startDate)
	params.Set("to", endDate)

	reqURL := fmt.Sprintf("%s/v1/usage/daily?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build sms usage request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sms usage request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sms usage response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sms usage status %d: %s", resp.StatusCode, string(body))
	}

	var parsed smsUsageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode sms usage response: %w", err)
	}

	out := make([]domain.SpendRecord, 0, len(parsed.Usage))
	for _, row := range parsed.Usage {
		out = append(out, domain.SpendRecord{
			OrganizationID: orgID,
			Channel:        domain.ChannelSMS,
			Date:           row.Date,
			Amount:         row.Cost,
		})
	}
	return out, nil
}
