package spend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/civicpulse/fundraise-monitor/internal/domain"
	"github.com/civicpulse/fundraise-monitor/internal/pkg/httpretry"
)

// MetaAdsClient reads daily ad spend from the Meta insights API.
type MetaAdsClient struct {
	baseURL     string
	accessToken string
	accountID   string
	httpClient  httpretry.HTTPDoer
}

// MetaConfig holds Meta ads API settings.
type MetaConfig struct {
	BaseURL     string
	AccessToken string
	AccountID   string
}

// NewMetaAdsClient creates a Meta ads insights client.
func NewMetaAdsClient(cfg MetaConfig) *MetaAdsClient {
	return &MetaAdsClient{
		baseURL:     cfg.BaseURL,
		accessToken: cfg.AccessToken,
		accountID:   cfg.AccountID,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 30 * time.Second,
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *MetaAdsClient) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// metaInsightsResponse is the shape of the insights endpoint. Meta
// reports spend as a string, so it is coerced defensively.
type metaInsightsResponse struct {
	Data []struct {
		DateStart string `json:"date_start"`
		Spend     string `json:"spend"`
	} `json:"data"`
}

// FetchSpend reads day-level spend for the date range. Days the API
// omits simply produce no record; zero rows is not an error.
func (c *MetaAdsClient) FetchSpend(ctx context.Context, orgID, startDate, endDate string) ([]domain.SpendRecord, error) {
	params := url.Values{}
	params.Set("access_token", c.accessToken)
	params.Set("fields", "spend")
	params.Set("time_increment", "1")
	params.Set("time_range", fmt.Sprintf(`{"since":"%s","until":"%s"}`, startDate, endDate))

	reqURL := fmt.Sprintf("%s/%s/insights?%s", c.baseURL, c.accountID, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build meta insights request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("meta insights request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read meta insights response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("meta insights status %d: %s", resp.StatusCode, string(body))
	}

	var parsed metaInsightsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode meta insights response: %w", err)
	}

	out := make([]domain.SpendRecord, 0, len(parsed.Data))
	for _, row := range parsed.Data {
		amount, err := strconv.ParseFloat(row.Spend, 64)
		if err != nil {
			// Malformed spend coerces to zero rather than poisoning
			// downstream ROI math.
			amount = 0
		}
		out = append(out, domain.SpendRecord{
			OrganizationID: orgID,
			Channel:        domain.ChannelMeta,
			Date:           row.DateStart,
			Amount:         amount,
		})
	}
	return out, nil
}
