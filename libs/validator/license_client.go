package validator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// LicenseClient is a small HTTP client against the license-registry
// service this service doesn't own: it validates an API key against a
// tier and remaining quota, and reports usage back after a successful
// validation.
type LicenseClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewLicenseClient builds a LicenseClient against baseURL (e.g.
// "https://license.solsub.internal").
func NewLicenseClient(baseURL string, logger *zap.Logger) *LicenseClient {
	if logger == nil {
		logger, _ = zap.NewProduction()
	}
	return &LicenseClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// LicenseStatus is the registry's verdict on an API key.
type LicenseStatus struct {
	IsValid             bool      `json:"is_valid"`
	Tier                string    `json:"tier"`
	RateLimitRemaining  int64     `json:"rate_limit_remaining"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// ValidateLicense queries the registry for apiKey's current status.
func (c *LicenseClient) ValidateLicense(ctx context.Context, apiKey string) (LicenseStatus, error) {
	url := fmt.Sprintf("%s/v1/licenses/validate", c.baseURL)
	body, err := json.Marshal(struct {
		APIKey string `json:"api_key"`
	}{APIKey: apiKey})
	if err != nil {
		return LicenseStatus{}, fmt.Errorf("validator: failed to marshal license request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return LicenseStatus{}, fmt.Errorf("validator: failed to build license request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return LicenseStatus{}, fmt.Errorf("validator: license registry unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return LicenseStatus{}, fmt.Errorf("validator: failed to read license response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("license validation rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(respBody)),
		)
		return LicenseStatus{}, fmt.Errorf("validator: license registry returned status %d", resp.StatusCode)
	}

	var status LicenseStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return LicenseStatus{}, fmt.Errorf("validator: failed to parse license response: %w", err)
	}

	c.logger.Debug("license validated",
		zap.String("tier", status.Tier),
		zap.Int64("remaining", status.RateLimitRemaining),
		zap.Duration("duration", time.Since(start)),
	)
	return status, nil
}

// ConsumeLicenseUsage reports that apiKey was just used to create a
// subscription, decrementing its remaining quota. Called exactly once per
// successful CreateSubscription.
func (c *LicenseClient) ConsumeLicenseUsage(ctx context.Context, apiKey string) error {
	url := fmt.Sprintf("%s/v1/licenses/consume", c.baseURL)
	body, err := json.Marshal(struct {
		APIKey string `json:"api_key"`
	}{APIKey: apiKey})
	if err != nil {
		return fmt.Errorf("validator: failed to marshal consume request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("validator: failed to build consume request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("validator: license registry unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Warn("license usage consumption rejected",
			zap.Int("status_code", resp.StatusCode),
			zap.String("response", string(body)),
		)
		return fmt.Errorf("validator: license registry returned status %d", resp.StatusCode)
	}
	return nil
}
