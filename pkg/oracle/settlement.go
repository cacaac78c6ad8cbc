package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nostrhub/relaypay/pkg/relaypay"
)

// SettlementClient talks to the external settlement service for invoice
// creation and clearance checks.
type SettlementClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// SettlementClientConfig holds settlement client configuration
type SettlementClientConfig struct {
	// BaseURL is the settlement service root, e.g. "https://wallet.internal"
	BaseURL string

	// APIKey is sent as a bearer token when non-empty
	APIKey string

	// HTTPClient overrides the default client (10s timeout)
	HTTPClient *http.Client
}

// NewSettlementClient creates a new settlement service client
func NewSettlementClient(config SettlementClientConfig) (*SettlementClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("settlement service base URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}

	return &SettlementClient{
		httpClient: httpClient,
		baseURL:    config.BaseURL,
		apiKey:     config.APIKey,
	}, nil
}

// CreateInvoice implements relaypay.SettlementService
func (c *SettlementClient) CreateInvoice(ctx context.Context, req *relaypay.InvoiceRequest) (*relaypay.Invoice, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"id":     req.ID,
		"amount": req.AmountSats,
		"memo":   req.Memo,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode invoice request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/invoice", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build invoice request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("invoice request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("invoice request rejected with status %d", resp.StatusCode)
	}

	var body struct {
		Invoice     string `json:"invoice"`
		PaymentHash string `json:"payment_hash"`
		Amount      int64  `json:"amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("malformed invoice response: %w", err)
	}
	if body.Invoice == "" || body.PaymentHash == "" || body.Amount == 0 {
		return nil, fmt.Errorf("incomplete invoice response")
	}

	return &relaypay.Invoice{
		Invoice:    body.Invoice,
		Hash:       body.PaymentHash,
		AmountSats: body.Amount,
	}, nil
}

// Settled implements relaypay.SettlementService
func (c *SettlementClient) Settled(ctx context.Context, hash string) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/invoice/"+url.PathEscape(hash)+"/status", nil)
	if err != nil {
		return false, fmt.Errorf("failed to build status request: %w", err)
	}
	c.authorize(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status request rejected with status %d", resp.StatusCode)
	}

	var body struct {
		Settled *bool `json:"settled"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("malformed status response: %w", err)
	}
	if body.Settled == nil {
		return false, fmt.Errorf("settled flag missing from status response")
	}
	return *body.Settled, nil
}

func (c *SettlementClient) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
