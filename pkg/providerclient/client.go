/**
 * @description
 * This package provides a client for the external bill-fulfilment provider API.
 * It encapsulates the logic for making authenticated HTTP requests, handling
 * request body construction, and parsing responses.
 *
 * The settlement engine depends only on the four-way status contract
 * (completed, processing, failed, refunded) plus an external reference; all
 * provider-specific payload shaping stays on the provider's side of this client.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - github.com/shopspring/decimal: Charged amounts.
 */
package providerclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider-reported statuses, normalized to lower case. Initiated means the
// provider accepted the request but has not started fulfilment; the engine
// treats it like processing.
const (
	StatusInitiated  = "initiated"
	StatusCompleted  = "completed"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"
)

// Client is a client for the provider API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new provider API client. The HTTP timeout doubles as the
// provider-call timeout; a timeout is treated as an ordinary call failure.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SubmitRequest is the payload for a bill fulfilment submission.
type SubmitRequest struct {
	RequestID string            `json:"request_id"`
	BillType  string            `json:"bill_type"`
	Amount    decimal.Decimal   `json:"amount"`
	Currency  string            `json:"currency"`
	Payload   map[string]string `json:"payload,omitempty"`
}

// SubmitResult is the provider's response to a submission or status query.
type SubmitResult struct {
	Status            string          `json:"status"`
	ExternalReference string          `json:"external_reference"`
	AmountCharged     decimal.Decimal `json:"amount_charged"`
}

// ErrorResponse represents an error from the provider API.
type ErrorResponse struct {
	StatusCode int
	Errors     []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("provider api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return fmt.Sprintf("provider api error: status %d", e.StatusCode)
}

// IsExplicitRejection reports whether the provider definitively refused the
// request, as opposed to an ambiguous transport or server failure.
func (e *ErrorResponse) IsExplicitRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// Submit sends a bill fulfilment request. The request id is set both in the
// body and as the Idempotency-Key header so the provider can deduplicate any
// retry of the same logical purchase.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/bills", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Idempotency-Key", req.RequestID)

	return c.do(httpReq)
}

// QueryStatus fetches the current provider-side status of a previously
// submitted request, keyed by the original request id.
func (c *Client) QueryStatus(ctx context.Context, requestID string) (*SubmitResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/bills/"+requestID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	return c.do(httpReq)
}

// RebalanceLiquidity asks the upstream liquidity desk to offset a settled
// internal swap. Called from the reconciliation worker, never inline.
func (c *Client) RebalanceLiquidity(ctx context.Context, correlationID, sourceCurrency, destCurrency string, sourceAmount, destAmount decimal.Decimal) error {
	payload := map[string]any{
		"correlation_id":  correlationID,
		"source_currency": sourceCurrency,
		"dest_currency":   destCurrency,
		"source_amount":   sourceAmount,
		"dest_amount":     destAmount,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/liquidity/rebalance", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Idempotency-Key", correlationID)

	_, err = c.do(httpReq)
	return err
}

func (c *Client) do(req *http.Request) (*SubmitResult, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider response read failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &ErrorResponse{StatusCode: resp.StatusCode}
		// Body may not be the documented error shape; the status code alone is enough.
		_ = json.Unmarshal(raw, apiErr)
		return nil, apiErr
	}

	var result SubmitResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("provider response decode failed: %w", err)
	}
	result.Status = strings.ToLower(strings.TrimSpace(result.Status))
	return &result, nil
}
