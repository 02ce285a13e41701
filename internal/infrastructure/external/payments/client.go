// Package payments is the HTTP client of the payment processor service that
// opens bank wire pay-ins on investor wallets.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
)

// ErrPayInNotFound is returned when the processor does not know a pay-in id
var ErrPayInNotFound = errors.New("pay-in not found")

// Config holds payment processor client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client implements port.PaymentGateway over the processor's JSON API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new payment processor client
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("payment gateway base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid payment gateway base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// payInID accepts the processor's numeric ids as well as string ids
type payInID string

func (id *payInID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = payInID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = payInID(n.String())
	return nil
}

// payInResponse is the processor's view of a pay-in
type payInResponse struct {
	ID            payInID `json:"id"`
	WireReference string  `json:"wire_reference"`
	Status        string  `json:"status"`
}

// SubmitPayIn opens a bank wire pay-in. A 4xx answer is a decline and returns (nil, nil).
func (c *Client) SubmitPayIn(ctx context.Context, req port.PayInRequest) (*port.PayInResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pay-in request: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/payin/", body)
	if err != nil {
		return nil, err
	}

	if status >= 400 && status < 500 {
		c.logger.Warn("Pay-in declined",
			zap.String("tag", req.Tag),
			zap.Int("status", status),
			zap.String("response", string(respBody)))
		return nil, nil
	}
	if status >= 300 {
		return nil, fmt.Errorf("payment gateway returned status %d: %s", status, string(respBody))
	}

	result, err := decodePayIn(respBody)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Pay-in created",
		zap.String("payin_id", result.ID),
		zap.String("status", result.Status),
		zap.String("tag", req.Tag))
	return result, nil
}

// GetPayIn fetches the current state of a pay-in
func (c *Client) GetPayIn(ctx context.Context, id string) (*port.PayInResult, error) {
	if id == "" {
		return nil, fmt.Errorf("pay-in id cannot be empty")
	}

	status, respBody, err := c.do(ctx, http.MethodGet, "/payin/"+url.PathEscape(id)+"/", nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrPayInNotFound, id)
	}
	if status >= 300 {
		return nil, fmt.Errorf("payment gateway returned status %d: %s", status, string(respBody))
	}
	return decodePayIn(respBody)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Api-Key "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Payment gateway request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return 0, nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func decodePayIn(raw []byte) (*port.PayInResult, error) {
	var resp payInResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pay-in response: %w", err)
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("pay-in response has no id")
	}
	return &port.PayInResult{
		ID:            string(resp.ID),
		WireReference: resp.WireReference,
		Status:        resp.Status,
		Raw:           json.RawMessage(raw),
	}, nil
}

// Verify interface compliance
var _ port.PaymentGateway = (*Client)(nil)
