package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the fraudwatch API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Bearer token from /api/auth/login, e.g. "sk_..."
}

// FraudwatchClient is a pure HTTP client for the fraudwatch API.
type FraudwatchClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewFraudwatchClient creates a new client for the fraudwatch API.
func NewFraudwatchClient(cfg Config) *FraudwatchClient {
	return &FraudwatchClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *FraudwatchClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// StartSimulation starts the synthetic transaction loop.
func (c *FraudwatchClient) StartSimulation(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/api/simulation/start", nil, nil)
}

// StopSimulation stops the synthetic transaction loop.
func (c *FraudwatchClient) StopSimulation(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/api/simulation/stop", nil, nil)
}

// GetStatus returns the current simulation status.
func (c *FraudwatchClient) GetStatus(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/simulation/status", nil, nil)
}

// GetStats returns the risk level breakdown and realtime stats.
func (c *FraudwatchClient) GetStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/simulation/stats", nil, nil)
}

// TriggerIncident emits a single forced fraud incident.
func (c *FraudwatchClient) TriggerIncident(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/api/simulation/incident", nil, nil)
}

// RecentTransactions returns the most recent scored transactions.
func (c *FraudwatchClient) RecentTransactions(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/api/transactions", q, nil)
}

// ResetHistory deletes all stored transactions.
func (c *FraudwatchClient) ResetHistory(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodDelete, "/api/transactions", nil, nil)
}
