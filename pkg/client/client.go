// Package client talks to a running watchdog's read-only status API.
// The status command asks the API first and falls back to a direct
// control-plane query when no watchdog is listening.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Client is an HTTP client for the keepbusy watchdog API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig returns the configuration for a watchdog on its default
// loopback listen address.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8321",
		Timeout: 5 * time.Second,
	}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultConfig().BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks whether a watchdog answers on the configured
// address.
func (c *Client) IsReachable(ctx context.Context) bool {
	err := c.Healthz(ctx)
	if err != nil {
		c.logger.Debug("watchdog unreachable", "error", err)
	}
	return err == nil
}

// Healthz probes the liveness endpoint.
func (c *Client) Healthz(ctx context.Context) error {
	var body struct {
		OK bool `json:"ok"`
	}
	if err := c.getJSON(ctx, "/healthz", &body); err != nil {
		return err
	}
	if !body.OK {
		return fmt.Errorf("watchdog reports not ok")
	}
	return nil
}

// Status fetches live process statuses and observed usage.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var body StatusResponse
	err := c.getJSON(ctx, "/api/status", &body)
	return body, err
}

// State fetches the persisted plan and enabled flag.
func (c *Client) State(ctx context.Context) (StateResponse, error) {
	var body StateResponse
	err := c.getJSON(ctx, "/api/state", &body)
	return body, err
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		if derr := json.NewDecoder(resp.Body).Decode(&e); derr == nil && e.Error != "" {
			return fmt.Errorf("API error: %s", e.Error)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
