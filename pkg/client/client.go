// Package client is a small typed HTTP client for a running stagehand
// instance's local API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds each API round-trip.
const DefaultTimeout = 5 * time.Second

type Client struct {
	baseURL string
	hc      *http.Client
}

// New builds a client for baseURL (e.g. "http://127.0.0.1:8420/api").
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		hc:      &http.Client{Timeout: timeout},
	}
}

// Status fetches the aggregate supervisor snapshot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var out Status
	err := c.getJSON(ctx, "/status", &out)
	return out, err
}

// ServiceStatus fetches the runtime record for one service.
func (c *Client) ServiceStatus(ctx context.Context, name string) (ServiceStatus, error) {
	var out ServiceStatus
	err := c.getJSON(ctx, "/status?name="+url.QueryEscape(name), &out)
	return out, err
}

// Shutdown asks the running instance to stop all services and exit.
func (c *Client) Shutdown(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shutdown", nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("shutdown: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
