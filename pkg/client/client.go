// Package client is the Go SDK for the callstorm control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/callstorm/callstorm/pkg/api"
	"github.com/callstorm/callstorm/pkg/originator"
)

// Client talks to a callstorm daemon.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a new callstorm client.
// endpoint defaults to "http://127.0.0.1:8090" if empty.
func NewClient(endpoint string) *Client {
	if endpoint == "" {
		endpoint = "http://127.0.0.1:8090"
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Health checks daemon liveness.
func (c *Client) Health(ctx context.Context) error {
	var out map[string]string
	return c.get(ctx, "/v1/health", &out)
}

// Status fetches the engine's current snapshot.
func (c *Client) Status(ctx context.Context) (originator.Status, error) {
	var st originator.Status
	if err := c.get(ctx, "/v1/status", &st); err != nil {
		return originator.Status{}, err
	}
	return st, nil
}

// Start arms the traffic generator.
func (c *Client) Start(ctx context.Context) error {
	return c.action(ctx, "/v1/start")
}

// Stop halts new originations; live sessions run out naturally.
func (c *Client) Stop(ctx context.Context) error {
	return c.action(ctx, "/v1/stop")
}

// HupAll stops traffic and hangs up sessions. With everything set, the
// teardown also covers sessions the daemon did not originate.
func (c *Client) HupAll(ctx context.Context, everything bool) error {
	path := "/v1/hupall"
	if everything {
		path += "?scope=all"
	}
	return c.action(ctx, path)
}

// Shutdown retires the engine permanently.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.action(ctx, "/v1/shutdown")
}

// Configure applies a partial settings update and returns the resulting
// snapshot.
func (c *Client) Configure(ctx context.Context, req api.ConfigRequest) (originator.Status, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return originator.Status{}, fmt.Errorf("failed to marshal config: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint+"/v1/config", bytes.NewReader(body))
	if err != nil {
		return originator.Status{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return originator.Status{}, fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return originator.Status{}, apiError(resp)
	}
	var st originator.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return originator.Status{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return st, nil
}

// RunSummary is the daemon's CDR roll-up.
type RunSummary struct {
	Summary struct {
		Total       int           `json:"total"`
		Answered    int           `json:"answered"`
		AvgDuration time.Duration `json:"avg_duration"`
	} `json:"summary"`
	ByBehavior map[string]int `json:"by_behavior"`
}

// Summary fetches the CDR roll-up for the current run.
func (c *Client) Summary(ctx context.Context) (RunSummary, error) {
	var sum RunSummary
	if err := c.get(ctx, "/v1/summary", &sum); err != nil {
		return RunSummary{}, err
	}
	return sum, nil
}

// WaitReady polls health with backoff until the daemon answers or the
// context expires.
func (c *Client) WaitReady(ctx context.Context, attempts int) error {
	b := DefaultBackoff()
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = c.Health(ctx); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Next(i)):
		}
	}
	return fmt.Errorf("daemon not ready after %d attempts: %w", attempts, lastErr)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) action(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	var ack api.ActionResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !ack.OK {
		return fmt.Errorf("daemon rejected %s", path)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var e api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		return fmt.Errorf("daemon error (%d): %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("unexpected status: %d", resp.StatusCode)
}
