// Package control is a thin HTTP client for one instance's device control
// API: health, app start, input injection, screenshots and job polling.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// UpstreamError reports a non-2xx response from the control API.
type UpstreamError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("control %s %s failed with status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Client talks to a single instance's control endpoint.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client for the control API at baseURL. Requests are
// bounded by timeout; token, when non-empty, is sent as a bearer token.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Health checks instance liveness.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	return c.get(ctx, "/health")
}

// Status returns the instance's device status.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	return c.get(ctx, "/status")
}

// StartApp launches the app with the given package name.
func (c *Client) StartApp(ctx context.Context, pkg string) (map[string]interface{}, error) {
	return c.post(ctx, "/apps/"+pkg+"/start", nil)
}

// SendInput injects a device input event (text, key or tap).
func (c *Client) SendInput(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	return c.post(ctx, "/device/input", payload)
}

// Screenshot fetches the current screen as a base64 payload.
func (c *Client) Screenshot(ctx context.Context) (map[string]interface{}, error) {
	return c.get(ctx, "/device/screenshot/base64")
}

// SubmitJob submits an asynchronous job to the instance.
func (c *Client) SubmitJob(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	return c.post(ctx, "/jobs", payload)
}

// GetJob polls a previously submitted job.
func (c *Client) GetJob(ctx context.Context, jobID string) (map[string]interface{}, error) {
	return c.get(ctx, "/jobs/"+jobID)
}

func (c *Client) get(ctx context.Context, path string) (map[string]interface{}, error) {
	url := c.baseURL + path
	log.Printf("Control GET %s", url)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build control request: %w", err)
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (map[string]interface{}, error) {
	url := c.baseURL + path
	log.Printf("Control POST %s payload=%v", url, payload)

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode control payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build control request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (map[string]interface{}, error) {
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("control %s %s: %w", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read control response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{
			Method:     req.Method,
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(data)),
		}
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]interface{}{}, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode control response from %s: %w", req.URL, err)
	}
	return out, nil
}
