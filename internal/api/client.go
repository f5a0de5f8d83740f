package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrDaemonUnavailable means the daemon could not be reached.
var ErrDaemonUnavailable = errors.New("daemon unavailable")

// StatusError is a non-2xx daemon response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Code)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.Code, e.Message)
}

// Client talks to the daemon's HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient returns a client for the daemon bound at bind (host:port or URL).
func NewClient(bind, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(bind), "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{base: base, token: token, http: &http.Client{Timeout: 30 * time.Second}}
}

// SaveProps uploads a props document.
func (c *Client) SaveProps(ctx context.Context, props json.RawMessage) (SavePropsResponse, error) {
	var resp SavePropsResponse
	err := c.do(ctx, http.MethodPost, "/api/render/save-props", props, &resp)
	return resp, err
}

// Start requests a render.
func (c *Client) Start(ctx context.Context) (StartResponse, error) {
	var resp StartResponse
	err := c.do(ctx, http.MethodPost, "/api/render/start", nil, &resp)
	return resp, err
}

// Status polls the render status.
func (c *Client) Status(ctx context.Context) (RenderStatus, error) {
	var resp RenderStatus
	err := c.do(ctx, http.MethodGet, "/api/render/status", nil, &resp)
	return resp, err
}

// Cancel stops the running render.
func (c *Client) Cancel(ctx context.Context) (CancelResponse, error) {
	var resp CancelResponse
	err := c.do(ctx, http.MethodPost, "/api/render/cancel", nil, &resp)
	return resp, err
}

// History lists recent runs.
func (c *Client) History(ctx context.Context, limit int) (HistoryResponse, error) {
	var resp HistoryResponse
	path := "/api/render/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// Run fetches one history row.
func (c *Client) Run(ctx context.Context, id string) (RenderRun, error) {
	var resp RenderRun
	err := c.do(ctx, http.MethodGet, "/api/render/history/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Composition fetches the computed composition.
func (c *Client) Composition(ctx context.Context) (CompositionResponse, error) {
	var resp CompositionResponse
	err := c.do(ctx, http.MethodGet, "/api/composition", nil, &resp)
	return resp, err
}

// DaemonStatus fetches daemon runtime information.
func (c *Client) DaemonStatus(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) && !urlErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(data))
}
