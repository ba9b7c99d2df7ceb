// Package client talks to a running flowbar daemon over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "flowbar/backend/internal/errors"
	"flowbar/backend/internal/model"
)

const DefaultBaseURL = "http://127.0.0.1:8787"

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ControlResult is the daemon's answer to a timer control.
type ControlResult struct {
	model.TimerInfo
	ElapsedSeconds *int `json:"elapsedSeconds,omitempty"`
}

type Grant struct {
	Site      string `json:"site"`
	ExpiresAt int64  `json:"expiresAt"`
	Target    string `json:"target"`
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func New(baseURL, token string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient swaps the transport, mainly for streaming without a timeout.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

func (c *Client) Timer(ctx context.Context) (*ControlResult, error) {
	var result ControlResult
	if err := c.do(ctx, http.MethodGet, "/api/timer", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Control runs one of start, pause, resume, reset, stop or toggle.
func (c *Client) Control(ctx context.Context, action string) (*ControlResult, error) {
	var result ControlResult
	if err := c.do(ctx, http.MethodPost, "/api/timer/"+url.PathEscape(action), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Allow(ctx context.Context, site string) (*Grant, error) {
	var result struct {
		Grant Grant `json:"grant"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/gate/allow", map[string]string{"site": site}, &result); err != nil {
		return nil, err
	}
	return &result.Grant, nil
}

func (c *Client) Summary(ctx context.Context, domain string) (*model.DomainSummary, error) {
	var result struct {
		Summary model.DomainSummary `json:"summary"`
	}
	path := "/api/tracking/summary?" + url.Values{"domain": {domain}}.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return &result.Summary, nil
}

// Pair exchanges the pairing secret for a bearer token and keeps it.
func (c *Client) Pair(ctx context.Context, clientName, secret string) (string, error) {
	var result struct {
		Token string `json:"token"`
	}
	body := map[string]string{"client": clientName, "secret": secret}
	if err := c.do(ctx, http.MethodPost, "/api/auth/pair", body, &result); err != nil {
		return "", err
	}
	c.token = result.Token
	return result.Token, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
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
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var head envelope
	if err := json.Unmarshal(raw, &head); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !head.Success {
		code := head.Code
		if code == "" {
			code = "http_error"
		}
		message := head.Error
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return apperrors.New(resp.StatusCode, code, message)
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
