package main

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
)

const maxResponseBytes = 4 << 20

// apiError is the gateway's error envelope.
type apiError struct {
	Status       int    `json:"-"`
	Message      string `json:"error"`
	Code         string `json:"code"`
	RequestID    string `json:"requestId,omitempty"`
	HealthFactor string `json:"healthFactor,omitempty"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("gateway returned %d %s: %s", e.Status, e.Code, e.Message)
	if e.HealthFactor != "" {
		msg += " (health factor " + e.HealthFactor + ")"
	}
	return msg
}

// client talks JSON to the dscd gateway.
type client struct {
	base  *url.URL
	http  *http.Client
	token func() (string, error)
}

func newClient(base string, timeout time.Duration, token func() (string, error)) (*client, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(base), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("gateway url must be http or https, got %q", base)
	}
	return &client{base: parsed, http: &http.Client{Timeout: timeout}, token: token}, nil
}

func (c *client) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *client) post(ctx context.Context, path string, body interface{}) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, body interface{}) (json.RawMessage, error) {
	target := *c.base
	target.Path = c.base.Path + path
	if len(query) > 0 {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		token, err := c.token()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(payload, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(payload))
		}
		return nil, apiErr
	}
	return payload, nil
}
