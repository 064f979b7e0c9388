package exec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
)

// HTTPCaller is a flow.ServiceCaller that POSTs JSON payloads to the
// target URL. MCP_CALL nodes name their target service endpoint directly;
// WEBHOOK nodes pass their "url" config entry.
//
// JSON object responses are decoded and returned as the call result;
// non-JSON bodies come back under a "body" key. Non-2xx statuses are
// errors, so the engine's retry machinery sees them as failed attempts.
type HTTPCaller struct {
	client  *http.Client
	headers map[string]string
}

// HTTPOption configures an HTTPCaller.
type HTTPOption func(*HTTPCaller)

// WithHTTPClient replaces the default http.Client, for custom transports
// or test servers.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTPCaller) { h.client = client }
}

// WithHeader sets a header on every request, such as an Authorization
// bearer token.
func WithHeader(key, value string) HTTPOption {
	return func(h *HTTPCaller) { h.headers[key] = value }
}

// NewHTTPCaller creates a caller with default settings. Timeouts come from
// the request context, which the engine bounds per node.
func NewHTTPCaller(opts ...HTTPOption) *HTTPCaller {
	h := &HTTPCaller{
		client:  &http.Client{},
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Call implements flow.ServiceCaller.
func (h *HTTPCaller) Call(ctx context.Context, target string, payload map[string]any) (map[string]any, error) {
	if target == "" {
		return nil, fmt.Errorf("service target required")
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response from %s: %w", target, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("call %s: status %d: %s", target, resp.StatusCode, respBody)
	}

	result := make(map[string]any)
	if err := json.Unmarshal(respBody, &result); err != nil {
		result = map[string]any{"body": string(respBody)}
	}
	result["status_code"] = resp.StatusCode
	return result, nil
}
