// Package embedding provides the outbound HTTP client that turns an
// IntentEvent into a 128-d intent vector by calling the embedding service
// (spec.md §6: "POST /encode with { intent_event } -> { vector: float[128] }").
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/vectorbound/boundaryplane/internal/domain/intent"
	"github.com/vectorbound/boundaryplane/internal/domain/vector"
	"github.com/vectorbound/boundaryplane/internal/port/outbound"
)

// maxResponseBodySize bounds the /encode response, preventing OOM from a
// misbehaving embedding service.
const maxResponseBodySize = 1 * 1024 * 1024

// HTTPClient calls a remote embedding service's /encode endpoint.
// Implements outbound.EmbeddingClient.
type HTTPClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPClient builds a client against endpoint (the embedding service's
// base URL), dialing with connectTimeout and bounding the whole call with
// requestTimeout.
func NewHTTPClient(endpoint string, connectTimeout, requestTimeout time.Duration) *HTTPClient {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &HTTPClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext:         dialer.DialContext,
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type encodeRequest struct {
	IntentEvent *intent.Event `json:"intent_event"`
}

type encodeResponse struct {
	Vector []float32 `json:"vector"`
}

// Encode posts event to the embedding service's /encode endpoint and
// returns the decoded 128-d intent vector.
func (c *HTTPClient) Encode(ctx context.Context, event *intent.Event) (vector.IntentVector, error) {
	var out vector.IntentVector

	body, err := json.Marshal(encodeRequest{IntentEvent: event})
	if err != nil {
		return out, fmt.Errorf("marshal encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/encode", bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("build encode request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("encode request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return out, fmt.Errorf("read encode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("encode: http status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded encodeResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return out, fmt.Errorf("unmarshal encode response: %w", err)
	}
	if len(decoded.Vector) != vector.IntentWidth {
		return out, fmt.Errorf("encode response: expected %d-d vector, got %d", vector.IntentWidth, len(decoded.Vector))
	}

	copy(out[:], decoded.Vector)
	return out, nil
}

// Compile-time interface verification.
var _ outbound.EmbeddingClient = (*HTTPClient)(nil)
