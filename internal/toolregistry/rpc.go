package toolregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPRPCClient calls a tool's endpoint over plain HTTP with a JSON body,
// decoding the response into a map. It is the production RPCClient; tests
// substitute a fake.
type HTTPRPCClient struct {
	httpClient *http.Client
}

// NewHTTPRPCClient builds an HTTPRPCClient with the given request timeout
// as the underlying transport's ceiling (the resilience executor wrapping
// Call supplies the retry/circuit-breaker behaviour).
func NewHTTPRPCClient(timeout time.Duration) *HTTPRPCClient {
	return &HTTPRPCClient{httpClient: &http.Client{Timeout: timeout}}
}

func (c *HTTPRPCClient) Call(ctx context.Context, def ToolDefinition, input map[string]any) (map[string]any, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: marshal input for %s: %w", def.Name, err)
	}
	req, err := http.NewRequestWithContext(ctx, def.Method, def.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("toolregistry: build request for %s: %w", def.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: call %s: %w", def.Name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("toolregistry: read response for %s: %w", def.Name, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("toolregistry: %s returned status %d: %s", def.Name, resp.StatusCode, string(respBody))
	}
	var out map[string]any
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &out); err != nil {
			return nil, fmt.Errorf("toolregistry: decode response for %s: %w", def.Name, err)
		}
	}
	return out, nil
}

var _ RPCClient = (*HTTPRPCClient)(nil)
