package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// HTTPProvider is a vendor-agnostic adapter for inference services that
// accept a JSON analysis request and return a JSON result. Vendor-specific
// clients live outside the engine; this adapter covers any endpoint that
// speaks the uniform contract.
type HTTPProvider struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPProvider creates an adapter for the given endpoint.
func NewHTTPProvider(name, endpoint, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		name:     name,
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			// Per-call deadlines come from the dispatch context; this is a
			// hard ceiling against a missing deadline.
			Timeout: 5 * time.Minute,
		},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

// Analyze posts the request and validates the response against the result
// schema. HTTP status codes map onto the failure taxonomy: 429 is
// rate-limited, 4xx terminal, everything else transient.
func (p *HTTPProvider) Analyze(ctx context.Context, req *Request) (*Result, error) {
	body, err := json.Marshal(struct {
		TaskID    string            `json:"task_id"`
		MediaType string            `json:"media_type"`
		Data      []byte            `json:"data,omitempty"`
		Params    map[string]string `json:"params,omitempty"`
	}{req.TaskID, req.MediaType, req.Data, req.Params})
	if err != nil {
		return nil, NewError(p.name, KindTerminal, fmt.Errorf("encode request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(p.name, KindTerminal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, NewError(p.name, KindTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, NewError(p.name, KindTransient, fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewError(p.name, KindRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, NewError(p.name, KindTerminal, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, NewError(p.name, KindTransient, fmt.Errorf("status %d", resp.StatusCode))
	}

	return ParseResult(p.name, raw)
}
