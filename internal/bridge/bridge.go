// Package bridge forwards chat-completion requests to configured outbound
// endpoints. It is a thin pass-through: payloads are relayed as raw JSON
// and responses returned untouched.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/engram-memory/engram/internal/config"
)

// Bridge holds the configured endpoints and a shared HTTP client.
type Bridge struct {
	endpoints map[string]config.Endpoint
	client    *http.Client
}

// New creates a bridge over the configured endpoints.
func New(endpoints []config.Endpoint) *Bridge {
	m := make(map[string]config.Endpoint, len(endpoints))
	for _, ep := range endpoints {
		m[ep.Name] = ep
	}
	return &Bridge{
		endpoints: m,
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

// Endpoints lists the configured endpoint names.
func (b *Bridge) Endpoints() []string {
	names := make([]string, 0, len(b.endpoints))
	for n := range b.endpoints {
		names = append(names, n)
	}
	return names
}

// Complete forwards a chat-completion payload to the named endpoint. When
// the payload omits a model and the endpoint declares a default, the
// default is injected; everything else passes through untouched.
func (b *Bridge) Complete(ctx context.Context, endpoint string, payload json.RawMessage) (json.RawMessage, error) {
	ep, ok := b.endpoints[endpoint]
	if !ok {
		return nil, fmt.Errorf("unknown endpoint %q", endpoint)
	}

	body := payload
	if ep.DefaultModel != "" {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(payload, &m); err == nil {
			if _, has := m["model"]; !has {
				m["model"], _ = json.Marshal(ep.DefaultModel)
				body, _ = json.Marshal(m)
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("endpoint %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("endpoint %s returned %d: %s", endpoint, resp.StatusCode, string(out))
	}
	return out, nil
}
