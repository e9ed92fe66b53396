package providers

import (
	"context"
	"net/http"
)

// UnconfiguredClient stands in for a backend whose credentials are missing.
// Every call fails with an authentication error so AI-backed steps abort
// while local steps keep working.
type UnconfiguredClient struct {
	name string
}

// NewUnconfiguredClient returns a client that always reports missing credentials
func NewUnconfiguredClient(name string) *UnconfiguredClient {
	return &UnconfiguredClient{name: name}
}

// Name returns the backend name
func (c *UnconfiguredClient) Name() string {
	return c.name
}

// Generate always fails
func (c *UnconfiguredClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, NewProviderError(c.name, req.Model, "NOT_CONFIGURED", "API key is not configured", http.StatusUnauthorized, nil)
}

// IsConfigured reports whether client is backed by real credentials
func IsConfigured(client ProviderClient) bool {
	_, unconfigured := client.(*UnconfiguredClient)
	return client != nil && !unconfigured
}
