package ratelimit

import (
	"context"
	"fmt"
	"net/http"

	"github.com/upb/workflow-runner/services/providers"
)

// Client puts a per-model request budget in front of a ProviderClient. A
// request over budget fails at once with a 429 ProviderError carrying a
// retry hint, which the fallback chain treats like an upstream quota error
// and answers by moving to the next candidate.
type Client struct {
	next    providers.ProviderClient
	limiter *Service
}

// NewClient wraps next with limiter
func NewClient(next providers.ProviderClient, limiter *Service) *Client {
	return &Client{next: next, limiter: limiter}
}

// Name returns the wrapped provider's name
func (c *Client) Name() string {
	return c.next.Name()
}

// Generate forwards req when the model still has budget
func (c *Client) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	if res := c.limiter.Allow(req.Model); !res.Allowed {
		return nil, providers.NewProviderError(
			c.next.Name(),
			req.Model,
			"local_rate_limit",
			fmt.Sprintf("local quota exceeded for model %s, retry in %ds", req.Model, res.RetryAfterSeconds()),
			http.StatusTooManyRequests,
			nil,
		)
	}
	return c.next.Generate(ctx, req)
}
