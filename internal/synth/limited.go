package synth

import (
	"context"

	"golang.org/x/time/rate"
)

type limitedClient struct {
	limiter *rate.Limiter
	client  Client
}

// NewLimited rejects requests above the limiter's rate instead of queuing them.
// A nil limiter returns c unchanged.
func NewLimited(l *rate.Limiter, c Client) Client {
	if l == nil {
		return c
	}
	return &limitedClient{limiter: l, client: c}
}

func (c *limitedClient) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	if !c.limiter.Allow() {
		return nil, &TransportError{Err: ErrRateLimited}
	}
	return c.client.Synthesize(ctx, req)
}
