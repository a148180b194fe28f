package synth

import (
	"context"
	"errors"
	"net/http"

	"github.com/lexiqai/voice-studio/internal/resilience"
)

type guardedClient struct {
	breaker *resilience.CircuitBreaker
	client  Client
}

// NewGuarded fails fast with a TransportError while the breaker is open.
// Calls cancelled by the caller are not recorded.
func NewGuarded(cb *resilience.CircuitBreaker, c Client) Client {
	return &guardedClient{breaker: cb, client: c}
}

func (c *guardedClient) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	if !c.breaker.Allow() {
		return nil, &TransportError{Err: resilience.ErrCircuitOpen}
	}

	audio, err := c.client.Synthesize(ctx, req)
	switch {
	case err == nil:
		c.breaker.RecordResult(true)
		return audio, nil
	case ctx.Err() != nil:
		c.breaker.Abandon()
	default:
		c.breaker.RecordResult(!countsAgainstBreaker(err))
	}
	return nil, err
}

// countsAgainstBreaker is true for failures that say the service is unhealthy,
// not for requests it rejected on their merits
func countsAgainstBreaker(err error) bool {
	var se *SynthesisError
	if errors.As(err, &se) {
		return se.StatusCode >= http.StatusInternalServerError
	}
	var te *TransportError
	if errors.As(err, &te) {
		return !errors.Is(te.Err, ErrRateLimited)
	}
	return false
}
