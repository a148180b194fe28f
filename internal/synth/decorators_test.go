package synth

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/lexiqai/voice-studio/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type stubClient struct {
	calls int
	err   error
}

func (s *stubClient) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Audio{Data: []byte("mp3"), ContentType: "audio/mpeg"}, nil
}

func TestNewLimited_NilLimiter(t *testing.T) {
	stub := &stubClient{}
	assert.Same(t, Client(stub), NewLimited(nil, stub))
}

func TestLimited_RejectsOverRate(t *testing.T) {
	stub := &stubClient{}
	client := NewLimited(rate.NewLimiter(rate.Every(time.Hour), 1), stub)

	_, err := client.Synthesize(context.Background(), Request{Text: "one"})
	require.NoError(t, err)

	_, err = client.Synthesize(context.Background(), Request{Text: "two"})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 1, stub.calls, "rejected request must not reach the service")
}

func TestGuarded_OpensOnTransportFailures(t *testing.T) {
	stub := &stubClient{err: &TransportError{Err: errors.New("connection refused")}}
	cb := resilience.NewCircuitBreaker("synthesis", 2, time.Hour)
	client := NewGuarded(cb, stub)

	for i := 0; i < 2; i++ {
		_, err := client.Synthesize(context.Background(), Request{})
		require.Error(t, err)
	}
	require.Equal(t, resilience.StateOpen, cb.GetState())

	_, err := client.Synthesize(context.Background(), Request{})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, stub.calls)
}

// stallingClient waits for the caller to give up
type stallingClient struct {
	calls int
}

func (s *stallingClient) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	s.calls++
	<-ctx.Done()
	return nil, &TransportError{Err: ctx.Err()}
}

func TestGuarded_CallerCancellationDoesNotTrip(t *testing.T) {
	stub := &stallingClient{}
	cb := resilience.NewCircuitBreaker("synthesis", 3, time.Hour)
	client := NewGuarded(cb, stub)

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := client.Synthesize(ctx, Request{Text: "abandoned"})
		cancel()

		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}

	assert.Equal(t, resilience.StateClosed, cb.GetState())
	assert.Equal(t, 5, stub.calls)

	_, requests, failures, _ := cb.GetStats()
	assert.Zero(t, requests)
	assert.Zero(t, failures)
}

func TestGuarded_ServiceTimeoutStillTrips(t *testing.T) {
	stub := &stubClient{err: &TransportError{Err: context.DeadlineExceeded}}
	cb := resilience.NewCircuitBreaker("synthesis", 2, time.Hour)
	client := NewGuarded(cb, stub)

	// The caller's context is alive; the deadline came from the client's own timeout
	for i := 0; i < 2; i++ {
		_, err := client.Synthesize(context.Background(), Request{})
		require.Error(t, err)
	}
	assert.Equal(t, resilience.StateOpen, cb.GetState())
}

func TestGuarded_ClientErrorsDoNotTrip(t *testing.T) {
	stub := &stubClient{err: &SynthesisError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}}
	cb := resilience.NewCircuitBreaker("synthesis", 1, time.Hour)
	client := NewGuarded(cb, stub)

	_, err := client.Synthesize(context.Background(), Request{})
	assert.Equal(t, "rate limited", Message(err))
	assert.Equal(t, resilience.StateClosed, cb.GetState())
}

func TestGuarded_ServerErrorsTrip(t *testing.T) {
	stub := &stubClient{err: &SynthesisError{StatusCode: http.StatusBadGateway, Message: "upstream down"}}
	cb := resilience.NewCircuitBreaker("synthesis", 1, time.Hour)

	_, err := NewGuarded(cb, stub).Synthesize(context.Background(), Request{})
	assert.Equal(t, "upstream down", Message(err))
	assert.Equal(t, resilience.StateOpen, cb.GetState())
}

func TestGuarded_Success(t *testing.T) {
	stub := &stubClient{}
	cb := resilience.NewCircuitBreaker("synthesis", 1, time.Hour)

	audio, err := NewGuarded(cb, stub).Synthesize(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "mp3", string(audio.Data))
}
