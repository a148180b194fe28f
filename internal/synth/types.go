package synth

import (
	"context"
	"errors"
	"fmt"
)

// Request is the payload sent to the synthesis service.
// Playback speed is deliberately absent; it never leaves the consuming side.
type Request struct {
	Text  string `json:"text"`
	Voice string `json:"voice"` // Synthesis voice identifier, not the catalog id
}

// Audio is a fully buffered synthesis result
type Audio struct {
	Data        []byte
	ContentType string
}

// Client converts text and a voice into compressed audio
type Client interface {
	Synthesize(ctx context.Context, req Request) (*Audio, error)
}

// Messages surfaced to users when the service gives nothing better
const (
	MessageServerError   = "TTS error from server."
	MessageRequestFailed = "TTS request failed. Check server logs for details."
)

var (
	// ErrRateLimited is wrapped in a TransportError when the local limiter rejects a request
	ErrRateLimited = errors.New("synthesis request rate exceeded")

	// ErrAudioTooLarge is returned when the response body exceeds the configured limit
	ErrAudioTooLarge = errors.New("synthesized audio exceeds size limit")
)

// TransportError means the request could not be completed
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "synthesis transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// SynthesisError means the service responded with a failure status
type SynthesisError struct {
	StatusCode int
	Message    string // Response body, verbatim
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis service returned status %d: %s", e.StatusCode, e.Message)
}

// Message returns the text to surface to the user for a failed generation
func Message(err error) string {
	var se *SynthesisError
	if errors.As(err, &se) {
		if se.Message != "" {
			return se.Message
		}
		return MessageServerError
	}
	return MessageRequestFailed
}

// Kind classifies err for metrics and logs: "synthesis", "transport" or "internal"
func Kind(err error) string {
	var se *SynthesisError
	var te *TransportError
	switch {
	case errors.As(err, &se):
		return "synthesis"
	case errors.As(err, &te):
		return "transport"
	default:
		return "internal"
	}
}
