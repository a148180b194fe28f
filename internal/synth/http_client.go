package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lexiqai/voice-studio/internal/config"
	"github.com/lexiqai/voice-studio/internal/observability"
	"github.com/rs/zerolog"
)

// maxErrorBody bounds how much of a failure response is read
const maxErrorBody = 64 * 1024

// HTTPClient implements Client against a JSON-over-HTTP synthesis endpoint
type HTTPClient struct {
	url        string
	apiKey     string
	timeout    time.Duration
	maxBytes   int64
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewHTTPClient creates a synthesis client from config
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		url:        cfg.SynthesisURL,
		apiKey:     cfg.SynthesisAPIKey,
		timeout:    cfg.SynthesisTimeoutDuration(),
		maxBytes:   int64(cfg.MaxAudioBytes),
		httpClient: &http.Client{},
		logger:     observability.GetLogger().With().Str("component", "synth").Logger(),
	}
}

// Synthesize posts {text, voice} and returns the buffered audio
func (c *HTTPClient) Synthesize(ctx context.Context, req Request) (*Audio, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to make request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return nil, &TransportError{Err: fmt.Errorf("failed to read error response: %w", err)}
		}
		return nil, &SynthesisError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	body := io.Reader(resp.Body)
	if c.maxBytes > 0 {
		body = io.LimitReader(resp.Body, c.maxBytes+1)
	}

	audioData, err := io.ReadAll(body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read audio response: %w", err)}
	}
	if c.maxBytes > 0 && int64(len(audioData)) > c.maxBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrAudioTooLarge, c.maxBytes)
	}

	c.logger.Debug().
		Str("voice", req.Voice).
		Int("text_chars", len([]rune(req.Text))).
		Int("audio_bytes", len(audioData)).
		Dur("elapsed", time.Since(start)).
		Msg("Synthesis response received")

	return &Audio{
		Data:        audioData,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
