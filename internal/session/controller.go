package session

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lexiqai/voice-studio/internal/asset"
	"github.com/lexiqai/voice-studio/internal/catalog"
	"github.com/lexiqai/voice-studio/internal/observability"
	"github.com/lexiqai/voice-studio/internal/playback"
	"github.com/lexiqai/voice-studio/internal/synth"
	"github.com/rs/zerolog"
)

// ErrSessionClosed is returned by operations on a destroyed session
var ErrSessionClosed = errors.New("session is closed")

// Reporter is the error-reporting channel failures are surfaced on
type Reporter interface {
	Report(message string)
}

// Endpoint is where a session's playback commands and failure reports go
type Endpoint interface {
	playback.Sink
	Reporter
}

// EndpointFactory returns the endpoint for a session id
type EndpointFactory func(sessionID string) Endpoint

// Dependencies are the collaborators a session needs
type Dependencies struct {
	Synth     synth.Client
	Assets    *asset.Manager
	Endpoints EndpointFactory // nil discards playback and reports
	Now       func() time.Time
}

type discard struct{}

func (discard) Play(context.Context, *asset.Asset, float64) error { return nil }
func (discard) Report(string)                                    {}

// Controller owns one session's state and drives generation and playback
type Controller struct {
	id       string
	synth    synth.Client
	assets   *asset.Manager
	endpoint Endpoint
	now      func() time.Time
	logger   zerolog.Logger

	mu         sync.Mutex
	state      State
	lastActive time.Time
	closed     bool
}

// NewController creates a session in the default Idle state
func NewController(id string, deps Dependencies) *Controller {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	var endpoint Endpoint = discard{}
	if deps.Endpoints != nil {
		endpoint = deps.Endpoints(id)
	}

	return &Controller{
		id:         id,
		synth:      deps.Synth,
		assets:     deps.Assets,
		endpoint:   endpoint,
		now:        now,
		logger:     observability.WithSessionID(id),
		state:      NewState(),
		lastActive: now(),
	}
}

func (c *Controller) ID() string {
	return c.id
}

// Closed reports whether the session has been destroyed
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Snapshot returns a copy of the current state
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastActive returns the time of the last operation on the session
func (c *Controller) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Controller) SetText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = c.state.WithText(text)
	c.lastActive = c.now()
}

// SetVoice selects a voice by catalog id or synthesis voice identifier.
// Unknown voices return catalog.ErrUnknownVoice and keep the current one.
func (c *Controller) SetVoice(key string) error {
	v, err := catalog.LookupVoice(key)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = c.state.WithVoice(v)
	c.lastActive = c.now()
	return nil
}

// SetSpeed sets the playback speed. Values outside the speed catalog are ignored.
func (c *Controller) SetSpeed(x float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActive = c.now()

	next, ok := c.state.WithSpeed(x)
	if !ok {
		c.logger.Debug().Float64("speed", x).Msg("Ignoring speed outside catalog")
		return false
	}
	c.state = next
	return true
}

// Generate issues one synthesis request for the current text and voice and
// blocks until it completes. It returns false without contacting the
// collaborator when a request is already in flight or the session is closed.
// The returned state is the one the completion produced. Callers should check
// Closed afterwards, since the session may be destroyed while the request runs.
func (c *Controller) Generate(ctx context.Context) (State, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{}, false
	}
	next, ok := c.state.Begin()
	if !ok {
		st := c.state
		c.mu.Unlock()
		observability.RecordGenerationSkipped()
		c.logger.Debug().Msg("Generation already in flight, skipping")
		return st, false
	}
	c.state = next
	c.lastActive = c.now()
	c.mu.Unlock()

	req := synth.Request{Text: next.Text, Voice: next.Voice.Voice}
	metrics := observability.NewGenerationMetrics(c.id)
	c.logger.Info().
		Str("voice", req.Voice).
		Int("text_chars", utf8.RuneCountInString(req.Text)).
		Msg("Generating audio")

	a, err := c.synthesize(ctx, req)
	if err != nil {
		return c.fail(err, metrics), true
	}

	c.mu.Lock()
	if c.closed {
		st := c.state
		c.mu.Unlock()
		c.release(a)
		return st, true
	}
	var prev *asset.Asset
	c.state, prev = c.state.Complete(a)
	c.lastActive = c.now()
	st := c.state
	c.mu.Unlock()

	c.release(prev)
	metrics.RecordReady(a.Size())
	c.logger.Info().
		Str("asset_id", a.ID()).
		Int("bytes", a.Size()).
		Str("content_type", a.ContentType()).
		Msg("Audio ready")
	return st, true
}

func (c *Controller) synthesize(ctx context.Context, req synth.Request) (*asset.Asset, error) {
	audio, err := c.synth.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.assets.Materialize(audio.Data, audio.ContentType)
}

func (c *Controller) fail(err error, metrics *observability.GenerationMetrics) State {
	message := synth.Message(err)
	kind := synth.Kind(err)

	c.mu.Lock()
	c.state = c.state.Fail(message)
	c.lastActive = c.now()
	st := c.state
	c.mu.Unlock()

	metrics.RecordFailed(kind)
	c.logger.Warn().Err(err).Str("error_type", kind).Msg("Generation failed")
	c.endpoint.Report(message)
	return st
}

func (c *Controller) release(a *asset.Asset) {
	if a == nil {
		return
	}
	if err := c.assets.Release(a); err != nil {
		observability.RecordError("release", "asset")
		c.logger.Error().Err(err).Str("asset_id", a.ID()).Msg("Failed to release asset")
	}
}

// Play restarts the current asset from the beginning at the speed current
// at call time. Without an asset it does nothing and reports false.
func (c *Controller) Play(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrSessionClosed
	}
	c.lastActive = c.now()

	a := c.state.Asset
	if a == nil {
		return false, nil
	}

	// The lock keeps a completing generation from releasing a until the sink returns
	if err := c.endpoint.Play(ctx, a, float64(c.state.Speed)); err != nil {
		c.logger.Warn().Err(err).Str("asset_id", a.ID()).Msg("Playback failed")
		return false, err
	}
	return true, nil
}

// Close destroys the session and releases its asset.
// A generation still in flight releases its result when it completes.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	var a *asset.Asset
	c.state, a = c.state.detach()
	c.mu.Unlock()

	c.release(a)
	c.logger.Debug().Msg("Session closed")
}
