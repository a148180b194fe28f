package session

import (
	"fmt"

	"github.com/lexiqai/voice-studio/internal/asset"
	"github.com/lexiqai/voice-studio/internal/catalog"
)

// Status is the request status of a session
type Status int

const (
	StatusIdle Status = iota
	StatusGenerating
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "Idle"
	case StatusGenerating:
		return "Generating"
	case StatusReady:
		return "Ready"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// MarshalText renders the status by name in JSON
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for _, candidate := range []Status{StatusIdle, StatusGenerating, StatusReady, StatusFailed} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown session status %q", text)
}

// State is one session's text, voice, speed and request result.
// Transitions return a new State and never mutate the receiver.
//
// Asset is only assigned by Complete. Begin and Fail keep it, so a result
// from an earlier generation stays playable while a new one runs or after it fails.
type State struct {
	Text      string
	Voice     catalog.Voice
	Speed     catalog.Speed
	Status    Status
	Asset     *asset.Asset
	LastError string
}

// NewState returns the default session state
func NewState() State {
	return State{
		Text:   catalog.DefaultText,
		Voice:  catalog.DefaultVoice(),
		Speed:  catalog.DefaultSpeed,
		Status: StatusIdle,
	}
}

func (s State) WithText(text string) State {
	s.Text = text
	return s
}

func (s State) WithVoice(v catalog.Voice) State {
	s.Voice = v
	return s
}

// WithSpeed sets the playback speed. Values outside the speed catalog
// leave the state unchanged and report false.
func (s State) WithSpeed(x float64) (State, bool) {
	speed, ok := catalog.ParseSpeed(x)
	if !ok {
		return s, false
	}
	s.Speed = speed
	return s, true
}

// Begin moves to Generating. It reports false while a request is already in flight.
func (s State) Begin() (State, bool) {
	if s.Status == StatusGenerating {
		return s, false
	}
	s.Status = StatusGenerating
	s.LastError = ""
	return s, true
}

// Complete stores a freshly materialized asset and returns the one it replaced,
// which the caller must release.
func (s State) Complete(a *asset.Asset) (State, *asset.Asset) {
	prev := s.Asset
	if prev == a {
		prev = nil
	}
	s.Asset = a
	s.Status = StatusReady
	s.LastError = ""
	return s, prev
}

// Fail records a surfaced failure message. The current asset is kept.
func (s State) Fail(message string) State {
	s.Status = StatusFailed
	s.LastError = message
	return s
}

// Playable reports whether play has something to render
func (s State) Playable() bool {
	return s.Asset != nil && !s.Asset.Released()
}

// detach drops the asset from the state and returns it for release
func (s State) detach() (State, *asset.Asset) {
	a := s.Asset
	s.Asset = nil
	if s.Status == StatusReady {
		s.Status = StatusIdle
	}
	return s, a
}
