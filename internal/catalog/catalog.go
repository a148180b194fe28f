package catalog

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownVoice is returned when a voice is not part of the catalog
var ErrUnknownVoice = errors.New("unknown voice")

// DefaultText is the script a new session starts with
const DefaultText = "A small fire broke out today.\nNo one was hurt.\nFirefighters stopped it quickly."

// Voice is an immutable catalog entry
type Voice struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Voice  string `json:"voice"` // Identifier sent to the synthesis service
	Avatar string `json:"avatar"`
}

var voices = []Voice{
	{ID: "us-female", Label: "American Female", Voice: "en-US-JennyNeural", Avatar: "/voices/american-female.png"},
	{ID: "us-male", Label: "American Male", Voice: "en-US-GuyNeural", Avatar: "/voices/american-male.png"},
	{ID: "uk-female", Label: "British Female", Voice: "en-GB-LibbyNeural", Avatar: "/voices/british-female.png"},
	{ID: "uk-male", Label: "British Male", Voice: "en-GB-RyanNeural", Avatar: "/voices/british-male.png"},
}

// Voices returns the catalog in display order
func Voices() []Voice {
	out := make([]Voice, len(voices))
	copy(out, voices)
	return out
}

// DefaultVoice returns the voice a new session starts with
func DefaultVoice() Voice {
	return voices[0]
}

// LookupVoice resolves either a catalog id ("uk-male") or a synthesis
// voice identifier ("en-GB-RyanNeural")
func LookupVoice(key string) (Voice, error) {
	for _, v := range voices {
		if v.ID == key || v.Voice == key {
			return v, nil
		}
	}
	return Voice{}, fmt.Errorf("%w: %q", ErrUnknownVoice, key)
}

// Speed is a playback rate multiplier. It is never sent to the synthesis service.
type Speed float64

// SpeedOption describes one selectable speed
type SpeedOption struct {
	Value Speed  `json:"value"`
	Label string `json:"label"`
}

var speeds = []SpeedOption{
	{Value: 0.3, Label: "very slow"},
	{Value: 0.5, Label: "slow"},
	{Value: 0.8, Label: "near natural"},
	{Value: 1.0, Label: "normal"},
}

// DefaultSpeed is the playback rate a new session starts with
const DefaultSpeed Speed = 0.5

// Speeds returns the speed options in ascending order
func Speeds() []SpeedOption {
	out := make([]SpeedOption, len(speeds))
	copy(out, speeds)
	return out
}

// ParseSpeed returns the catalog speed equal to x
func ParseSpeed(x float64) (Speed, bool) {
	for _, s := range speeds {
		if float64(s.Value) == x {
			return s.Value, true
		}
	}
	return 0, false
}

// Valid reports whether s is one of the catalog speeds
func (s Speed) Valid() bool {
	_, ok := ParseSpeed(float64(s))
	return ok
}

// String renders the speed the way the selector shows it, e.g. "0.5x"
func (s Speed) String() string {
	return strconv.FormatFloat(float64(s), 'f', -1, 64) + "x"
}
