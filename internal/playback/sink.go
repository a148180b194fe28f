package playback

import (
	"context"

	"github.com/lexiqai/voice-studio/internal/asset"
)

// Sink renders an asset. Play always restarts from the beginning at the given rate.
type Sink interface {
	Play(ctx context.Context, a *asset.Asset, rate float64) error
}

// Command types pushed to attached players
const (
	CommandPlay   = "play"
	CommandError  = "error"
	CommandRevoke = "revoke"
	CommandClosed = "closed"
)

// Command is one message sent to a player
type Command struct {
	Type        string   `json:"type"`
	AssetID     string   `json:"asset_id,omitempty"`
	URL         string   `json:"url,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
	Rate        float64  `json:"rate,omitempty"`
	Position    *float64 `json:"position,omitempty"` // Seconds; play commands always start at 0
	Message     string   `json:"message,omitempty"`
}
