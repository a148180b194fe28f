package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/lexiqai/voice-studio/internal/asset"
	"github.com/lexiqai/voice-studio/internal/catalog"
	"github.com/lexiqai/voice-studio/internal/observability"
	"github.com/lexiqai/voice-studio/internal/session"
)

// SessionResponse is the JSON view of a session
type SessionResponse struct {
	ID     string         `json:"id"`
	Text   string         `json:"text"`
	Voice  catalog.Voice  `json:"voice"`
	Speed  catalog.Speed  `json:"speed"`
	Status session.Status `json:"status"`
	Asset  *AssetResponse `json:"asset,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// AssetResponse describes the playable result of a session
type AssetResponse struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// SpeedsResponse lists the selectable playback speeds
type SpeedsResponse struct {
	Speeds  []catalog.SpeedOption `json:"speeds"`
	Default catalog.Speed         `json:"default"`
}

type textRequest struct {
	Text string `json:"text"`
}

type voiceRequest struct {
	Voice string `json:"voice"`
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

func (s *Server) snapshot(c *session.Controller, st session.State) SessionResponse {
	resp := SessionResponse{
		ID:     c.ID(),
		Text:   st.Text,
		Voice:  st.Voice,
		Speed:  st.Speed,
		Status: st.Status,
		Error:  st.LastError,
	}
	if st.Playable() {
		resp.Asset = &AssetResponse{
			ID:          st.Asset.ID(),
			URL:         s.hub.AssetURL(st.Asset.ID()),
			ContentType: st.Asset.ContentType(),
			Size:        st.Asset.Size(),
		}
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// lookup resolves the session named in the route or writes a 404
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Controller, bool) {
	c, err := s.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return nil, false
	}
	return c, true
}

// ListVoices returns the voice catalog in display order
func (s *Server) ListVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"voices":  catalog.Voices(),
		"default": catalog.DefaultVoice().ID,
	})
}

// ListSpeeds returns the speed catalog in ascending order
func (s *Server) ListSpeeds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SpeedsResponse{
		Speeds:  catalog.Speeds(),
		Default: catalog.DefaultSpeed,
	})
}

func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	c := s.sessions.Create()
	w.Header().Set("Location", "/api/sessions/"+c.ID())
	writeJSON(w, http.StatusCreated, s.snapshot(c, c.Snapshot()))
}

func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(c, c.Snapshot()))
}

func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(mux.Vars(r)["id"]); err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) SetText(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req textRequest
	if !decode(w, r, &req) {
		return
	}
	if s.maxTextLength > 0 && utf8.RuneCountInString(req.Text) > s.maxTextLength {
		http.Error(w, fmt.Sprintf("Text exceeds %d characters", s.maxTextLength), http.StatusRequestEntityTooLarge)
		return
	}

	c.SetText(req.Text)
	writeJSON(w, http.StatusOK, s.snapshot(c, c.Snapshot()))
}

func (s *Server) ClearText(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	c.SetText("")
	writeJSON(w, http.StatusOK, s.snapshot(c, c.Snapshot()))
}

func (s *Server) SetVoice(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req voiceRequest
	if !decode(w, r, &req) {
		return
	}
	if err := c.SetVoice(req.Voice); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(c, c.Snapshot()))
}

// SetSpeed applies a catalog speed. Other values leave the speed unchanged.
func (s *Server) SetSpeed(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	var req speedRequest
	if !decode(w, r, &req) {
		return
	}
	c.SetSpeed(req.Speed)
	writeJSON(w, http.StatusOK, s.snapshot(c, c.Snapshot()))
}

// Generate runs one synthesis request and responds once it completes.
// Failures respond 502 with the surfaced message as plain text. The request
// outlives a client disconnect so an abandoned call still settles the session.
func (s *Server) Generate(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	st, issued := c.Generate(context.WithoutCancel(r.Context()))
	if c.Closed() {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if !issued {
		writeJSON(w, http.StatusConflict, s.snapshot(c, st))
		return
	}

	if st.Status == session.StatusFailed {
		http.Error(w, st.LastError, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(c, st))
}

// Play sends a play command for the current asset at the current speed
func (s *Server) Play(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}

	played, err := c.Play(r.Context())
	switch {
	case errors.Is(err, session.ErrSessionClosed):
		http.Error(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, asset.ErrReleased):
		http.Error(w, "Audio was superseded", http.StatusConflict)
	case err != nil:
		observability.RecordError("play", "api")
		s.logger.Error().Err(err).Str("session_id", c.ID()).Msg("Play failed")
		http.Error(w, "Playback failed", http.StatusInternalServerError)
	case !played:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusAccepted, s.snapshot(c, c.Snapshot()))
	}
}

// AttachPlayer upgrades to a websocket that receives the session's playback commands
func (s *Server) AttachPlayer(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := s.hub.ServeWS(w, r, c.ID()); err != nil {
		s.logger.Warn().Err(err).Str("session_id", c.ID()).Msg("Player attach failed")
	}
}

// ServeAsset streams a live asset's bytes. Released assets are gone.
func (s *Server) ServeAsset(w http.ResponseWriter, r *http.Request) {
	a, err := s.assets.Open(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Asset not found", http.StatusNotFound)
		return
	}
	rd, err := a.Reader()
	if err != nil {
		http.Error(w, "Asset not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", a.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, "", a.CreatedAt(), rd)
}
