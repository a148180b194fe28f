package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/lexiqai/voice-studio/internal/asset"
	"github.com/lexiqai/voice-studio/internal/observability"
	"github.com/lexiqai/voice-studio/internal/playback"
	"github.com/lexiqai/voice-studio/internal/session"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds JSON request bodies independently of the text limit
const maxBodyBytes = 1 << 20

// Server exposes sessions, catalogs and assets over HTTP
type Server struct {
	sessions      *session.Manager
	assets        *asset.Manager
	hub           *playback.Hub
	maxTextLength int
	logger        zerolog.Logger
}

// NewServer creates the HTTP surface. maxTextLength of 0 disables the text limit.
func NewServer(sessions *session.Manager, assets *asset.Manager, hub *playback.Hub, maxTextLength int) *Server {
	return &Server{
		sessions:      sessions,
		assets:        assets,
		hub:           hub,
		maxTextLength: maxTextLength,
		logger:        observability.GetLogger().With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes mounts the API and asset routes on r
func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/assets/{id}", s.ServeAsset).Methods("GET", "HEAD")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requestLogger)

	api.HandleFunc("/voices", s.ListVoices).Methods("GET")
	api.HandleFunc("/speeds", s.ListSpeeds).Methods("GET")

	api.HandleFunc("/sessions", s.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", s.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.DeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/text", s.SetText).Methods("PUT")
	api.HandleFunc("/sessions/{id}/text", s.ClearText).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/voice", s.SetVoice).Methods("PUT")
	api.HandleFunc("/sessions/{id}/speed", s.SetSpeed).Methods("PUT")
	api.HandleFunc("/sessions/{id}/generate", s.Generate).Methods("POST")
	api.HandleFunc("/sessions/{id}/play", s.Play).Methods("POST")
	api.HandleFunc("/sessions/{id}/player", s.AttachPlayer).Methods("GET")
}

// Handler wraps r with CORS for the given origins
func Handler(r *mux.Router, allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"X-Correlation-ID"},
	})
	return c.Handler(r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger tags each API request with a correlation id and logs its outcome.
// Websocket upgrades are passed through untouched since they need the raw writer.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = observability.NewCorrelationID()
		}
		w.Header().Set("X-Correlation-ID", correlationID)

		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		logger := observability.WithCorrelationID(correlationID)
		logger.Debug().
			Str("component", "api").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}
