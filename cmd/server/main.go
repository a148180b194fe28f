package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/lexiqai/voice-studio/internal/api"
	"github.com/lexiqai/voice-studio/internal/asset"
	"github.com/lexiqai/voice-studio/internal/config"
	"github.com/lexiqai/voice-studio/internal/observability"
	"github.com/lexiqai/voice-studio/internal/playback"
	"github.com/lexiqai/voice-studio/internal/resilience"
	"github.com/lexiqai/voice-studio/internal/session"
	"github.com/lexiqai/voice-studio/internal/synth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("grpc_port", cfg.GRPCPort).
		Str("synthesis_url", cfg.SynthesisURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Voice Studio Service starting")

	// Playback hub and asset lifecycle
	hub := playback.NewHub(cfg.PublicBaseURL, cfg.CORSAllowedOrigins)
	assets := asset.NewManager(cfg.MaxAudioBytes)
	assets.OnRelease(hub.AssetReleased)

	// gRPC health mirrors the synthesis circuit breaker
	health := observability.NewHealthReporter()
	health.SetSynthesisAvailable(true)

	breaker := resilience.NewCircuitBreaker(
		observability.SynthesisServiceName,
		cfg.CircuitBreakerMaxFailures,
		cfg.CircuitBreakerResetDuration(),
		resilience.WithStateChange(func(name string, from, to resilience.CircuitState) {
			observability.UpdateCircuitBreakerState(name, int(to))
			health.SetSynthesisAvailable(to != resilience.StateOpen)
			logger.Warn().
				Str("service", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		}),
		resilience.WithFailureObserver(observability.IncrementCircuitBreakerFailures),
	)

	var limiter *rate.Limiter
	if cfg.SynthesisRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SynthesisRateLimit), cfg.SynthesisRateBurst)
	}
	client := synth.NewGuarded(breaker, synth.NewLimited(limiter, synth.NewHTTPClient(cfg)))

	// Sessions
	sessions := session.NewManager(session.Dependencies{
		Synth:     client,
		Assets:    assets,
		Endpoints: func(id string) session.Endpoint { return hub.Channel(id) },
	})
	sessions.OnClose(hub.Detach)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	go sessions.RunJanitor(janitorCtx, cfg.SessionIdleTimeoutDuration(), time.Minute)

	// Create HTTP router
	r := mux.NewRouter()
	api.NewServer(sessions, assets, hub, cfg.MaxTextLength).RegisterRoutes(r)

	// Health check endpoint
	r.HandleFunc("/health", observability.HealthCheckHandler()).Methods("GET")

	// Readiness endpoint
	synthesisCheck := func(ctx context.Context) (bool, error) {
		state, requests, failures, _ := breaker.GetStats()
		if state == resilience.StateOpen {
			return false, fmt.Errorf("circuit breaker is %s (%d of %d requests failed)", state, failures, requests)
		}
		return true, nil
	}
	r.HandleFunc("/ready", observability.ReadinessHandler(
		observability.DependencyCheck{Name: observability.SynthesisServiceName, Check: synthesisCheck},
	)).Methods("GET")

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. Generation holds the request open
	// for up to the synthesis timeout, so the write timeout has to cover it.
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      api.Handler(r, cfg.CORSAllowedOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.SynthesisTimeoutDuration() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// gRPC server for health probes
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, health.Server())

	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		logger.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("Failed to listen for gRPC")
	}

	go func() {
		logger.Info().Str("port", cfg.GRPCPort).Msg("gRPC health server listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error().Err(err).Msg("gRPC server stopped")
		}
	}()

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/api", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	health.Shutdown()
	stopJanitor()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	hub.Close()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	grpcServer.GracefulStop()

	sessions.Close()
	assets.ReleaseAll()

	logger.Info().Int("live_assets", assets.Live()).Msg("Server exited gracefully")
}
