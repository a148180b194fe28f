package observability

import (
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SynthesisServiceName is the gRPC health service name tracking the synthesis collaborator
const SynthesisServiceName = "synthesis"

// HealthReporter mirrors dependency state into a gRPC health server
type HealthReporter struct {
	server *health.Server
}

// NewHealthReporter creates a health server with every service SERVING
func NewHealthReporter() *HealthReporter {
	s := health.NewServer()
	s.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.SetServingStatus(SynthesisServiceName, healthpb.HealthCheckResponse_SERVING)
	return &HealthReporter{server: s}
}

// Server returns the health service for registration on a grpc.Server
func (h *HealthReporter) Server() healthpb.HealthServer {
	return h.server
}

// SetSynthesisAvailable flips the synthesis and overall status together
func (h *HealthReporter) SetSynthesisAvailable(available bool) {
	status := healthpb.HealthCheckResponse_SERVING
	if !available {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus(SynthesisServiceName, status)
	h.server.SetServingStatus("", status)
}

// Shutdown marks all services NOT_SERVING
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}
