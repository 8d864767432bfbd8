package api

import (
	"RedWire/internal/engine/capture"
	"log"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// CaptureService is the health service name that tracks the capture session.
const CaptureService = "redwire.capture"

// Health serves the standard gRPC health protocol. The overall server is
// always SERVING; CaptureService is SERVING only while a capture runs.
type Health struct {
	server *grpc.Server
	health *health.Server
}

// NewHealth registers the health service on a new gRPC server and follows
// the state of session.
func NewHealth(session *capture.Session) *Health {
	h := &Health{
		server: grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(h.server, h.health)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.SetCaptureState(session.State())
	session.OnStateChange(h.SetCaptureState)
	return h
}

// SetCaptureState maps a session state onto CaptureService's status.
func (h *Health) SetCaptureState(state capture.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state == capture.Running {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(CaptureService, status)
}

// Serve accepts connections on lis until Stop is called.
func (h *Health) Serve(lis net.Listener) error {
	log.Printf("gRPC health server listening at %v", lis.Addr())
	return h.server.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (h *Health) Stop() {
	h.health.Shutdown()
	h.server.GracefulStop()
}
