package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the service reported next to the overall "" status.
const ServiceName = "chat-relay"

// HealthServer publishes the liveness of the relay over grpc.health.v1.
// Status starts NOT_SERVING and follows the health worker's reports.
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	log    *slog.Logger
}

func NewHealthServer(log *slog.Logger) *HealthServer {
	s := &HealthServer{
		server: grpc.NewServer(),
		health: health.NewServer(),
		log:    log,
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.Report(false)
	return s
}

// Report records the latest health check outcome.
func (s *HealthServer) Report(healthy bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until ctx is cancelled or the listener fails.
func (s *HealthServer) Serve(ctx context.Context, listener net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		s.log.Info("Starting gRPC health server", "address", listener.Addr().String())
		if err := s.server.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.server.GracefulStop()
		return nil
	case err, ok := <-errChan:
		if !ok {
			return nil
		}
		return err
	}
}
