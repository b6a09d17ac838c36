// Package grpcsrv exposes the health checker over the standard gRPC health
// protocol for orchestrators that probe over gRPC.
package grpcsrv

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"mindpalace/backend/pkg/health"
	"mindpalace/backend/pkg/logger"
)

// Service is the name reported for the realtime gateway.
const Service = "mindpalace.realtime"

// Server mirrors a health.Checker into a gRPC health service.
type Server struct {
	grpc    *grpc.Server
	health  *grpchealth.Server
	checker *health.Checker
	period  time.Duration
	log     *logger.Logger
}

// New creates the server. period is how often the checker is sampled.
func New(checker *health.Checker, period time.Duration, log *logger.Logger) *Server {
	if log == nil {
		log = logger.GetGlobal()
	}
	if period <= 0 {
		period = 5 * time.Second
	}
	s := &Server{
		grpc:    grpc.NewServer(),
		health:  grpchealth.NewServer(),
		checker: checker,
		period:  period,
		log:     log,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.Sync()
	return s
}

// Sync copies the checker's verdict into the gRPC health status.
func (s *Server) Sync() {
	status := healthpb.HealthCheckResponse_SERVING
	if !s.checker.IsSystemHealthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(Service, status)
}

// Serve accepts connections on lis until ctx is done.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	go func() {
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sync()
			case <-ctx.Done():
				s.health.Shutdown()
				s.grpc.GracefulStop()
				return
			}
		}
	}()

	s.log.Info("gRPC health server listening", "addr", lis.Addr().String())
	return s.grpc.Serve(lis)
}
