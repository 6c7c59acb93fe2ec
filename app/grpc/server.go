package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

const pingTimeout = 2 * time.Second

type pinger interface {
	PingContext(ctx context.Context) error
}

// HealthServer answers grpc.health.v1 checks by pinging the database.
type HealthServer struct {
	healthpb.UnimplementedHealthServer
	db pinger
}

func NewHealthServer(db pinger) *HealthServer {
	return &HealthServer{db: db}
}

func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if service := req.GetService(); service != "" {
		return nil, status.Errorf(codes.NotFound, "unknown service %q", service)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := s.db.PingContext(pingCtx); err != nil {
		loggerWithContext(ctx).WithError(err).Warn("Health check database ping failed")
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}

	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
