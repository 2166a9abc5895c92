package observability

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// GRPCHealth serves the standard grpc.health.v1 service. The overall status
// (service "") and one status per check mirror the HTTP readiness checks.
type GRPCHealth struct {
	server *grpc.Server
	health *health.Server
	checks []Check
	logger zerolog.Logger
}

// NewGRPCHealth creates a health server; every service starts NOT_SERVING
// until the first Refresh
func NewGRPCHealth(checks []Check) *GRPCHealth {
	server := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    30 * time.Second,
		Timeout: 5 * time.Second,
	}))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, check := range checks {
		hs.SetServingStatus(check.Name, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return &GRPCHealth{
		server: server,
		health: hs,
		checks: checks,
		logger: GetLogger().With().Str("component", "grpc_health").Logger(),
	}
}

// Server exposes the health service implementation
func (g *GRPCHealth) Server() healthpb.HealthServer {
	return g.health
}

// Refresh runs the checks once and publishes the statuses
func (g *GRPCHealth) Refresh(ctx context.Context) bool {
	dependencies, allHealthy := RunChecks(ctx, g.checks)
	for name, dep := range dependencies {
		g.health.SetServingStatus(name, servingStatus(dep.Status == "healthy"))
	}
	g.health.SetServingStatus("", servingStatus(allHealthy))
	return allHealthy
}

// Watch refreshes the statuses every interval until ctx is done
func (g *GRPCHealth) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	g.refreshWithTimeout(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refreshWithTimeout(ctx)
		}
	}
}

func (g *GRPCHealth) refreshWithTimeout(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if !g.Refresh(checkCtx) {
		g.logger.Warn().Msg("Readiness checks failing")
	}
}

// Serve blocks serving gRPC on lis
func (g *GRPCHealth) Serve(lis net.Listener) error {
	g.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	return g.server.Serve(lis)
}

// Shutdown marks every service NOT_SERVING and stops the server
func (g *GRPCHealth) Shutdown() {
	g.health.Shutdown()
	g.server.GracefulStop()
}

func servingStatus(ok bool) healthpb.HealthCheckResponse_ServingStatus {
	if ok {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}
