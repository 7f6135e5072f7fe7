package grpcapi

import (
	"context"
	"time"

	"head-monitor/app/src/domain"
	"head-monitor/app/src/infra"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// NewServer constructs a gRPC server exposing the standard health service backed by reporter.
func NewServer(reporter *HealthReporter, logger *infra.Logger) *grpc.Server {
	interceptors := []grpc.UnaryServerInterceptor{
		loggingInterceptor(logger),
		infra.GRPCUnaryInterceptor(),
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(interceptors...))
	healthpb.RegisterHealthServer(server, reporter.server)
	reflection.Register(server)
	return server
}

// HealthReporter maps monitor phases onto gRPC health statuses.
// The overall service ("") is SERVING while the process runs; each
// measurement is registered as "<dataset>.<measurement>" and is SERVING once it streams.
type HealthReporter struct {
	server *health.Server
}

func NewHealthReporter() *HealthReporter {
	server := health.NewServer()
	server.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return &HealthReporter{server: server}
}

// Observe is a status listener.
func (h *HealthReporter) Observe(status domain.MeasurementStatus) {
	h.server.SetServingStatus(status.ID.String(), servingStatus(status.Phase))
}

// Shutdown marks every service NOT_SERVING.
func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}

func servingStatus(phase domain.Phase) healthpb.HealthCheckResponse_ServingStatus {
	if phase == domain.PhaseStreaming {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

func loggingInterceptor(logger *infra.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		duration := time.Since(start)
		if err != nil {
			if logger != nil {
				logger.Errorf(ctx, "gRPC %s failed in %s: %v", info.FullMethod, duration, err)
			}
		} else {
			if logger != nil {
				logger.Printf(ctx, "gRPC %s completed in %s", info.FullMethod, duration)
			}
		}
		return resp, err
	}
}
