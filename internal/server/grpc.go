package server

import (
	"context"

	"github.com/signalsfoundry/globeview/internal/logging"
	"github.com/signalsfoundry/globeview/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// ServiceName is the health service name reported for the engine.
const ServiceName = "globeview.Globe"

const sessionMetadataKey = "x-session-id"

// NewGRPCServer builds a gRPC server exposing the standard health service,
// traced by otelgrpc and counted by metrics. The health server starts as
// NOT_SERVING for ServiceName; call SetServing once the globe is ready.
func NewGRPCServer(log logging.Logger, metrics *observability.GlobeCollector) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			SessionUnaryServerInterceptor(log),
			metrics.UnaryServerInterceptor(),
		),
	)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// SetServing flips the engine's health status.
func SetServing(hs *health.Server, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus(ServiceName, status)
	hs.SetServingStatus("", status)
}

// SessionUnaryServerInterceptor attaches a session-scoped logger to every
// call, reusing an x-session-id from incoming metadata when present.
func SessionUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	base = logging.OrNoop(base)
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(sessionMetadataKey); len(vals) > 0 {
				ctx = logging.ContextWithSessionID(ctx, vals[0])
			}
		}
		method := ""
		if info != nil {
			method = info.FullMethod
		}
		ctx, _ = logging.WithSessionLogger(ctx, base.With(logging.String("method", method)))
		return handler(ctx, req)
	}
}
