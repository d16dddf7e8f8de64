package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"session-auth/internal/audit"
	healthhandler "session-auth/internal/health/handler"
	identityhandler "session-auth/internal/identity/handler"
	"session-auth/internal/server/interceptors"
	"session-auth/internal/telemetry"
)

// Health check full method names.
const (
	HealthCheckFullMethod = "/grpc.health.v1.Health/Check"
	HealthWatchFullMethod = "/grpc.health.v1.Health/Watch"
	HealthListFullMethod  = "/grpc.health.v1.Health/List"
)

// Deps holds optional service dependencies for gRPC handlers and interceptors.
type Deps struct {
	// Auth is the session manager behind AuthService. If nil, auth RPCs return Unimplemented.
	Auth identityhandler.SessionService
	// Tokens verifies Bearer access tokens. If nil, no auth interceptor is installed and Me is always Unauthenticated.
	Tokens interceptors.AccessVerifier
	// Audit records authenticated RPCs that do not audit themselves. If nil, no RPCs are audited by the interceptor.
	Audit audit.AuditLogger
	// Events receives a grpc_request event per RPC. If nil, no request events are emitted.
	Events telemetry.EventEmitter
	// Health reports readiness via grpc.health.v1. If nil, the health service is not registered.
	Health *healthhandler.Server
}

// PublicMethods returns the full method names that do not require a Bearer token.
func PublicMethods() map[string]bool {
	m := map[string]bool{
		HealthCheckFullMethod: true,
		HealthWatchFullMethod: true,
		HealthListFullMethod:  true,
	}
	for _, name := range identityhandler.PublicMethods {
		m[name] = true
	}
	return m
}

// auditSkipMethods are methods the audit interceptor ignores: health checks,
// and the session RPCs, which write their own audit entries.
func auditSkipMethods() map[string]bool {
	return PublicMethods()
}

// telemetrySkipMethods are methods that emit no grpc_request event.
func telemetrySkipMethods() map[string]bool {
	return map[string]bool{
		HealthCheckFullMethod: true,
		HealthWatchFullMethod: true,
		HealthListFullMethod:  true,
	}
}

// UnaryInterceptors returns the server's unary interceptor chain in order:
// authentication, then audit, then request telemetry.
func UnaryInterceptors(deps Deps) []grpc.UnaryServerInterceptor {
	var chain []grpc.UnaryServerInterceptor
	if deps.Tokens != nil {
		chain = append(chain, interceptors.AuthUnary(deps.Tokens, PublicMethods()))
	}
	if deps.Audit != nil {
		chain = append(chain, interceptors.AuditUnary(deps.Audit, auditSkipMethods()))
	}
	if deps.Events != nil {
		chain = append(chain, interceptors.TelemetryUnary(deps.Events, telemetrySkipMethods()))
	}
	return chain
}

// NewServer builds a gRPC server with OpenTelemetry instrumentation and the
// interceptor chain for deps, and registers all services. extra options are
// appended after the defaults.
func NewServer(deps Deps, extra ...grpc.ServerOption) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryInterceptors(deps)...),
	}
	s := grpc.NewServer(append(opts, extra...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - sessionauth.v1.AuthService → internal/identity/handler
//   - grpc.health.v1.Health      → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	identityhandler.RegisterAuthServiceServer(s, identityhandler.NewAuthServer(deps.Auth))
	if deps.Health != nil {
		healthpb.RegisterHealthServer(s, deps.Health.HealthServer())
	}
}
