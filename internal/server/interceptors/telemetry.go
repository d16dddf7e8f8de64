package interceptors

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"session-auth/internal/telemetry"
)

// EventTypeGRPCRequest is the event type emitted for every intercepted RPC.
const EventTypeGRPCRequest = "grpc_request"

// TelemetryUnary returns a unary server interceptor that emits a telemetry event after each RPC.
// Best-effort: failures are logged and do not fail the RPC. If emitter is nil, the interceptor no-ops.
// skipMethods is the set of full method names to not emit (e.g. health checks).
func TelemetryUnary(emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		code := status.Code(err)
		outcome := telemetry.OutcomeSuccess
		if code != codes.OK {
			outcome = telemetry.OutcomeFailure
		}
		userID, _ := GetUserID(ctx)
		telemetry.EmitAsync(emitter, ctx, &telemetry.Event{
			Type:    EventTypeGRPCRequest,
			UserID:  userID,
			Device:  userAgent(ctx),
			Outcome: outcome,
			Source:  "grpc_interceptor",
			Metadata: map[string]string{
				"full_method": info.FullMethod,
				"status_code": code.String(),
				"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
				"client_ip":   ClientIP(ctx),
			},
		})
		return resp, err
	}
}
