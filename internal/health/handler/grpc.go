package handler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultProbeInterval is how often Run re-evaluates readiness.
const DefaultProbeInterval = 10 * time.Second

// Pinger is used for readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used for readiness (e.g. the OPA link evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server reports readiness through the standard grpc.health.v1 service.
// services are the names whose status tracks readiness; "" (overall) is always included.
type Server struct {
	health   *health.Server
	pinger   Pinger
	policy   PolicyChecker
	services []string
}

// NewServer returns a new health server. pinger and policy may be nil; then the
// corresponding check is skipped.
func NewServer(pinger Pinger, policy PolicyChecker, services ...string) *Server {
	return &Server{
		health:   health.NewServer(),
		pinger:   pinger,
		policy:   policy,
		services: append([]string{""}, services...),
	}
}

// HealthServer returns the grpc.health.v1 implementation to register.
func (s *Server) HealthServer() healthpb.HealthServer {
	return s.health
}

// Check runs the database and policy checks and returns their joined errors.
func (s *Server) Check(ctx context.Context) error {
	var errs []error
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Probe runs Check once and updates the serving status of every tracked service.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.Check(ctx); err != nil {
		log.Warn().Err(err).Msg("health: readiness check failed")
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	for _, name := range s.services {
		s.health.SetServingStatus(name, st)
	}
	return st
}

// Run probes every interval until ctx is done, then marks all services NOT_SERVING.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	s.Probe(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-t.C:
			s.Probe(ctx)
		}
	}
}
