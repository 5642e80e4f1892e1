// Package grpcserver runs the gRPC listener of the service.
//
// It serves the standard grpc.health.v1 protocol so that orchestrators and
// the Gateway can probe readiness. A watchdog keeps the reported status in
// line with the dependency checks.
package grpcserver

import (
	"context"
	"fmt"
	"net"
	"runtime/debug"
	"sort"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"jobmate/autoapply-service/internal/logger"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

const probeTimeout = 2 * time.Second

// Server wraps a grpc.Server with the health service registered.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	checks   map[string]Check
	interval time.Duration
	log      logger.Logger
}

// New builds the server. Every named check is also exposed as its own health
// service so a probe can ask about one dependency.
func New(checks map[string]Check, interval time.Duration, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNoOp()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	log = log.With(logger.Fields{"component": "grpc"})

	s := &Server{
		health:   health.NewServer(),
		checks:   checks,
		interval: interval,
		log:      log,
	}
	s.grpc = grpc.NewServer(grpc.ChainUnaryInterceptor(s.recoverUnary, s.logUnary))
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("grpc listening", logger.Fields{"addr": lis.Addr().String()})
	if err := s.grpc.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Stop drains in-flight RPCs, falling back to a hard stop when ctx expires.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
	s.log.Info("grpc stopped", nil)
}

// ─── Watchdog ────────────────────────────────────────────────────────────────

// Watch probes the checks every interval until ctx is cancelled. The first
// probe runs immediately.
func (s *Server) Watch(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.Probe(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Probe runs every check once and updates the served statuses. The overall
// service ("") is SERVING only when all checks pass.
func (s *Server) Probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	overall := healthpb.HealthCheckResponse_SERVING
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.checks[name](pctx)
		cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			overall = st
			s.log.Warn("dependency check failed", logger.Fields{"dependency": name, "error": err.Error()})
		}
		s.health.SetServingStatus(name, st)
	}
	s.health.SetServingStatus("", overall)
	return overall
}

// ─── Interceptors ────────────────────────────────────────────────────────────

func (s *Server) recoverUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("grpc handler panic", logger.Fields{
				"method": info.FullMethod, "panic": fmt.Sprint(r), "stack": string(debug.Stack()),
			})
			err = status.Error(codes.Internal, "internal error")
		}
	}()
	return next(ctx, req)
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := next(ctx, req)
	fields := logger.Fields{
		"method":      info.FullMethod,
		"code":        status.Code(err).String(),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		s.log.Warn("grpc call failed", fields)
		return resp, err
	}
	s.log.Debug("grpc call", fields)
	return resp, nil
}
