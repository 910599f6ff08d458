// Package grpc runs the gRPC health endpoint used by orchestrators to probe
// the accounts server.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/accounts/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported next to the overall status.
const ServiceName = "accounts"

const defaultCheckInterval = 10 * time.Second

// HealthServer reports SERVING while check succeeds.
type HealthServer struct {
	address  string
	logger   logging.Logger
	check    func(ctx context.Context) error
	interval time.Duration
	health   *health.Server
}

func NewHealthServer(a string, l logging.Logger, check func(ctx context.Context) error, interval time.Duration) *HealthServer {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &HealthServer{
		address:  a,
		logger:   l.With("module", "grpc_health"),
		check:    check,
		interval: interval,
		health:   health.NewServer(),
	}
}

// refresh runs the dependency check once and publishes the result.
func (s *HealthServer) refresh(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		cctx, cancel := context.WithTimeout(ctx, s.interval)
		err := s.check(cctx)
		cancel()
		if err != nil {
			s.logger.Warn(ctx, "health check failed", "error", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

func (s *HealthServer) watch(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.refresh(ctx)
		}
	}
}

func (s *HealthServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *HealthServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor))
	healthpb.RegisterHealthServer(srv, s.health)

	s.refresh(ctx)
	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC health server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC health server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
