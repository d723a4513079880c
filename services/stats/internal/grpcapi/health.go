// Package grpcapi hosts the stats gRPC server: standard health checks and reflection.
package grpcapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check name of the statistics service.
const ServiceName = "streamd.stats.v1.StatsService"

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewServer builds a gRPC server exposing h and reflection.
func NewServer(h *health.Server, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, h)
	reflection.Register(srv)
	return srv
}

// HealthReporter mirrors store reachability into a health.Server.
type HealthReporter struct {
	Health   *health.Server
	Store    Pinger
	Interval time.Duration
	Log      *zap.Logger
}

// Run checks immediately, then every Interval until ctx is done, at which
// point every service is marked NOT_SERVING.
func (r *HealthReporter) Run(ctx context.Context) {
	interval := r.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	r.check(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Health.Shutdown()
			return
		case <-t.C:
			r.check(ctx)
		}
	}
}

func (r *HealthReporter) check(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st := healthpb.HealthCheckResponse_SERVING
	if err := r.Store.Ping(pctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		r.Log.Warn("health: store ping failed", zap.Error(err))
	}
	r.Health.SetServingStatus(ServiceName, st)
	r.Health.SetServingStatus("", st)
}
