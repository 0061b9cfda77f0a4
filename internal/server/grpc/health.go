package grpcserver

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rzbill/courier/internal/brokerapi"
	logpkg "github.com/rzbill/courier/pkg/log"
)

const healthInterval = 5 * time.Second

// refreshHealth sets the serving status of the broker service and the
// server as a whole from the health check.
func (s *Server) refreshHealth(ctx context.Context) {
	st := healthpb.HealthCheckResponse_SERVING
	if s.check != nil {
		if err := s.check(ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			s.log.Warn("health check failed", logpkg.Err(err))
		}
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(brokerapi.ServiceName, st)
}

func (s *Server) watchHealth(ctx context.Context) {
	t := time.NewTicker(healthInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.refreshHealth(ctx)
		}
	}
}
