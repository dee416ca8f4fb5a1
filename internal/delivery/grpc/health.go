package grpc

import (
	"context"

	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// BoardServiceName is the health service name reporting push connectivity.
// The empty service name always reports the process itself.
const BoardServiceName = "queueboard.Board"

type HealthService struct {
	srv *health.Server
	l   logger.Logger
}

func NewHealthService(l logger.Logger) *HealthService {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(BoardServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &HealthService{srv: srv, l: l}
}

func (s *HealthService) Register(gRpcSrv *grpc.Server) {
	healthpb.RegisterHealthServer(gRpcSrv, s.srv)
}

// OnConnection maps the push channel state onto the board health status.
// Only an open channel counts as serving.
func (s *HealthService) OnConnection(state models.ConnectionState) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if state.State == models.ChannelOpen {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.srv.SetServingStatus(BoardServiceName, status)
	s.l.Debugf(context.Background(), "grpc.HealthService.OnConnection: %s attempt %d -> %s", state.State, state.Attempt, status)
}

// Shutdown marks every service NOT_SERVING so clients drain before the server stops.
func (s *HealthService) Shutdown() {
	s.srv.Shutdown()
}
