package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vogiaan1904/clinic-queueboard/internal/models"
	pkgGrpc "github.com/vogiaan1904/clinic-queueboard/pkg/grpc"
	"github.com/vogiaan1904/clinic-queueboard/pkg/logger"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServiceTracksConnection(t *testing.T) {
	lnr, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	hs := NewHealthService(logger.InitializeTestZapLogger())
	gRpcSrv := grpc.NewServer()
	hs.Register(gRpcSrv)
	go gRpcSrv.Serve(lnr)
	defer gRpcSrv.Stop()

	cli, closeCli, err := pkgGrpc.NewHealthClient(lnr.Addr().String())
	require.NoError(t, err)
	defer closeCli()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, err := cli.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.Status
	}

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(BoardServiceName))

	hs.OnConnection(models.ConnectionState{State: models.ChannelOpen})
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(BoardServiceName))

	hs.OnConnection(models.ConnectionState{State: models.ChannelReconnecting, Attempt: 1})
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(BoardServiceName))

	hs.Shutdown()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""))
}
