package grpc

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthServer_FollowsReports(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Given a running health server
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	server := NewHealthServer(log)
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		callCtx, callCancel := context.WithTimeout(ctx, time.Second)
		defer callCancel()
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: ServiceName})
		req.NoError(err)
		return resp.Status
	}

	// Then it is not serving until a healthy report arrives
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, check())
	server.Report(true)
	req.Equal(healthpb.HealthCheckResponse_SERVING, check())
	server.Report(false)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, check())

	// And cancelling the context stops it cleanly
	cancel()
	select {
	case err := <-done:
		req.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
