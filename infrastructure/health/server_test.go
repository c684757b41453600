package health

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
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

func TestServer_Reports_Serving_Status(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	// Given a health server listening locally
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)
	server := NewServer(log)
	go func() { _ = server.Serve(listener) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	req.NoError(err)
	t.Cleanup(func() { _ = conn.Close() })
	client := grpc_health_v1.NewHealthClient(conn)

	check := func(service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		response, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
		req.NoError(err)
		return response.GetStatus()
	}

	// Then it starts as not serving
	req.Equal(grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(""))

	// When the bus subscription is up
	server.SetServing(true)

	// Then both services are serving
	req.Equal(grpc_health_v1.HealthCheckResponse_SERVING, check(""))
	req.Equal(grpc_health_v1.HealthCheckResponse_SERVING, check(ServiceName))

	// When it goes down again
	server.SetServing(false)
	req.Equal(grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(ServiceName))
}
