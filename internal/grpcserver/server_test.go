package grpcserver_test

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"jobmate/autoapply-service/internal/grpcserver"
	"jobmate/autoapply-service/internal/logger"
)

func dial(t *testing.T, srv *grpcserver.Server) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestProbe_ReflectsChecks(t *testing.T) {
	var redisDown atomic.Bool
	checks := map[string]grpcserver.Check{
		"postgres": func(context.Context) error { return nil },
		"redis": func(context.Context) error {
			if redisDown.Load() {
				return errors.New("connection refused")
			}
			return nil
		},
	}
	srv := grpcserver.New(checks, time.Hour, logger.NewTest(t))
	client := dial(t, srv)
	ctx := context.Background()

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, srv.Probe(ctx))
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	redisDown.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, srv.Probe(ctx))

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "postgres"})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "elasticsearch"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestWatch_ProbesUntilCancelled(t *testing.T) {
	var calls atomic.Int32
	checks := map[string]grpcserver.Check{
		"postgres": func(context.Context) error { calls.Add(1); return nil },
	}
	srv := grpcserver.New(checks, 10*time.Millisecond, logger.NewTest(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Watch(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watch did not return after cancel")
	}
}
