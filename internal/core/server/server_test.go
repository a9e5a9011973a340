package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/core/api"
	"github.com/solatis/oasconform/internal/core/auth"
	"github.com/solatis/oasconform/internal/core/config"
	"github.com/solatis/oasconform/internal/core/db/dbtest"
	"github.com/solatis/oasconform/internal/metrics"
	"github.com/solatis/oasconform/internal/queue"
	"github.com/solatis/oasconform/internal/store"
	"github.com/solatis/oasconform/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const testKey = "k-0123456789abcdef"

func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()
	queries := dbtest.New(t)
	payloadQueue, err := queue.New(queries, "payload", zerolog.Nop())
	require.NoError(t, err)
	reportQueue, err := queue.New(queries, "report", zerolog.Nop())
	require.NoError(t, err)

	svc, err := api.NewService(store.NewPayloads(queries), store.NewReports(queries), payloadQueue, reportQueue,
		config.IngestConfig{SyncWaitRetries: 1, SyncWaitInterval: time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	authenticator, err := auth.NewAuthenticator([]string{testKey}, zerolog.Nop())
	require.NoError(t, err)

	srv, err := NewGRPCServer("bufnet", api.NewHandler(svc), authenticator, zerolog.Nop())
	require.NoError(t, err)

	listener := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(listener) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func withKey(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, auth.MetadataKey, testKey)
}

func TestNewGRPCServer_RequiresDependencies(t *testing.T) {
	_, err := NewGRPCServer(":0", nil, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestGRPC_HealthWithoutKey(t *testing.T) {
	conn := startServer(t)

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}

func TestGRPC_RequiresKey(t *testing.T) {
	client := api.NewClient(startServer(t))

	err := client.Call(context.Background(), api.MethodGetPayload, map[string]string{"id": "x"}, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	ctx := metadata.AppendToOutgoingContext(context.Background(), auth.MetadataKey, "k-wrongwrongwrong")
	err = client.Call(ctx, api.MethodGetPayload, map[string]string{"id": "x"}, nil)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestGRPC_PayloadRoundTrip(t *testing.T) {
	client := api.NewClient(startServer(t))
	ctx := withKey(context.Background())

	req := map[string]any{
		"oasUrl":           "orders.yaml",
		"payloadSourceId":  "bank-a",
		"requestPath":      "/orders",
		"requestOperation": "GET",
		"responseCode":     "200",
		"responsePayload":  []any{map[string]any{"id": "o-1"}},
		"tags":             []string{"smoke"},
		"date":             "2026-03-02",
	}
	var added api.AddPayloadResult
	require.NoError(t, client.Call(ctx, api.MethodAddPayload, req, &added))
	require.NotEmpty(t, added.ID)
	assert.False(t, added.Sync)

	var got types.PayloadRecord
	require.NoError(t, client.Call(ctx, api.MethodGetPayload, map[string]any{"id": added.ID}, &got))
	assert.Equal(t, added.ID, got.ID)
	assert.Equal(t, types.PayloadNotStarted, got.Status)
	assert.Equal(t, "2026-03-02", got.Date)
	assert.Equal(t, []string{"smoke"}, got.Tags)

	var listed struct {
		Payloads []types.PayloadRecord `json:"payloads"`
	}
	require.NoError(t, client.Call(ctx, api.MethodListPayloads,
		map[string]any{"tags": []string{"smoke"}, "pageNumber": 1, "recordsPerPage": 10}, &listed))
	require.Len(t, listed.Payloads, 1)

	var reports struct {
		Reports []api.ReportParams `json:"reports"`
	}
	require.NoError(t, client.Call(ctx, api.MethodAddReports,
		map[string]any{"createReportsBy": "payloadSourceId", "createDailyReports": true}, &reports))
	require.Len(t, reports.Reports, 1)
	assert.Equal(t, "2026-03-02", reports.Reports[0].Period)

	var report types.ReportRecord
	require.NoError(t, client.Call(ctx, api.MethodGetReport, map[string]any{"id": reports.Reports[0].ReportID}, &report))
	assert.Equal(t, "bank-a", report.GroupedByValue)

	var deleted struct {
		Deleted int64 `json:"deleted"`
	}
	require.NoError(t, client.Call(ctx, api.MethodDeletePayloads, map[string]any{"date": "2026-03-02"}, &deleted))
	assert.Equal(t, int64(1), deleted.Deleted)

	err := client.Call(ctx, api.MethodGetPayload, map[string]any{"id": added.ID}, &got)
	assert.Equal(t, codes.NotFound, status.Code(err))

	err = client.Call(ctx, api.MethodAddPayload, map[string]any{"oasUrl": "orders.yaml"}, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestAdminRouter(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics.Prometheus(registry).ItemProcessed("payload", "FINISHED")

	var unhealthy atomic.Bool
	check := func(context.Context) error {
		if unhealthy.Load() {
			return errors.New("database unreachable")
		}
		return nil
	}
	srv := httptest.NewServer(NewAdminRouter(registry, check))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	unhealthy.Store(true)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "oasconform_worker_processed_total")

	resp, err = http.Post(srv.URL+"/healthz", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
