package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/core/config"
	"github.com/solatis/oasconform/internal/core/db/dbtest"
	"github.com/solatis/oasconform/internal/queue"
	"github.com/solatis/oasconform/internal/schema"
	"github.com/solatis/oasconform/internal/store"
	"github.com/solatis/oasconform/internal/types"
	"github.com/solatis/oasconform/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type fixture struct {
	svc          *Service
	payloads     *store.Payloads
	reports      *store.Reports
	payloadQueue *queue.Queue
	reportQueue  *queue.Queue
}

func newFixture(t *testing.T, cfg config.IngestConfig) *fixture {
	t.Helper()
	queries := dbtest.New(t)
	payloadQueue, err := queue.New(queries, "payload", zerolog.Nop())
	require.NoError(t, err)
	reportQueue, err := queue.New(queries, "report", zerolog.Nop())
	require.NoError(t, err)

	f := &fixture{
		payloads:     store.NewPayloads(queries),
		reports:      store.NewReports(queries),
		payloadQueue: payloadQueue,
		reportQueue:  reportQueue,
	}
	f.svc, err = NewService(f.payloads, f.reports, payloadQueue, reportQueue, cfg, zerolog.Nop())
	require.NoError(t, err)
	return f
}

func fastIngest() config.IngestConfig {
	return config.IngestConfig{SyncWaitRetries: 3, SyncWaitInterval: time.Millisecond}
}

func validRequest() AddPayloadRequest {
	return AddPayloadRequest{
		OASURL:             "testdata/orders.yaml",
		PayloadSourceID:    "bank-a",
		RequestPath:        "/orders/{orderId}",
		RequestOperation:   "GET",
		RequestContentType: "application/json",
		ResponseCode:       "200",
		ResponsePayload:    json.RawMessage(`{"id": "o-1", "total": 3}`),
		Tags:               []string{"nightly"},
	}
}

func TestNewService_RejectsBadConfig(t *testing.T) {
	f := newFixture(t, fastIngest())
	_, err := NewService(f.payloads, f.reports, f.payloadQueue, f.reportQueue, config.IngestConfig{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestAddPayload_Validation(t *testing.T) {
	f := newFixture(t, fastIngest())

	tests := []struct {
		name   string
		mutate func(*AddPayloadRequest)
		msg    string
	}{
		{"missing oasUrl", func(r *AddPayloadRequest) { r.OASURL = "" }, "oasUrl is required"},
		{"missing path and url", func(r *AddPayloadRequest) { r.RequestPath = "" }, "requestUrl or requestPath is required"},
		{"missing operation", func(r *AddPayloadRequest) { r.RequestOperation = "" }, "requestOperation is required"},
		{"missing code", func(r *AddPayloadRequest) { r.ResponseCode = "" }, "responseCode is required"},
		{"bad date", func(r *AddPayloadRequest) { r.Date = "02/03/2026" }, "date must be YYYY-MM-DD"},
		{"string payload", func(r *AddPayloadRequest) { r.ResponsePayload = json.RawMessage(`"text"`) }, "Payload should be a object or an array"},
		{"number payload", func(r *AddPayloadRequest) { r.ResponsePayload = json.RawMessage(`42`) }, "Payload should be a object or an array"},
		{"missing payload", func(r *AddPayloadRequest) { r.ResponsePayload = nil }, "Payload should be a object or an array"},
		{"broken payload", func(r *AddPayloadRequest) { r.ResponsePayload = json.RawMessage(`{"a":`) }, "Payload should be a object or an array"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := f.svc.AddPayload(context.Background(), req, false)
			require.ErrorIs(t, err, types.ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	count, err := f.payloadQueue.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAddPayload_DropsContentButQueuesIt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastIngest())

	res, err := f.svc.AddPayload(ctx, validRequest(), false)
	require.NoError(t, err)
	assert.False(t, res.Sync)
	require.NotNil(t, res.Record)
	assert.Equal(t, types.PayloadNotStarted, res.Record.Status)

	stored, err := f.svc.GetPayload(ctx, res.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.ResponsePayload)
	assert.Equal(t, []string{"nightly"}, stored.Tags)
	assert.NotEmpty(t, stored.Date)

	item, err := f.payloadQueue.Receive(ctx)
	require.NoError(t, err)
	require.NotNil(t, item)
	var job types.PayloadRecord
	require.NoError(t, item.Decode(&job))
	assert.Equal(t, res.ID, job.ID)
	assert.JSONEq(t, `{"id": "o-1", "total": 3}`, string(job.ResponsePayload))
}

func TestAddPayload_KeepsContent(t *testing.T) {
	ctx := context.Background()
	cfg := fastIngest()
	cfg.KeepPayloadContent = true
	f := newFixture(t, cfg)

	res, err := f.svc.AddPayload(ctx, validRequest(), false)
	require.NoError(t, err)

	stored, err := f.svc.GetPayload(ctx, res.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": "o-1", "total": 3}`, string(stored.ResponsePayload))
}

func TestAddPayload_SyncTimesOut(t *testing.T) {
	f := newFixture(t, fastIngest())

	res, err := f.svc.AddPayload(context.Background(), validRequest(), true)
	require.NoError(t, err)
	assert.False(t, res.Sync)
	require.NotNil(t, res.Record)
	assert.Equal(t, types.PayloadNotStarted, res.Record.Status)
}

func TestAddPayload_SyncWaitsForWorker(t *testing.T) {
	cfg := config.IngestConfig{SyncWaitRetries: 200, SyncWaitInterval: 10 * time.Millisecond}
	f := newFixture(t, cfg)

	resolver := schema.NewResolver(zerolog.Nop(), schema.NewValidator())
	pw := worker.NewPayloadWorker(f.payloads, resolver, zerolog.Nop())
	poller := worker.NewPoller(f.payloadQueue, pw, zerolog.Nop(), worker.WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = poller.Run(ctx) }()

	res, err := f.svc.AddPayload(context.Background(), validRequest(), true)
	require.NoError(t, err)
	assert.True(t, res.Sync)
	require.NotNil(t, res.Record)
	assert.Equal(t, types.PayloadFinished, res.Record.Status)
	require.NotNil(t, res.Record.OASInfo)
	assert.Equal(t, "/orders/{orderId}", res.Record.OASInfo.OASPath)
}

func TestListPayloads_Detail(t *testing.T) {
	ctx := context.Background()
	cfg := fastIngest()
	cfg.KeepPayloadContent = true
	f := newFixture(t, cfg)

	_, err := f.svc.AddPayload(ctx, validRequest(), false)
	require.NoError(t, err)

	brief, err := f.svc.ListPayloads(ctx, ListPayloadsRequest{PayloadSourceID: "bank-a"})
	require.NoError(t, err)
	require.Len(t, brief, 1)
	assert.Empty(t, brief[0].ResponsePayload)

	full, err := f.svc.ListPayloads(ctx, ListPayloadsRequest{PayloadSourceID: "bank-a", Detailed: true})
	require.NoError(t, err)
	require.Len(t, full, 1)
	assert.NotEmpty(t, full[0].ResponsePayload)

	none, err := f.svc.ListPayloads(ctx, ListPayloadsRequest{PayloadSourceID: "bank-a", Date: "1999-01-01"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeletePayloads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastIngest())

	res, err := f.svc.AddPayload(ctx, validRequest(), false)
	require.NoError(t, err)
	other := validRequest()
	other.Tags = []string{"adhoc"}
	_, err = f.svc.AddPayload(ctx, other, false)
	require.NoError(t, err)

	_, err = f.svc.DeletePayloads(ctx, nil, "")
	assert.ErrorIs(t, err, types.ErrInvalidRequest)

	n, err := f.svc.DeletePayloads(ctx, []string{"nightly"}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.GetPayload(ctx, res.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeletePayload(ctx, res.ID), types.ErrNotFound)
}

func seedPayload(t *testing.T, f *fixture, source, oasURL, date string) {
	t.Helper()
	rec := types.PayloadRecord{
		OASURL: oasURL, PayloadSourceID: source, RequestPath: "/orders",
		RequestOperation: "GET", ResponseCode: "200", Date: date,
	}
	require.NoError(t, f.payloads.Create(context.Background(), &rec))
}

func TestAddReports(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastIngest())
	seedPayload(t, f, "bank-a", "orders.yaml", "2026-03-01")
	seedPayload(t, f, "bank-a", "orders.yaml", "2026-03-01")
	seedPayload(t, f, "bank-a", "orders.yaml", "2026-03-02")
	seedPayload(t, f, "bank-b", "orders.yaml", "2026-03-02")
	seedPayload(t, f, "bank-b", "refunds.yaml", "2026-03-09")

	t.Run("daily by source", func(t *testing.T) {
		params, err := f.svc.AddReports(ctx, AddReportsRequest{
			CreateReportsBy:    types.AggregatePayloadSourceID,
			CreateDailyReports: true,
			Filters:            ReportFilters{StartDate: "2026-03-01", EndDate: "2026-03-02"},
		})
		require.NoError(t, err)
		require.Len(t, params, 3)
		assert.Equal(t, "2026-03-01", params[0].Period)
		for _, p := range params {
			assert.NotEmpty(t, p.ReportID)
			assert.Empty(t, p.Error)
			assert.Equal(t, types.AggregatePayloadSourceID, p.GroupedByField)
		}
	})

	t.Run("whole period by spec", func(t *testing.T) {
		params, err := f.svc.AddReports(ctx, AddReportsRequest{
			CreateReportsBy: types.AggregateOASURL,
			ShowErrorSource: true,
			Filters:         ReportFilters{PayloadSourceID: "bank-b"},
		})
		require.NoError(t, err)
		require.Len(t, params, 2)
		assert.Equal(t, ":", params[0].Period)

		rec, err := f.svc.GetReport(ctx, params[0].ReportID)
		require.NoError(t, err)
		assert.Equal(t, types.ReportNotStarted, rec.Status)
		assert.True(t, rec.ShowErrorSource)
		assert.Equal(t, "orders.yaml", rec.GroupedByValue)
	})

	count, err := f.reportQueue.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	listed, err := f.svc.ListReports(ctx, ListReportsRequest{GroupedByField: types.AggregateOASURL})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestAddReports_Validation(t *testing.T) {
	f := newFixture(t, fastIngest())
	seedPayload(t, f, "bank-a", "orders.yaml", "2026-03-01")

	tests := []struct {
		name string
		req  AddReportsRequest
		msg  string
	}{
		{"bad field", AddReportsRequest{CreateReportsBy: "status"}, "createReportsBy must be"},
		{"reversed dates", AddReportsRequest{CreateReportsBy: types.AggregateOASURL,
			Filters: ReportFilters{StartDate: "2026-03-05", EndDate: "2026-03-01"}}, "endDate must be equal to or greater than startDate"},
		{"bad date", AddReportsRequest{CreateReportsBy: types.AggregateOASURL,
			Filters: ReportFilters{StartDate: "yesterday"}}, "dates must be YYYY-MM-DD"},
		{"no payloads", AddReportsRequest{CreateReportsBy: types.AggregateOASURL,
			Filters: ReportFilters{PayloadSourceID: "nobody"}}, "No payloads found with this parameters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddReports(context.Background(), tt.req)
			require.ErrorIs(t, err, types.ErrInvalidRequest)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestDeleteReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, fastIngest())
	seedPayload(t, f, "bank-a", "orders.yaml", "2026-03-01")

	params, err := f.svc.AddReports(ctx, AddReportsRequest{CreateReportsBy: types.AggregateOASURL})
	require.NoError(t, err)
	require.Len(t, params, 1)

	require.NoError(t, f.svc.DeleteReport(ctx, params[0].ReportID))
	_, err = f.svc.GetReport(ctx, params[0].ReportID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteReport(ctx, ""), types.ErrInvalidRequest)
}

func TestHandler_StatusCodes(t *testing.T) {
	ctx := context.Background()
	h := NewHandler(newFixture(t, fastIngest()).svc)

	missing, err := structpb.NewStruct(map[string]any{"id": string(types.NewPayloadID())})
	require.NoError(t, err)
	_, err = h.GetPayload(ctx, missing)
	assert.Equal(t, codes.NotFound, status.Code(err))

	bad, err := structpb.NewStruct(map[string]any{"oasUrl": "x.yaml"})
	require.NoError(t, err)
	_, err = h.AddPayload(ctx, bad)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	wrongType, err := structpb.NewStruct(map[string]any{"tags": "not-a-list"})
	require.NoError(t, err)
	_, err = h.DeletePayloads(ctx, wrongType)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
