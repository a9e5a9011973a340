package worker

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/rules"
	"github.com/solatis/oasconform/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessPayload_Finished(t *testing.T) {
	e := newEnv(t)
	rec := e.createPayload(t, types.PayloadRecord{
		RequestPath:     "/orders/{orderId}",
		ResponsePayload: raw(`{"id": "o-1", "total": 12.5}`),
	})

	w := NewPayloadWorker(e.payloads, e.resolver, zerolog.Nop())
	status, err := w.ProcessPayload(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, types.PayloadFinished, status)

	got := e.getPayload(t, rec.ID)
	assert.Equal(t, types.PayloadFinished, got.Status)
	assert.Empty(t, got.StatusDetail)
	assert.Empty(t, got.Log)
	assert.GreaterOrEqual(t, got.TestElapsedTime, int64(0))
	require.NotNil(t, got.TestDate)
	assert.Equal(t, epoch, got.TestDate.UTC())

	require.NotNil(t, got.OASInfo)
	assert.Equal(t, types.OASInfo{
		SchemaID:        "testdata/orders.yaml|/orders/{orderId}|GET|200|application/json",
		OASAPIName:      "Orders 2.1.0",
		OASPath:         "/orders/{orderId}",
		OASOperation:    "GET",
		OASResponseCode: "200",
		OASContentType:  "application/json",
	}, *got.OASInfo)
}

func TestProcessPayload_ErrorSchema(t *testing.T) {
	e := newEnv(t)
	rec := e.createPayload(t, types.PayloadRecord{
		RequestPath:     "/orders",
		ResponsePayload: raw(`[{"id": 1, "total": 3}, {"id": 2, "total": -1}]`),
	})

	w := NewPayloadWorker(e.payloads, e.resolver, zerolog.Nop())
	status, err := w.ProcessPayload(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, types.PayloadErrorSchema, status)

	got := e.getPayload(t, rec.ID)
	assert.Equal(t, types.PayloadErrorSchema, got.Status)
	require.NotNil(t, got.OASInfo)
	assert.Equal(t, "/orders", got.OASInfo.OASPath)
	require.Len(t, got.Log, 2)

	byKeyword := map[string]types.ValidationErrorGroup{}
	for _, g := range got.Log {
		byKeyword[g.Keyword] = g
	}
	assert.Equal(t, 2, byKeyword["type"].Count)
	assert.Equal(t, "/[]/id", byKeyword["type"].GenInstancePath)
	assert.Equal(t, 1, byKeyword["minimum"].Count)
	assert.Equal(t, "/1/total", byKeyword["minimum"].InstancePathExample)
}

func TestProcessPayload_ResolvedFromURL(t *testing.T) {
	e := newEnv(t)
	rec := e.createPayload(t, types.PayloadRecord{
		RequestURL:      "https://api.example.com/v2/orders/o-9?expand=lines",
		ResponsePayload: raw(`{"id": "o-9", "total": 0, "lines": [{"sku": "A1"}]}`),
	})

	w := NewPayloadWorker(e.payloads, e.resolver, zerolog.Nop())
	status, err := w.ProcessPayload(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, types.PayloadFinished, status)

	got := e.getPayload(t, rec.ID)
	require.NotNil(t, got.OASInfo)
	assert.Equal(t, "/orders/{orderId}", got.OASInfo.OASPath)
}

func TestProcessPayload_ResolutionErrors(t *testing.T) {
	tests := []struct {
		name   string
		rec    types.PayloadRecord
		detail string
	}{
		{
			name:   "unknown path",
			rec:    types.PayloadRecord{RequestPath: "/invoices"},
			detail: "Path '/invoices' not found in the specification",
		},
		{
			name:   "unknown operation",
			rec:    types.PayloadRecord{RequestPath: "/orders", RequestOperation: "DELETE"},
			detail: "Operation '/orders/DELETE' not found in the specification",
		},
		{
			name:   "unmatched url",
			rec:    types.PayloadRecord{RequestURL: "https://api.example.com/customers/7"},
			detail: "Couldn't find url's path in schema",
		},
		{
			name:   "missing spec",
			rec:    types.PayloadRecord{OASURL: "testdata/missing.yaml", RequestPath: "/orders"},
			detail: "[error validating API Spec]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			tt.rec.ResponsePayload = raw(`{"id": "x", "total": 1}`)
			rec := e.createPayload(t, tt.rec)

			w := NewPayloadWorker(e.payloads, e.resolver, zerolog.Nop())
			status, err := w.ProcessPayload(context.Background(), rec)
			require.NoError(t, err)
			assert.Equal(t, types.PayloadError, status)

			got := e.getPayload(t, rec.ID)
			assert.Equal(t, types.PayloadError, got.Status)
			assert.Contains(t, got.StatusDetail, tt.detail)
			assert.Nil(t, got.OASInfo)
			assert.Empty(t, got.Log)
		})
	}
}

func TestProcessPayload_ProcessingErrorKeepsOASInfo(t *testing.T) {
	e := newEnv(t)
	rec := e.createPayload(t, types.PayloadRecord{RequestPath: "/orders"})

	w := NewPayloadWorker(e.payloads, e.resolver, zerolog.Nop())
	status, err := w.ProcessPayload(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, types.PayloadError, status)

	got := e.getPayload(t, rec.ID)
	assert.Equal(t, types.PayloadError, got.Status)
	assert.NotEmpty(t, got.StatusDetail)
	require.NotNil(t, got.OASInfo)
	assert.Equal(t, "/orders", got.OASInfo.OASPath)
}

func TestProcessPayload_RuleStage(t *testing.T) {
	e := newEnv(t)
	rec := e.createPayload(t, types.PayloadRecord{
		RequestPath:     "/orders/{orderId}",
		ResponsePayload: raw(`{"id": "o-2", "total": 250}`),
	})
	ruleSet := []types.Rule{
		{
			ID:          "large-order",
			Type:        "warning",
			Description: "order total above 100",
			Conditions:  []types.Condition{{Value: "total", Operator: types.OpGt, ComparisonValue: 100}},
		},
		{
			ID:          "no-lines",
			Type:        "info",
			Description: "order has lines",
			Conditions:  []types.Condition{{Value: "lines", Operator: types.OpExists}},
		},
	}

	w := NewPayloadWorker(e.payloads, e.resolver, zerolog.Nop(), WithRules(rules.NewEngine(zerolog.Nop()), ruleSet))
	status, err := w.ProcessPayload(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, types.PayloadFinished, status)

	got := e.getPayload(t, rec.ID)
	require.Len(t, got.RuleResults, 1)
	assert.Equal(t, "large-order", got.RuleResults[0].ID)
	assert.Equal(t, types.RuleKeyword, got.RuleResults[0].Keyword)
}

func TestProcessPayload_MissingRecord(t *testing.T) {
	e := newEnv(t)
	w := NewPayloadWorker(e.payloads, e.resolver, zerolog.Nop())

	_, err := w.ProcessPayload(context.Background(), types.PayloadRecord{ID: types.NewPayloadID()})
	assert.ErrorIs(t, err, types.ErrNotFound)
}
