package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/core/db"
	"github.com/solatis/oasconform/internal/core/db/dbtest"
	"github.com/solatis/oasconform/internal/queue"
	"github.com/solatis/oasconform/internal/schema"
	"github.com/solatis/oasconform/internal/store"
	"github.com/solatis/oasconform/internal/types"
	"github.com/stretchr/testify/require"
)

const ordersSpec = "testdata/orders.yaml"

var epoch = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// env wires a worker pipeline over one throwaway database.
type env struct {
	queries  *db.Queries
	clock    *dbtest.Clock
	payloads *store.Payloads
	reports  *store.Reports
	resolver *schema.Resolver
}

func newEnv(t *testing.T) *env {
	t.Helper()
	queries := dbtest.New(t)
	clock := dbtest.NewClock(epoch)
	return &env{
		queries:  queries,
		clock:    clock,
		payloads: store.NewPayloads(queries, store.WithClock(clock)),
		reports:  store.NewReports(queries, store.WithClock(clock)),
		resolver: schema.NewResolver(zerolog.Nop(), schema.NewValidator()),
	}
}

func (e *env) queue(t *testing.T, name string) *queue.Queue {
	t.Helper()
	q, err := queue.New(e.queries, name, zerolog.Nop(), queue.WithClock(e.clock))
	require.NoError(t, err)
	return q
}

// createPayload persists rec as NOT_STARTED and returns the stored record.
func (e *env) createPayload(t *testing.T, rec types.PayloadRecord) types.PayloadRecord {
	t.Helper()
	if rec.OASURL == "" {
		rec.OASURL = ordersSpec
	}
	if rec.RequestOperation == "" {
		rec.RequestOperation = "GET"
	}
	if rec.ResponseCode == "" {
		rec.ResponseCode = "200"
	}
	if rec.RequestContentType == "" {
		rec.RequestContentType = "application/json"
	}
	require.NoError(t, e.payloads.Create(context.Background(), &rec))
	return rec
}

func (e *env) getPayload(t *testing.T, id types.PayloadID) *types.PayloadRecord {
	t.Helper()
	rec, err := e.payloads.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func raw(s string) json.RawMessage {
	return json.RawMessage(s)
}

// fixedSampler always or never replaces.
type fixedSampler bool

func (s fixedSampler) Replace() bool { return bool(s) }
