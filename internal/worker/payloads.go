package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/queue"
	"github.com/solatis/oasconform/internal/rules"
	"github.com/solatis/oasconform/internal/schema"
	"github.com/solatis/oasconform/internal/types"
)

// PayloadUpdater persists payload state transitions.
type PayloadUpdater interface {
	Update(ctx context.Context, id types.PayloadID, upd types.PayloadUpdate) error
}

// PayloadWorker validates queued payloads against their OpenAPI response
// schema and records the outcome.
type PayloadWorker struct {
	payloads PayloadUpdater
	resolver *schema.Resolver
	engine   *rules.Engine
	ruleSet  []types.Rule
	logger   zerolog.Logger
}

// PayloadOption configures a PayloadWorker.
type PayloadOption func(*PayloadWorker)

// WithRules enables the business-rule stage: after schema validation the
// payload is evaluated against ruleSet and the results stored alongside.
func WithRules(engine *rules.Engine, ruleSet []types.Rule) PayloadOption {
	return func(w *PayloadWorker) {
		w.engine = engine
		w.ruleSet = ruleSet
	}
}

// NewPayloadWorker creates a payload worker.
func NewPayloadWorker(payloads PayloadUpdater, resolver *schema.Resolver, logger zerolog.Logger, opts ...PayloadOption) *PayloadWorker {
	w := &PayloadWorker{
		payloads: payloads,
		resolver: resolver,
		logger:   logger.With().Str("component", "payload_worker").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process implements Processor. The item carries the full payload record.
func (w *PayloadWorker) Process(ctx context.Context, item *queue.Item) string {
	var job types.PayloadRecord
	if err := item.Decode(&job); err != nil {
		w.logger.Error().Err(err).Str("item_id", item.ID).Msg("Discarding undecodable payload item")
		return "invalid"
	}
	status, err := w.ProcessPayload(ctx, job)
	if err != nil {
		w.logger.Error().Err(err).Str("payload_id", string(job.ID)).Msg("Failed to record payload outcome")
	}
	return string(status)
}

// ProcessPayload drives one payload through
// NOT_STARTED -> STARTED -> FINISHED | ERROR_SCHEMA | ERROR and returns the
// final status. The error is non-nil only when a store write failed.
func (w *PayloadWorker) ProcessPayload(ctx context.Context, job types.PayloadRecord) (types.PayloadStatus, error) {
	logger := w.logger.With().Str("payload_id", string(job.ID)).Logger()

	if err := w.payloads.Update(ctx, job.ID, types.PayloadUpdate{Status: types.PayloadStarted}); err != nil {
		return types.PayloadStarted, err
	}

	info, err := w.resolve(ctx, job)
	if err != nil {
		logger.Debug().Err(err).Msg("Schema resolution failed")
		return w.fail(ctx, job.ID, nil, err.Error())
	}
	if info == nil {
		return w.fail(ctx, job.ID, nil, "Error getting schema")
	}
	oasInfo := info.OASInfo()

	start := time.Now()
	result, err := w.resolver.Validator().ValidatePayload(info.SchemaID, job.ResponsePayload)
	elapsed := time.Since(start).Nanoseconds()
	if err != nil {
		logger.Debug().Err(err).Msg("Payload could not be validated")
		return w.fail(ctx, job.ID, oasInfo, err.Error())
	}

	upd := types.PayloadUpdate{
		Status:          types.PayloadFinished,
		OASInfo:         oasInfo,
		TestElapsedTime: &elapsed,
	}
	if !result.Valid {
		upd.Status = types.PayloadErrorSchema
		upd.Log = result.Errors
	}
	if w.engine != nil && len(w.ruleSet) > 0 {
		ruleResults, err := w.engine.EvaluateJSON(job.ResponsePayload, w.ruleSet)
		if err != nil {
			logger.Warn().Err(err).Msg("Skipping business rules")
		}
		upd.RuleResults = ruleResults
	}

	if err := w.payloads.Update(ctx, job.ID, upd); err != nil {
		return upd.Status, err
	}
	logger.Debug().Str("status", string(upd.Status)).Int64("elapsed_ns", elapsed).Msg("Payload tested")
	return upd.Status, nil
}

func (w *PayloadWorker) resolve(ctx context.Context, job types.PayloadRecord) (*schema.SchemaInfo, error) {
	if job.RequestPath != "" {
		return w.resolver.GetSchema(ctx, job.OASURL, job.RequestPath, job.RequestOperation, job.ResponseCode, job.RequestContentType)
	}
	return w.resolver.GetSchemaForURL(ctx, job.OASURL, job.RequestURL, job.RequestOperation, job.ResponseCode, job.RequestContentType)
}

func (w *PayloadWorker) fail(ctx context.Context, id types.PayloadID, oasInfo *types.OASInfo, detail string) (types.PayloadStatus, error) {
	err := w.payloads.Update(ctx, id, types.PayloadUpdate{
		Status:       types.PayloadError,
		StatusDetail: &detail,
		OASInfo:      oasInfo,
	})
	return types.PayloadError, err
}
