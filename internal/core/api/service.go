// Package api provides the ingestion operations of the oasconform
// conformance API and their gRPC binding.
package api

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/core/config"
	"github.com/solatis/oasconform/internal/metrics"
	"github.com/solatis/oasconform/internal/queue"
	"github.com/solatis/oasconform/internal/store"
)

// Service implements the ingestion operations.
// Thin orchestration layer over the stores and the work queues.
type Service struct {
	payloads     *store.Payloads
	reports      *store.Reports
	payloadQueue *queue.Queue
	reportQueue  *queue.Queue
	cfg          config.IngestConfig
	metrics      metrics.Recorder
	logger       zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records enqueued items on m.
func WithMetrics(m metrics.Recorder) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates the service with its dependencies.
func NewService(payloads *store.Payloads, reports *store.Reports, payloadQueue, reportQueue *queue.Queue, cfg config.IngestConfig, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if payloads == nil || reports == nil {
		return nil, fmt.Errorf("stores cannot be nil")
	}
	if payloadQueue == nil || reportQueue == nil {
		return nil, fmt.Errorf("queues cannot be nil")
	}
	if cfg.SyncWaitRetries <= 0 || cfg.SyncWaitInterval <= 0 {
		return nil, fmt.Errorf("sync wait retries and interval must be positive")
	}

	s := &Service{
		payloads:     payloads,
		reports:      reports,
		payloadQueue: payloadQueue,
		reportQueue:  reportQueue,
		cfg:          cfg,
		metrics:      metrics.Noop(),
		logger:       logger.With().Str("component", "api").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
