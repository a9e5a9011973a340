// Package worker drains the payload and report queues.
//
// Each Poller claims at most one item per tick and processes it to completion
// before the next tick; processing is not interrupted by shutdown. Claimed
// items are deleted, so a failure leaves the record in its last written
// state and nothing is retried.
package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/metrics"
	"github.com/solatis/oasconform/internal/queue"
)

// DefaultInterval is the tick interval when none is configured.
const DefaultInterval = time.Second

// Processor handles one claimed item and returns the status label it ended
// in, used for metrics.
type Processor interface {
	Process(ctx context.Context, item *queue.Item) string
}

// Poller ticks on a fixed interval and hands each claimed item to a Processor.
type Poller struct {
	queue     *queue.Queue
	processor Processor
	interval  time.Duration
	logger    zerolog.Logger
	metrics   metrics.Recorder
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMetrics records processing outcomes on m.
func WithMetrics(m metrics.Recorder) PollerOption {
	return func(p *Poller) {
		p.metrics = m
	}
}

// NewPoller creates a poller for q.
func NewPoller(q *queue.Queue, processor Processor, logger zerolog.Logger, opts ...PollerOption) *Poller {
	p := &Poller{
		queue:     q,
		processor: processor,
		interval:  DefaultInterval,
		logger:    logger.With().Str("component", "poller").Str("queue", q.Type()).Logger(),
		metrics:   metrics.Noop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ticks until ctx is cancelled and returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("Poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick claims and processes at most one due item. It reports whether an
// item was processed.
func (p *Poller) Tick(ctx context.Context) bool {
	item, err := p.queue.Receive(ctx)
	if err != nil {
		p.metrics.ReceiveFailed(p.queue.Type())
		p.logger.Error().Err(err).Msg("Failed to receive item")
		return false
	}
	if item == nil {
		return false
	}

	start := time.Now()
	status := p.processor.Process(context.WithoutCancel(ctx), item)
	p.metrics.ObserveWork(p.queue.Type(), time.Since(start))
	p.metrics.ItemProcessed(p.queue.Type(), status)

	p.logger.Debug().Str("item_id", item.ID).Str("status", status).Msg("Processed item")
	return true
}
