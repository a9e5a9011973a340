package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/core/config"
	"github.com/solatis/oasconform/internal/core/db"
	"github.com/solatis/oasconform/internal/metrics"
	"github.com/solatis/oasconform/internal/queue"
	"github.com/solatis/oasconform/internal/store"
)

// deps are the components shared by the worker and serve commands.
type deps struct {
	database     *sqlx.DB
	payloads     *store.Payloads
	reports      *store.Reports
	payloadQueue *queue.Queue
	reportQueue  *queue.Queue
	registry     *prometheus.Registry
	metrics      metrics.Recorder
}

// openDeps connects to the database, refusing to run on an unmigrated schema.
func openDeps(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*deps, error) {
	database, queries, err := db.Connect(ctx, cfg.DB.URL, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	if pending := db.Pending(statuses); len(pending) > 0 {
		database.Close()
		return nil, fmt.Errorf("migrations %s not applied - run 'oasconform migrate' first", strings.Join(pending, ", "))
	}

	payloadQueue, err := queue.New(queries, cfg.Worker.PayloadQueue, logger)
	if err != nil {
		database.Close()
		return nil, err
	}
	reportQueue, err := queue.New(queries, cfg.Worker.ReportQueue, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &deps{
		database:     database,
		payloads:     store.NewPayloads(queries),
		reports:      store.NewReports(queries),
		payloadQueue: payloadQueue,
		reportQueue:  reportQueue,
		registry:     registry,
		metrics:      metrics.Prometheus(registry),
	}, nil
}

func (d *deps) ping(ctx context.Context) error {
	return d.database.PingContext(ctx)
}

func (d *deps) Close() error {
	return d.database.Close()
}

// shutdownAfter waits for ctx to end, then runs stop with a bounded context.
func shutdownAfter(ctx context.Context, timeout time.Duration, stop func(context.Context) error) error {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return stop(shutdownCtx)
}

// ignoreCanceled treats cancellation as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
