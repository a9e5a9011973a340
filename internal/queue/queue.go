// Package queue implements a delayed work queue on the shared database.
//
// Several logical queues share one table, partitioned by type. Delivery is
// at most once: Receive claims and deletes the earliest due item in a single
// statement, so concurrent receivers in any number of processes never see
// the same item. There is no visibility timeout and no redelivery; an item
// whose receiver crashes is lost.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/core/db"
	"github.com/solatis/oasconform/internal/types"
)

// Item is one unit of deferred work.
type Item struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Proc time.Time       `json:"proc"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the item's data into v.
func (i *Item) Decode(v any) error {
	return json.Unmarshal(i.Data, v)
}

type itemRow struct {
	ID   string `db:"item_id"`
	Type string `db:"queue_type"`
	Proc int64  `db:"proc"`
	Data string `db:"data"`
}

func (r itemRow) item() *Item {
	return &Item{
		ID:   r.ID,
		Type: r.Type,
		Proc: time.Unix(0, r.Proc).UTC(),
		Data: json.RawMessage(r.Data),
	}
}

// Queue is a handle on one logical queue.
type Queue struct {
	queries    *db.Queries
	queueType  string
	clock      types.Clock
	logger     zerolog.Logger
	claimQuery string
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the clock used for due times.
func WithClock(clock types.Clock) Option {
	return func(q *Queue) {
		q.clock = clock
	}
}

// New returns a handle on the queue named queueType.
func New(queries *db.Queries, queueType string, logger zerolog.Logger, opts ...Option) (*Queue, error) {
	if queueType == "" {
		return nil, fmt.Errorf("queue type must not be empty")
	}

	q := &Queue{
		queries:    queries,
		queueType:  queueType,
		clock:      types.SystemClock{},
		logger:     logger.With().Str("component", "queue").Str("queue", queueType).Logger(),
		claimQuery: "claim-queue-item",
	}
	if queries.DriverName() == "postgres" {
		q.claimQuery = "claim-queue-item-postgres"
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Type returns the queue's partition name.
func (q *Queue) Type() string {
	return q.queueType
}

type sendOptions struct {
	delayFor   time.Duration
	delayUntil time.Time
}

// SendOption adjusts when a sent item becomes due.
type SendOption func(*sendOptions)

// DelayFor makes the item due d after now.
func DelayFor(d time.Duration) SendOption {
	return func(o *sendOptions) {
		o.delayFor = d
	}
}

// DelayUntil makes the item due at t.
func DelayUntil(t time.Time) SendOption {
	return func(o *sendOptions) {
		o.delayUntil = t
	}
}

// Send enqueues data, JSON-encoded, and returns the created item.
func (q *Queue) Send(ctx context.Context, data any, opts ...SendOption) (*Item, error) {
	var o sendOptions
	for _, opt := range opts {
		opt(&o)
	}

	proc := q.clock.Now()
	switch {
	case !o.delayUntil.IsZero():
		proc = o.delayUntil
	case o.delayFor > 0:
		proc = proc.Add(o.delayFor)
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode item: %v", types.ErrQueueIO, err)
	}

	row := itemRow{
		ID:   types.NewQueueItemID(),
		Type: q.queueType,
		Proc: proc.UnixNano(),
		Data: string(encoded),
	}
	if _, err := q.queries.Exec(ctx, "send-queue-item", row.ID, row.Type, row.Proc, row.Data); err != nil {
		q.logger.Error().Err(err).Msg("Queue send failed")
		return nil, fmt.Errorf("%w: failed to send item: %v", types.ErrQueueIO, err)
	}
	return row.item(), nil
}

// Receive claims and deletes the earliest due item. It returns nil, nil when
// nothing is due.
func (q *Queue) Receive(ctx context.Context) (*Item, error) {
	var row itemRow
	err := q.queries.Get(ctx, q.claimQuery, &row, q.queueType, q.clock.Now().UnixNano())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		q.logger.Error().Err(err).Msg("Queue receive failed")
		return nil, fmt.Errorf("%w: failed to receive item: %v", types.ErrQueueIO, err)
	}
	return row.item(), nil
}

// Remove deletes item if it is still queued and returns the number removed.
func (q *Queue) Remove(ctx context.Context, item *Item) (int64, error) {
	if item == nil || item.ID == "" {
		return 0, nil
	}
	res, err := q.queries.Exec(ctx, "delete-queue-item", item.ID, q.queueType)
	if err != nil {
		q.logger.Error().Err(err).Str("item_id", item.ID).Msg("Queue remove failed")
		return 0, fmt.Errorf("%w: failed to remove item: %v", types.ErrQueueIO, err)
	}
	return res.RowsAffected()
}

// Purge deletes every item of this queue, due or not.
func (q *Queue) Purge(ctx context.Context) (int64, error) {
	res, err := q.queries.Exec(ctx, "purge-queue", q.queueType)
	if err != nil {
		q.logger.Error().Err(err).Msg("Queue purge failed")
		return 0, fmt.Errorf("%w: failed to purge queue: %v", types.ErrQueueIO, err)
	}
	return res.RowsAffected()
}

// Count returns the number of queued items, due or not.
func (q *Queue) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := q.queries.Get(ctx, "count-queue", &n, q.queueType); err != nil {
		q.logger.Error().Err(err).Msg("Queue count failed")
		return 0, fmt.Errorf("%w: failed to count queue: %v", types.ErrQueueIO, err)
	}
	return n, nil
}
