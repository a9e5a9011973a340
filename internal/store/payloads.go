package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/solatis/oasconform/internal/core/db"
	"github.com/solatis/oasconform/internal/types"
)

type payloadRow struct {
	ID                 string         `db:"payload_id"`
	Status             string         `db:"status"`
	StatusDetail       string         `db:"status_detail"`
	OASURL             string         `db:"oas_url"`
	PayloadSourceID    string         `db:"payload_source_id"`
	InteractionID      string         `db:"interaction_id"`
	RequestURL         string         `db:"request_url"`
	RequestPath        string         `db:"request_path"`
	RequestOperation   string         `db:"request_operation"`
	RequestContentType string         `db:"request_content_type"`
	ResponseCode       string         `db:"response_code"`
	ResponsePayload    sql.NullString `db:"response_payload"`
	OASInfo            sql.NullString `db:"oas_info"`
	TestElapsedTime    int64          `db:"test_elapsed_time"`
	ValidationLog      sql.NullString `db:"validation_log"`
	RuleResults        sql.NullString `db:"rule_results"`
	Tags               sql.NullString `db:"tags"`
	Date               string         `db:"payload_date"`
	TestDate           sql.NullString `db:"test_date"`
	CreatedAt          string         `db:"created_at"`
}

func (r *payloadRow) record() (*types.PayloadRecord, error) {
	rec := &types.PayloadRecord{
		ID:                 types.PayloadID(r.ID),
		Status:             types.PayloadStatus(r.Status),
		StatusDetail:       r.StatusDetail,
		OASURL:             r.OASURL,
		PayloadSourceID:    r.PayloadSourceID,
		InteractionID:      r.InteractionID,
		RequestURL:         r.RequestURL,
		RequestPath:        r.RequestPath,
		RequestOperation:   r.RequestOperation,
		RequestContentType: r.RequestContentType,
		ResponseCode:       r.ResponseCode,
		TestElapsedTime:    r.TestElapsedTime,
		Date:               r.Date,
		CreatedAt:          parseTime(r.CreatedAt),
	}
	if r.ResponsePayload.Valid {
		rec.ResponsePayload = []byte(r.ResponsePayload.String)
	}
	if r.TestDate.Valid {
		t := parseTime(r.TestDate.String)
		rec.TestDate = &t
	}
	if err := decodeJSON(r.OASInfo, &rec.OASInfo); err != nil {
		return nil, err
	}
	if err := decodeJSON(r.ValidationLog, &rec.Log); err != nil {
		return nil, err
	}
	if err := decodeJSON(r.RuleResults, &rec.RuleResults); err != nil {
		return nil, err
	}
	if err := decodeJSON(r.Tags, &rec.Tags); err != nil {
		return nil, err
	}
	return rec, nil
}

// Payloads persists payload records.
type Payloads struct {
	queries *db.Queries
	opts    options
}

// NewPayloads creates a payload store.
func NewPayloads(queries *db.Queries, opts ...Option) *Payloads {
	return &Payloads{queries: queries, opts: buildOptions(opts)}
}

// Create inserts rec, filling in ID, status, date and creation time when
// unset. rec is updated in place.
func (s *Payloads) Create(ctx context.Context, rec *types.PayloadRecord) error {
	now := s.opts.clock.Now().UTC()
	if rec.ID == "" {
		rec.ID = types.NewPayloadID()
	}
	if rec.Status == "" {
		rec.Status = types.PayloadNotStarted
	}
	if rec.Date == "" {
		rec.Date = now.Format(types.DateLayout)
	}
	rec.CreatedAt = now
	rec.Tags = dedupe(rec.Tags)

	oasInfo, err := encodeJSON(rec.OASInfo)
	if err != nil {
		return err
	}
	log, err := encodeJSON(rec.Log)
	if err != nil {
		return err
	}
	ruleResults, err := encodeJSON(rec.RuleResults)
	if err != nil {
		return err
	}
	tags, err := encodeJSON(rec.Tags)
	if err != nil {
		return err
	}
	var responsePayload sql.NullString
	if len(rec.ResponsePayload) > 0 {
		responsePayload = sql.NullString{String: string(rec.ResponsePayload), Valid: true}
	}
	var testDate sql.NullString
	if rec.TestDate != nil {
		testDate = sql.NullString{String: formatTime(*rec.TestDate), Valid: true}
	}

	err = s.queries.Tx(ctx, func(tx *db.Queries) error {
		if _, err := tx.Exec(ctx, "create-payload",
			string(rec.ID), string(rec.Status), rec.StatusDetail, rec.OASURL, rec.PayloadSourceID,
			rec.InteractionID, rec.RequestURL, rec.RequestPath, rec.RequestOperation,
			rec.RequestContentType, rec.ResponseCode, responsePayload, oasInfo,
			rec.TestElapsedTime, log, ruleResults, tags, rec.Date, testDate,
			formatTime(rec.CreatedAt),
		); err != nil {
			return err
		}
		for _, tag := range rec.Tags {
			if _, err := tx.Exec(ctx, "create-payload-tag", string(rec.ID), tag); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create payload: %w", types.ErrStoreIO, err)
	}
	return nil
}

// Get returns the payload with id, or ErrNotFound.
func (s *Payloads) Get(ctx context.Context, id types.PayloadID) (*types.PayloadRecord, error) {
	var row payloadRow
	err := s.queries.Get(ctx, "get-payload", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: payload '%s'", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get payload: %w", types.ErrStoreIO, err)
	}
	return row.record()
}

// Update applies the non-nil fields of upd and stamps the test date.
func (s *Payloads) Update(ctx context.Context, id types.PayloadID, upd types.PayloadUpdate) error {
	oasInfo, err := encodeJSON(upd.OASInfo)
	if err != nil {
		return err
	}
	log, err := encodeJSON(upd.Log)
	if err != nil {
		return err
	}
	ruleResults, err := encodeJSON(upd.RuleResults)
	if err != nil {
		return err
	}
	var elapsed sql.NullInt64
	if upd.TestElapsedTime != nil {
		elapsed = sql.NullInt64{Int64: *upd.TestElapsedTime, Valid: true}
	}
	testDate := s.opts.clock.Now()
	if upd.TestDate != nil {
		testDate = *upd.TestDate
	}

	res, err := s.queries.Exec(ctx, "update-payload",
		string(upd.Status), nullString(upd.StatusDetail), oasInfo, elapsed, log, ruleResults,
		formatTime(testDate), string(id),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update payload: %w", types.ErrStoreIO, err)
	}
	return expectOne(res, "payload", string(id))
}

// List returns payloads matching filter, oldest first.
func (s *Payloads) List(ctx context.Context, filter types.PayloadFilter) ([]types.PayloadRecord, error) {
	limit, offset := page(filter.Page, filter.PageSize)
	args := []interface{}{
		filter.PayloadSourceID, filter.PayloadSourceID,
		filter.OASURL, filter.OASURL,
		filter.StartDate, filter.StartDate,
		filter.EndDate, filter.EndDate,
		filter.InteractionID, filter.InteractionID,
		string(filter.Status), string(filter.Status),
	}

	var rows []payloadRow
	var err error
	if tags := dedupe(filter.Tags); len(tags) > 0 {
		args = append(args, tags, len(tags), limit, offset)
		err = s.queries.SelectIn(ctx, "list-payloads-tagged", &rows, args...)
	} else {
		args = append(args, limit, offset)
		err = s.queries.Select(ctx, "list-payloads", &rows, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list payloads: %w", types.ErrStoreIO, err)
	}

	out := make([]types.PayloadRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Delete removes the payload with id, or returns ErrNotFound.
func (s *Payloads) Delete(ctx context.Context, id types.PayloadID) error {
	var res sql.Result
	err := s.queries.Tx(ctx, func(tx *db.Queries) error {
		if _, err := tx.Exec(ctx, "delete-payload-tags", string(id)); err != nil {
			return err
		}
		var err error
		res, err = tx.Exec(ctx, "delete-payload", string(id))
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: failed to delete payload: %w", types.ErrStoreIO, err)
	}
	return expectOne(res, "payload", string(id))
}

// DeleteMatching removes payloads carrying every tag in tags and, when date
// is set, dated on that day. At least one criterion is required.
func (s *Payloads) DeleteMatching(ctx context.Context, tags []string, date string) (int64, error) {
	tags = dedupe(tags)
	if len(tags) == 0 && date == "" {
		return 0, fmt.Errorf("%w: tags or date required", types.ErrInvalidRequest)
	}

	var deleted int64
	err := s.queries.Tx(ctx, func(tx *db.Queries) error {
		var res sql.Result
		var err error
		if len(tags) > 0 {
			res, err = tx.ExecIn(ctx, "delete-payloads-tagged", date, date, tags, len(tags))
		} else {
			res, err = tx.Exec(ctx, "delete-payloads-by-date", date)
		}
		if err != nil {
			return err
		}
		if deleted, err = res.RowsAffected(); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, "delete-orphan-payload-tags")
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete payloads: %w", types.ErrStoreIO, err)
	}
	return deleted, nil
}

func expectOne(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrStoreIO, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s '%s'", types.ErrNotFound, kind, id)
	}
	return nil
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
