package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/solatis/oasconform/internal/core/db"
	"github.com/solatis/oasconform/internal/types"
)

type reportRow struct {
	ID               string         `db:"report_id"`
	Status           string         `db:"status"`
	StatusDetail     string         `db:"status_detail"`
	GroupedByField   string         `db:"grouped_by_field"`
	GroupedByValue   string         `db:"grouped_by_value"`
	Period           string         `db:"period"`
	ShowErrorSource  bool           `db:"show_error_source"`
	ConsolidatedList sql.NullString `db:"consolidated_list"`
	CreatedAt        string         `db:"created_at"`
}

func (r *reportRow) record() (*types.ReportRecord, error) {
	rec := &types.ReportRecord{
		ID:              types.ReportID(r.ID),
		Status:          types.ReportStatus(r.Status),
		StatusDetail:    r.StatusDetail,
		GroupedByField:  r.GroupedByField,
		GroupedByValue:  r.GroupedByValue,
		Period:          r.Period,
		ShowErrorSource: r.ShowErrorSource,
		CreatedAt:       parseTime(r.CreatedAt),
	}
	if err := decodeJSON(r.ConsolidatedList, &rec.ConsolidatedList); err != nil {
		return nil, err
	}
	return rec, nil
}

// Reports persists report records.
type Reports struct {
	queries *db.Queries
	opts    options
}

// NewReports creates a report store.
func NewReports(queries *db.Queries, opts ...Option) *Reports {
	return &Reports{queries: queries, opts: buildOptions(opts)}
}

// Create inserts rec, filling in ID, status and creation time when unset.
func (s *Reports) Create(ctx context.Context, rec *types.ReportRecord) error {
	if rec.ID == "" {
		rec.ID = types.NewReportID()
	}
	if rec.Status == "" {
		rec.Status = types.ReportNotStarted
	}
	rec.CreatedAt = s.opts.clock.Now().UTC()

	list, err := encodeJSON(rec.ConsolidatedList)
	if err != nil {
		return err
	}

	if _, err := s.queries.Exec(ctx, "create-report",
		string(rec.ID), string(rec.Status), rec.StatusDetail, rec.GroupedByField,
		rec.GroupedByValue, rec.Period, rec.ShowErrorSource, list, formatTime(rec.CreatedAt),
	); err != nil {
		return fmt.Errorf("%w: failed to create report: %w", types.ErrStoreIO, err)
	}
	return nil
}

// Get returns the report with id, or ErrNotFound.
func (s *Reports) Get(ctx context.Context, id types.ReportID) (*types.ReportRecord, error) {
	var row reportRow
	err := s.queries.Get(ctx, "get-report", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: report '%s'", types.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get report: %w", types.ErrStoreIO, err)
	}
	return row.record()
}

// Update applies the non-nil fields of upd.
func (s *Reports) Update(ctx context.Context, id types.ReportID, upd types.ReportUpdate) error {
	list, err := encodeJSON(upd.ConsolidatedList)
	if err != nil {
		return err
	}
	res, err := s.queries.Exec(ctx, "update-report",
		string(upd.Status), nullString(upd.StatusDetail), list, string(id),
	)
	if err != nil {
		return fmt.Errorf("%w: failed to update report: %w", types.ErrStoreIO, err)
	}
	return expectOne(res, "report", string(id))
}

// List returns reports matching filter, oldest first.
func (s *Reports) List(ctx context.Context, filter types.ReportFilter) ([]types.ReportRecord, error) {
	limit, offset := page(filter.Page, filter.PageSize)

	var rows []reportRow
	if err := s.queries.Select(ctx, "list-reports", &rows,
		filter.GroupedByField, filter.GroupedByField,
		filter.GroupedByValue, filter.GroupedByValue,
		filter.Period, filter.Period,
		string(filter.Status), string(filter.Status),
		limit, offset,
	); err != nil {
		return nil, fmt.Errorf("%w: failed to list reports: %w", types.ErrStoreIO, err)
	}

	out := make([]types.ReportRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Delete removes the report with id, or returns ErrNotFound.
func (s *Reports) Delete(ctx context.Context, id types.ReportID) error {
	res, err := s.queries.Exec(ctx, "delete-report", string(id))
	if err != nil {
		return fmt.Errorf("%w: failed to delete report: %w", types.ErrStoreIO, err)
	}
	return expectOne(res, "report", string(id))
}
