package api

import (
	"context"
	"time"

	"github.com/solatis/oasconform/internal/types"
)

// reportScanLimit bounds how many payloads AddReports groups.
const reportScanLimit = 10000

// AddReportsRequest asks for one report per aggregation value, optionally
// split per day.
type AddReportsRequest struct {
	CreateReportsBy    string        `json:"createReportsBy"`
	CreateDailyReports bool          `json:"createDailyReports"`
	ShowErrorSource    bool          `json:"showErrorSource"`
	Filters            ReportFilters `json:"filters"`
}

// ReportFilters narrow the payloads a report request covers.
type ReportFilters struct {
	PayloadSourceID string `json:"payloadSourceId"`
	OASURL          string `json:"oasUrl"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
}

// ReportParams describes one report created by AddReports. Error is set
// when that report could not be persisted or enqueued.
type ReportParams struct {
	ReportID       types.ReportID `json:"reportId,omitempty"`
	GroupedByField string         `json:"groupedByField"`
	GroupedByValue string         `json:"groupedByValue"`
	Period         string         `json:"period"`
	Error          string         `json:"error,omitempty"`
}

func (r *AddReportsRequest) validate() error {
	switch r.CreateReportsBy {
	case types.AggregatePayloadSourceID, types.AggregateOASURL:
	default:
		return invalid("createReportsBy must be %s or %s", types.AggregatePayloadSourceID, types.AggregateOASURL)
	}
	for _, d := range []string{r.Filters.StartDate, r.Filters.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse(types.DateLayout, d); err != nil {
			return invalid("dates must be YYYY-MM-DD, got %q", d)
		}
	}
	if r.Filters.StartDate != "" && r.Filters.EndDate != "" && r.Filters.StartDate > r.Filters.EndDate {
		return invalid("endDate must be equal to or greater than startDate")
	}
	return nil
}

// AddReports groups matching payloads by (period, aggregation value),
// persists one NOT_STARTED report per group and enqueues it. A failure on
// one report is recorded in its params and does not stop the others.
func (s *Service) AddReports(ctx context.Context, req AddReportsRequest) ([]ReportParams, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	payloads, err := s.payloads.List(ctx, types.PayloadFilter{
		PayloadSourceID: req.Filters.PayloadSourceID,
		OASURL:          req.Filters.OASURL,
		StartDate:       req.Filters.StartDate,
		EndDate:         req.Filters.EndDate,
		Page:            1,
		PageSize:        reportScanLimit,
	})
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, invalid("No payloads found with this parameters")
	}

	params := groupReports(payloads, req)
	for i := range params {
		rec := types.ReportRecord{
			GroupedByField:  params[i].GroupedByField,
			GroupedByValue:  params[i].GroupedByValue,
			Period:          params[i].Period,
			ShowErrorSource: req.ShowErrorSource,
		}
		if err := s.reports.Create(ctx, &rec); err != nil {
			params[i].Error = err.Error()
			continue
		}
		params[i].ReportID = rec.ID
		if _, err := s.reportQueue.Send(ctx, rec); err != nil {
			params[i].Error = err.Error()
			continue
		}
		s.metrics.ItemEnqueued(s.reportQueue.Type())
	}

	s.logger.Debug().Int("reports", len(params)).Str("by", req.CreateReportsBy).Msg("Reports requested")
	return params, nil
}

// groupReports returns one params entry per distinct (period, value) in
// first-seen order.
func groupReports(payloads []types.PayloadRecord, req AddReportsRequest) []ReportParams {
	var params []ReportParams
	seen := map[[2]string]bool{}
	for _, p := range payloads {
		period := req.Filters.StartDate + ":" + req.Filters.EndDate
		if req.CreateDailyReports {
			period = p.Date
		}
		value := p.PayloadSourceID
		if req.CreateReportsBy == types.AggregateOASURL {
			value = p.OASURL
		}

		key := [2]string{period, value}
		if seen[key] {
			continue
		}
		seen[key] = true
		params = append(params, ReportParams{
			GroupedByField: req.CreateReportsBy,
			GroupedByValue: value,
			Period:         period,
		})
	}
	return params
}

// GetReport returns one report record.
func (s *Service) GetReport(ctx context.Context, id types.ReportID) (*types.ReportRecord, error) {
	if id == "" {
		return nil, invalid("report id is required")
	}
	return s.reports.Get(ctx, id)
}

// ListReportsRequest selects reports.
type ListReportsRequest struct {
	GroupedByField string `json:"groupedByField"`
	GroupedByValue string `json:"groupedByValue"`
	Period         string `json:"period"`
	Status         string `json:"status"`
	PageNumber     int    `json:"pageNumber"`
	RecordsPerPage int    `json:"recordsPerPage"`
}

// ListReports returns matching reports.
func (s *Service) ListReports(ctx context.Context, req ListReportsRequest) ([]types.ReportRecord, error) {
	return s.reports.List(ctx, types.ReportFilter{
		GroupedByField: req.GroupedByField,
		GroupedByValue: req.GroupedByValue,
		Period:         req.Period,
		Status:         types.ReportStatus(req.Status),
		Page:           req.PageNumber,
		PageSize:       req.RecordsPerPage,
	})
}

// DeleteReport removes one report record.
func (s *Service) DeleteReport(ctx context.Context, id types.ReportID) error {
	if id == "" {
		return invalid("report id is required")
	}
	return s.reports.Delete(ctx, id)
}
