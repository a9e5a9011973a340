package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/solatis/oasconform/internal/queue"
	"github.com/solatis/oasconform/internal/types"
)

// reportPageSize bounds how many payloads one report consolidates.
const reportPageSize = 10000

// ReportUpdater persists report state transitions.
type ReportUpdater interface {
	Update(ctx context.Context, id types.ReportID, upd types.ReportUpdate) error
}

// PayloadLister selects the payloads a report covers.
type PayloadLister interface {
	List(ctx context.Context, filter types.PayloadFilter) ([]types.PayloadRecord, error)
}

// ReportWorker consolidates payload outcomes into reports.
type ReportWorker struct {
	reports  ReportUpdater
	payloads PayloadLister
	sampler  Sampler
	logger   zerolog.Logger
}

// ReportOption configures a ReportWorker.
type ReportOption func(*ReportWorker)

// WithSampler overrides the example replacement sampler.
func WithSampler(s Sampler) ReportOption {
	return func(w *ReportWorker) {
		w.sampler = s
	}
}

// NewReportWorker creates a report worker.
func NewReportWorker(reports ReportUpdater, payloads PayloadLister, logger zerolog.Logger, opts ...ReportOption) *ReportWorker {
	w := &ReportWorker{
		reports:  reports,
		payloads: payloads,
		sampler:  NewDefaultSampler(),
		logger:   logger.With().Str("component", "report_worker").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Process implements Processor. The item carries the full report record.
func (w *ReportWorker) Process(ctx context.Context, item *queue.Item) string {
	var job types.ReportRecord
	if err := item.Decode(&job); err != nil {
		w.logger.Error().Err(err).Str("item_id", item.ID).Msg("Discarding undecodable report item")
		return "invalid"
	}
	status, err := w.ProcessReport(ctx, job)
	if err != nil {
		w.logger.Error().Err(err).Str("report_id", string(job.ID)).Msg("Failed to record report outcome")
	}
	return string(status)
}

// ProcessReport drives one report through NOT_STARTED -> STARTED ->
// FINISHED | ERROR. Any failure after the report is started lands in
// statusDetail; the returned error is non-nil only when that write failed.
func (w *ReportWorker) ProcessReport(ctx context.Context, job types.ReportRecord) (types.ReportStatus, error) {
	list, err := w.consolidate(ctx, job)
	if err == nil {
		err = w.reports.Update(ctx, job.ID, types.ReportUpdate{
			Status:           types.ReportFinished,
			ConsolidatedList: list,
		})
		if err == nil {
			return types.ReportFinished, nil
		}
	}

	w.logger.Debug().Err(err).Str("report_id", string(job.ID)).Msg("Report failed")
	detail := err.Error()
	return types.ReportError, w.reports.Update(ctx, job.ID, types.ReportUpdate{
		Status:       types.ReportError,
		StatusDetail: &detail,
	})
}

func (w *ReportWorker) consolidate(ctx context.Context, job types.ReportRecord) ([]types.ConsolidatedEntry, error) {
	if err := w.reports.Update(ctx, job.ID, types.ReportUpdate{Status: types.ReportStarted}); err != nil {
		return nil, fmt.Errorf("error updating report '%s': %w", job.ID, err)
	}

	start, end := SplitPeriod(job.Period)
	filter := types.PayloadFilter{
		StartDate: start,
		EndDate:   end,
		Page:      1,
		PageSize:  reportPageSize,
	}
	switch job.GroupedByField {
	case types.AggregatePayloadSourceID:
		filter.PayloadSourceID = job.GroupedByValue
	case types.AggregateOASURL:
		filter.OASURL = job.GroupedByValue
	}

	payloads, err := w.payloads.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("error reading payloads for report '%s': %w", job.ID, err)
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("no payloads selected for report '%s'", job.ID)
	}
	return Consolidate(payloads, job.ShowErrorSource, w.sampler), nil
}

// SplitPeriod splits "start:end" into its dates. A single date is both ends.
func SplitPeriod(period string) (string, string) {
	start, end, ok := strings.Cut(period, ":")
	if !ok {
		return start, start
	}
	return start, end
}

// Consolidate groups payloads by endpoint, tallies their statuses and merges
// their error groups by message. Entries keep first-seen order.
func Consolidate(payloads []types.PayloadRecord, showSource bool, sampler Sampler) []types.ConsolidatedEntry {
	list := []types.ConsolidatedEntry{}
	index := map[string]int{}

	for _, p := range payloads {
		entry := endpointOf(p)
		i, ok := index[entry.Key]
		if !ok {
			i = len(list)
			index[entry.Key] = i
			list = append(list, entry)
		}
		e := &list[i]

		switch p.Status {
		case types.PayloadFinished:
			e.FinishedOK++
		case types.PayloadErrorSchema:
			e.FinishedErrorSchema++
		case types.PayloadError:
			e.FinishedErrorOther++
		case types.PayloadNotStarted:
			e.NotStarted++
		case types.PayloadStarted:
			e.Running++
		}

		for _, group := range p.Log {
			e.Errors = addError(e.Errors, group, p, showSource, sampler)
		}
	}
	return list
}

func endpointOf(p types.PayloadRecord) types.ConsolidatedEntry {
	entry := types.ConsolidatedEntry{
		OASURL: p.OASURL,
		Errors: []types.ConsolidatedError{},
	}
	if p.OASInfo != nil {
		entry.RequestPath = p.OASInfo.OASPath
		entry.RequestOperation = p.OASInfo.OASOperation
		entry.ResponseContentType = p.OASInfo.OASContentType
		entry.ResponseCode = p.OASInfo.OASResponseCode
	} else {
		entry.RequestPath = p.RequestPath
		if entry.RequestPath == "" {
			entry.RequestPath = p.RequestURL
		}
		entry.RequestOperation = p.RequestOperation
		entry.ResponseContentType = p.RequestContentType
		entry.ResponseCode = p.ResponseCode
	}
	entry.Key = strings.Join([]string{
		entry.OASURL, entry.RequestPath, entry.RequestOperation, entry.ResponseContentType, entry.ResponseCode,
	}, " ")
	return entry
}

func addError(list []types.ConsolidatedError, group types.ValidationErrorGroup, p types.PayloadRecord, showSource bool, sampler Sampler) []types.ConsolidatedError {
	message := group.GenInstancePath + " " + group.Message
	example := group.InstancePathExample + ": " + group.InstanceValueExample
	ref := types.ErrorSourceRef{ID: p.ID, PayloadSourceID: p.PayloadSourceID}

	for i := range list {
		if list[i].ErrorMessage != message {
			continue
		}
		list[i].TotalErrors += group.Count
		list[i].TotalRequests++
		if showSource {
			list[i].Payloads = append(list[i].Payloads, ref)
		}
		if sampler.Replace() {
			list[i].ErrorExample = example
		}
		return list
	}

	merged := types.ConsolidatedError{
		ErrorMessage:  message,
		ErrorExample:  example,
		TotalErrors:   group.Count,
		TotalRequests: 1,
	}
	if showSource {
		merged.Payloads = []types.ErrorSourceRef{ref}
	}
	return append(list, merged)
}
