package api

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/solatis/oasconform/internal/types"
)

// AddPayloadRequest is a response captured from an API implementation,
// submitted for conformance testing.
type AddPayloadRequest struct {
	OASURL             string          `json:"oasUrl"`
	PayloadSourceID    string          `json:"payloadSourceId"`
	InteractionID      string          `json:"interactionId"`
	RequestURL         string          `json:"requestUrl"`
	RequestPath        string          `json:"requestPath"`
	RequestOperation   string          `json:"requestOperation"`
	RequestContentType string          `json:"requestContentType"`
	ResponseCode       string          `json:"responseCode"`
	ResponsePayload    json.RawMessage `json:"responsePayload"`
	Tags               []string        `json:"tags"`
	Date               string          `json:"date"`
}

// AddPayloadResult is the outcome of AddPayload. Sync is true only when
// Record holds a terminal status.
type AddPayloadResult struct {
	ID     types.PayloadID      `json:"id"`
	Sync   bool                 `json:"sync"`
	Record *types.PayloadRecord `json:"record,omitempty"`
}

func (r *AddPayloadRequest) validate() error {
	if r.OASURL == "" {
		return invalid("oasUrl is required")
	}
	if r.RequestURL == "" && r.RequestPath == "" {
		return invalid("requestUrl or requestPath is required")
	}
	if r.RequestOperation == "" {
		return invalid("requestOperation is required")
	}
	if r.ResponseCode == "" {
		return invalid("responseCode is required")
	}
	if r.Date != "" {
		if _, err := time.Parse(types.DateLayout, r.Date); err != nil {
			return invalid("date must be YYYY-MM-DD, got %q", r.Date)
		}
	}
	trimmed := bytes.TrimSpace(r.ResponsePayload)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') || !json.Valid(trimmed) {
		return invalid("[response_payload] Payload should be a object or an array")
	}
	return nil
}

// AddPayload persists a payload as NOT_STARTED and enqueues it for testing.
// The response body is stored only when content keeping is enabled, but the
// queued job always carries it. With wait set, the record is polled until it
// reaches a terminal status or the retries run out.
func (s *Service) AddPayload(ctx context.Context, req AddPayloadRequest, wait bool) (*AddPayloadResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	rec := types.PayloadRecord{
		OASURL:             req.OASURL,
		PayloadSourceID:    req.PayloadSourceID,
		InteractionID:      req.InteractionID,
		RequestURL:         req.RequestURL,
		RequestPath:        req.RequestPath,
		RequestOperation:   req.RequestOperation,
		RequestContentType: req.RequestContentType,
		ResponseCode:       req.ResponseCode,
		Tags:               req.Tags,
		Date:               req.Date,
	}
	if s.cfg.KeepPayloadContent {
		rec.ResponsePayload = req.ResponsePayload
	}
	if err := s.payloads.Create(ctx, &rec); err != nil {
		return nil, err
	}

	job := rec
	job.ResponsePayload = req.ResponsePayload
	if _, err := s.payloadQueue.Send(ctx, job); err != nil {
		return nil, err
	}
	s.metrics.ItemEnqueued(s.payloadQueue.Type())
	s.logger.Debug().Str("payload_id", string(rec.ID)).Bool("sync", wait).Msg("Payload accepted")

	if !wait {
		return &AddPayloadResult{ID: rec.ID, Record: &rec}, nil
	}

	current := &rec
	for i := 0; i < s.cfg.SyncWaitRetries; i++ {
		if err := sleep(ctx, s.cfg.SyncWaitInterval); err != nil {
			return nil, err
		}
		got, err := s.payloads.Get(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		current = got
		if got.Status.Terminal() {
			return &AddPayloadResult{ID: rec.ID, Sync: true, Record: got}, nil
		}
	}
	return &AddPayloadResult{ID: rec.ID, Record: current}, nil
}

// GetPayload returns one payload record.
func (s *Service) GetPayload(ctx context.Context, id types.PayloadID) (*types.PayloadRecord, error) {
	if id == "" {
		return nil, invalid("payload id is required")
	}
	return s.payloads.Get(ctx, id)
}

// ListPayloadsRequest selects payloads. Date, when set, narrows both ends of
// the date range to one day.
type ListPayloadsRequest struct {
	PayloadSourceID string   `json:"payloadSourceId"`
	OASURL          string   `json:"oasUrl"`
	Date            string   `json:"date"`
	StartDate       string   `json:"startDate"`
	EndDate         string   `json:"endDate"`
	InteractionID   string   `json:"interactionId"`
	Status          string   `json:"status"`
	Tags            []string `json:"tags"`
	PageNumber      int      `json:"pageNumber"`
	RecordsPerPage  int      `json:"recordsPerPage"`
	Detailed        bool     `json:"detailed"`
}

// ListPayloads returns matching payloads. Without Detailed the response
// body, validation log and rule results are left out.
func (s *Service) ListPayloads(ctx context.Context, req ListPayloadsRequest) ([]types.PayloadRecord, error) {
	filter := types.PayloadFilter{
		PayloadSourceID: req.PayloadSourceID,
		OASURL:          req.OASURL,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		InteractionID:   req.InteractionID,
		Status:          types.PayloadStatus(req.Status),
		Tags:            req.Tags,
		Page:            req.PageNumber,
		PageSize:        req.RecordsPerPage,
	}
	if req.Date != "" {
		filter.StartDate, filter.EndDate = req.Date, req.Date
	}

	records, err := s.payloads.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if !req.Detailed {
		for i := range records {
			records[i].ResponsePayload = nil
			records[i].Log = nil
			records[i].RuleResults = nil
		}
	}
	return records, nil
}

// DeletePayload removes one payload record.
func (s *Service) DeletePayload(ctx context.Context, id types.PayloadID) error {
	if id == "" {
		return invalid("payload id is required")
	}
	return s.payloads.Delete(ctx, id)
}

// DeletePayloads removes payloads carrying all of tags and/or dated date.
func (s *Service) DeletePayloads(ctx context.Context, tags []string, date string) (int64, error) {
	return s.payloads.DeleteMatching(ctx, tags, date)
}
