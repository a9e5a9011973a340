// Package types provides domain models shared across oasconform components.
//
// Records here are wire-format agnostic: the store maps them to SQL rows,
// the API maps them to protobuf Structs, and the queue carries them as JSON.
package types

import (
	"encoding/json"
	"time"
)

// PayloadID represents a UUIDv7 payload identifier.
type PayloadID string

// ReportID represents a UUIDv7 report identifier.
type ReportID string

// PayloadStatus is a step in the payload state machine.
type PayloadStatus string

const (
	PayloadNotStarted  PayloadStatus = "NOT_STARTED"
	PayloadStarted     PayloadStatus = "STARTED"
	PayloadFinished    PayloadStatus = "FINISHED"
	PayloadErrorSchema PayloadStatus = "ERROR_SCHEMA"
	PayloadError       PayloadStatus = "ERROR"
)

// Terminal reports whether no further transition is expected.
func (s PayloadStatus) Terminal() bool {
	switch s {
	case PayloadFinished, PayloadErrorSchema, PayloadError:
		return true
	default:
		return false
	}
}

// ReportStatus is a step in the report state machine.
type ReportStatus string

const (
	ReportNotStarted ReportStatus = "NOT_STARTED"
	ReportStarted    ReportStatus = "STARTED"
	ReportFinished   ReportStatus = "FINISHED"
	ReportError      ReportStatus = "ERROR"
)

// Aggregation fields a report can be grouped by.
const (
	AggregatePayloadSourceID = "payloadSourceId"
	AggregateOASURL          = "oasUrl"
)

// DateLayout is the calendar-day format used for payload dates and report periods.
const DateLayout = "2006-01-02"

// Clock abstracts time so pollers, queues and rule windows can be tested
// deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// OASInfo describes the schema fragment a payload was validated against.
type OASInfo struct {
	SchemaID        string `json:"schemaId"`
	OASAPIName      string `json:"oasApiName"`
	OASPath         string `json:"oasPath"`
	OASOperation    string `json:"oasOperation"`
	OASResponseCode string `json:"oasResponseCode"`
	OASContentType  string `json:"oasContentType"`
}

// ValidationErrorGroup aggregates validator errors sharing a generalized
// instance path and message.
type ValidationErrorGroup struct {
	GenInstancePath      string          `json:"genInstancePath"`
	Message              string          `json:"message"`
	Count                int             `json:"count"`
	Keyword              string          `json:"keyword"`
	InstancePathExample  string          `json:"instancePathExample"`
	InstanceValueExample string          `json:"instanceValueExample"`
	AllInstances         []ErrorInstance `json:"allInstances,omitempty"`
}

// ErrorInstance is one raw validator error, kept when all-instance capture is on.
type ErrorInstance struct {
	InstancePath    string `json:"instancePath"`
	KeywordLocation string `json:"keywordLocation"`
	Keyword         string `json:"keyword"`
	Message         string `json:"message"`
	Data            any    `json:"data,omitempty"`
}

// ValidationResult is the outcome of validating one payload. A mismatch is a
// normal result with Valid=false, not an error.
type ValidationResult struct {
	Valid  bool                   `json:"validSchema"`
	Errors []ValidationErrorGroup `json:"errors,omitempty"`
}

// PayloadRecord is a persisted payload under test.
type PayloadRecord struct {
	ID                 PayloadID              `json:"id"`
	Status             PayloadStatus          `json:"status"`
	StatusDetail       string                 `json:"statusDetail,omitempty"`
	OASURL             string                 `json:"oasUrl"`
	PayloadSourceID    string                 `json:"payloadSourceId,omitempty"`
	InteractionID      string                 `json:"interactionId,omitempty"`
	RequestURL         string                 `json:"requestUrl,omitempty"`
	RequestPath        string                 `json:"requestPath,omitempty"`
	RequestOperation   string                 `json:"requestOperation"`
	RequestContentType string                 `json:"requestContentType"`
	ResponseCode       string                 `json:"responseCode"`
	ResponsePayload    json.RawMessage        `json:"responsePayload,omitempty"`
	OASInfo            *OASInfo               `json:"oasInfo,omitempty"`
	TestElapsedTime    int64                  `json:"testElapsedTime,omitempty"`
	Log                []ValidationErrorGroup `json:"log,omitempty"`
	RuleResults        []RuleResult           `json:"ruleResults,omitempty"`
	Tags               []string               `json:"tags,omitempty"`
	Date               string                 `json:"date"`
	TestDate           *time.Time             `json:"testDate,omitempty"`
	CreatedAt          time.Time              `json:"createdAt"`
}

// PayloadUpdate is a partial update applied by the payload worker.
// Nil fields are left untouched.
type PayloadUpdate struct {
	Status          PayloadStatus
	StatusDetail    *string
	OASInfo         *OASInfo
	TestElapsedTime *int64
	Log             []ValidationErrorGroup
	RuleResults     []RuleResult
	TestDate        *time.Time
}

// PayloadFilter selects payload records.
type PayloadFilter struct {
	PayloadSourceID string
	OASURL          string
	StartDate       string
	EndDate         string
	InteractionID   string
	Status          PayloadStatus
	Tags            []string
	Page            int
	PageSize        int
}

// ReportRecord is a persisted aggregation over payloads.
type ReportRecord struct {
	ID               ReportID            `json:"id"`
	Status           ReportStatus        `json:"status"`
	StatusDetail     string              `json:"statusDetail,omitempty"`
	GroupedByField   string              `json:"groupedByField"`
	GroupedByValue   string              `json:"groupedByValue"`
	Period           string              `json:"period"`
	ShowErrorSource  bool                `json:"showErrorSource,omitempty"`
	ConsolidatedList []ConsolidatedEntry `json:"consolidatedList,omitempty"`
	CreatedAt        time.Time           `json:"createdAt"`
}

// ReportUpdate is a partial update applied by the report worker.
// Nil fields are left untouched.
type ReportUpdate struct {
	Status           ReportStatus
	StatusDetail     *string
	ConsolidatedList []ConsolidatedEntry
}

// ReportFilter selects report records.
type ReportFilter struct {
	GroupedByField string
	GroupedByValue string
	Period         string
	Status         ReportStatus
	Page           int
	PageSize       int
}

// ConsolidatedEntry tallies payloads for one endpoint of one spec.
type ConsolidatedEntry struct {
	Key                 string              `json:"key"`
	OASURL              string              `json:"oasUrl"`
	RequestPath         string              `json:"requestPath"`
	RequestOperation    string              `json:"requestOperation"`
	ResponseContentType string              `json:"responseContentType"`
	ResponseCode        string              `json:"responseCode"`
	FinishedOK          int                 `json:"finishedOk"`
	FinishedErrorSchema int                 `json:"finishedErrorSchema"`
	FinishedErrorOther  int                 `json:"finishedErrorOther"`
	NotStarted          int                 `json:"notStarted"`
	Running             int                 `json:"running"`
	Errors              []ConsolidatedError `json:"errors"`
}

// ConsolidatedError merges error groups with the same message across payloads.
type ConsolidatedError struct {
	ErrorMessage  string           `json:"errorMessage"`
	ErrorExample  string           `json:"errorExample"`
	TotalErrors   int              `json:"totalErrors"`
	TotalRequests int              `json:"totalRequests"`
	Payloads      []ErrorSourceRef `json:"payloads,omitempty"`
}

// ErrorSourceRef points back at a payload that contributed an error.
type ErrorSourceRef struct {
	ID              PayloadID `json:"id"`
	PayloadSourceID string    `json:"payloadSourceId"`
}
