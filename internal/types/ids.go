package types

import (
	"time"

	"github.com/google/uuid"
)

// NewPayloadID generates a UUIDv7 payload identifier.
// Time-ordered IDs keep inserts clustered in B-tree pages.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewPayloadID() PayloadID {
	return PayloadID(uuid.Must(uuid.NewV7()).String())
}

// NewReportID generates a UUIDv7 report identifier.
func NewReportID() ReportID {
	return ReportID(uuid.Must(uuid.NewV7()).String())
}

// NewQueueItemID generates a UUIDv7 queue item identifier.
func NewQueueItemID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParsePayloadID validates and converts a string to PayloadID.
func ParsePayloadID(s string) (PayloadID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return PayloadID(s), nil
}

// ParseReportID validates and converts a string to ReportID.
func ParseReportID(s string) (ReportID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return ReportID(s), nil
}

// IDTime extracts the timestamp embedded in a UUIDv7 ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func IDTime(id string) time.Time {
	u, err := uuid.Parse(id)
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
