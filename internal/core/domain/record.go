package domain

import (
	"time"

	"github.com/google/uuid"
)

type DispatchStatus string

const (
	DispatchStatusSent     DispatchStatus = "sent"
	DispatchStatusPartial  DispatchStatus = "partial"
	DispatchStatusFailed   DispatchStatus = "failed"
	DispatchStatusCanceled DispatchStatus = "canceled"
)

// DispatchRecord is the persisted log row for one dispatch run.
type DispatchRecord struct {
	ID         string         `db:"id" json:"id"`
	Title      string         `db:"title" json:"title"`
	Addressing string         `db:"addressing" json:"addressing"`
	Attempted  int            `db:"attempted" json:"attempted"`
	Delivered  int            `db:"delivered" json:"delivered"`
	Failed     int            `db:"failed" json:"failed"`
	Invalid    int            `db:"invalid" json:"invalid"`
	Status     DispatchStatus `db:"status" json:"status"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// NewDispatchRecord snapshots a result into a log row.
func NewDispatchRecord(n *Notification, res *DispatchResult) *DispatchRecord {
	rec := &DispatchRecord{
		ID:         uuid.NewString(),
		Title:      n.Title,
		Addressing: n.Addressing.String(),
		Attempted:  res.Attempted,
		Delivered:  res.Delivered,
		Failed:     res.Failed,
		Invalid:    len(res.InvalidEndpoints),
		CreatedAt:  time.Now().UTC(),
	}
	switch {
	case res.Canceled:
		rec.Status = DispatchStatusCanceled
	case res.Attempted == 0:
		rec.Status = DispatchStatusSent
	case res.Delivered == 0:
		rec.Status = DispatchStatusFailed
	case res.Delivered < res.Attempted:
		rec.Status = DispatchStatusPartial
	default:
		rec.Status = DispatchStatusSent
	}
	return rec
}
