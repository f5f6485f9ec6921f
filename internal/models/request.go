package models

import (
	"encoding/json"
	"time"
)

type ServiceRequest struct {
	RequestID   string          `json:"request_id"`
	ServiceID   string          `json:"service_id"`
	ServiceName string          `json:"service_name,omitempty"`
	SectorID    string          `json:"sector_id,omitempty"`
	CitizenID   string          `json:"citizen_id"`
	Data        json.RawMessage `json:"data,omitempty"`
	Remark      string          `json:"remark,omitempty"`
	Status      string          `json:"status"`
	OfficerID   *string         `json:"officer_id,omitempty"`
	Remarks     []RequestRemark `json:"remarks,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RequestRemark is one entry in a request's append-only remark history.
type RequestRemark struct {
	Seq       int       `json:"seq"`
	OfficerID *string   `json:"officer_id,omitempty"`
	Remark    string    `json:"remark"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RequestPending    = "pending"
	RequestProcessing = "processing"
	RequestCompleted  = "completed"
	RequestRejected   = "rejected"
)
