package model

import "time"

// RequestStatus is the lifecycle state of an AccessRequest.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
)

// ValidRequestStatus reports whether s is a known status value.
func ValidRequestStatus(s RequestStatus) bool {
	return s == StatusPending || s == StatusApproved || s == StatusDenied
}

// AccessRequest is a principal's petition for visibility into one Item.
// At most one request exists per (UserID, ItemID) pair.
type AccessRequest struct {
	ID        string        `json:"id"`
	UserID    string        `json:"user_id"`
	ItemID    string        `json:"item_id"`
	ItemType  ItemType      `json:"item_type"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}
