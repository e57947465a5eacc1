package repository

import (
	"context"
	"errors"

	"docvault/internal/model"
)

// ErrDuplicate is returned by Create when a row for the (user_id, item_id)
// pair already exists.
var ErrDuplicate = errors.New("request already exists")

// AccessRequestRepository defines data access for access requests.
type AccessRequestRepository interface {
	// Create inserts a new request record and returns the stored row.
	// A row already covering the (userID, itemID) pair yields ErrDuplicate.
	Create(ctx context.Context, req *model.AccessRequest) (*model.AccessRequest, error)

	// FindByID returns a request by its ID.
	FindByID(ctx context.Context, id string) (*model.AccessRequest, error)

	// FindByUserItem returns the request for the (userID, itemID) pair in any
	// status, or nil without error when none exists.
	FindByUserItem(ctx context.Context, userID, itemID string) (*model.AccessRequest, error)

	// HasApproved reports whether an approved request exists for the pair.
	HasApproved(ctx context.Context, userID, itemID string) (bool, error)

	// List returns all requests, newest first.
	List(ctx context.Context) ([]model.AccessRequest, error)

	// UpdateStatus sets the status of a request by ID.
	UpdateStatus(ctx context.Context, id string, status model.RequestStatus) error

	// Upsert creates or updates the (userID, itemID) request, setting its
	// status and item type. Used by the folder approval cascade.
	Upsert(ctx context.Context, userID, itemID string, itemType model.ItemType, status model.RequestStatus) error
}
