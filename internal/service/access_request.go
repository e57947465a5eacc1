package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"docvault/internal/model"
	"docvault/internal/notify"
	"docvault/internal/repository"
)

// AccessRequestService runs the approval workflow: principals petition for
// visibility into an item, administrators approve or deny, and approval of a
// folder cascades to every descendant. Status changes notify the requester;
// notification failures are logged and swallowed, never rolled back.
type AccessRequestService struct {
	requests       repository.AccessRequestRepository
	items          repository.ItemRepository
	notifier       notify.Notifier
	scheduler      *notify.Scheduler
	processedDelay time.Duration
	logger         *zap.Logger
}

// NewAccessRequestService constructs an AccessRequestService. processedDelay
// is how long after an approval the follow-up "processed" message fires; a
// later status change cancels the pending timer.
func NewAccessRequestService(
	requests repository.AccessRequestRepository,
	items repository.ItemRepository,
	notifier notify.Notifier,
	scheduler *notify.Scheduler,
	processedDelay time.Duration,
	logger *zap.Logger,
) *AccessRequestService {
	return &AccessRequestService{
		requests:       requests,
		items:          items,
		notifier:       notifier,
		scheduler:      scheduler,
		processedDelay: processedDelay,
		logger:         logger,
	}
}

// Request creates a pending request for (principal, item). At most one
// request exists per pair regardless of status: a duplicate is rejected, not
// created — after a denial the administrator flips the existing record.
func (s *AccessRequestService) Request(ctx context.Context, principal model.Principal, itemID string, itemType model.ItemType) (*model.AccessRequest, error) {
	if itemID == "" {
		return nil, ErrIDRequired
	}

	item, err := s.items.FindByID(ctx, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if itemType != "" && itemType != item.Type {
		return nil, fmt.Errorf("%w: item type mismatch", ErrValidation)
	}

	existing, err := s.requests.FindByUserItem(ctx, principal.ID, itemID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateRequest
	}

	created, err := s.requests.Create(ctx, &model.AccessRequest{
		ID:        uuid.NewString(),
		UserID:    principal.ID,
		ItemID:    itemID,
		ItemType:  item.Type,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	})
	// The read above races concurrent requests for the same pair; the unique
	// index has the final say.
	if errors.Is(err, repository.ErrDuplicate) {
		return nil, ErrDuplicateRequest
	}
	return created, err
}

// CheckApproved reports whether the principal holds an approved request for
// the item.
func (s *AccessRequestService) CheckApproved(ctx context.Context, principal model.Principal, itemID string) (bool, error) {
	if itemID == "" {
		return false, ErrIDRequired
	}
	return s.requests.HasApproved(ctx, principal.ID, itemID)
}

// List returns every request, for administrators.
func (s *AccessRequestService) List(ctx context.Context) ([]model.AccessRequest, error) {
	return s.requests.List(ctx)
}

// SetStatus transitions a request to approved or denied. Re-setting the same
// status is a no-op that still succeeds. Approval grants the requester on
// the item (idempotently) and, for folders, upserts an approved request and
// a grant on every descendant; denial revokes the grant on the item only.
func (s *AccessRequestService) SetStatus(ctx context.Context, requestID string, status model.RequestStatus) (*model.AccessRequest, error) {
	if requestID == "" {
		return nil, ErrIDRequired
	}
	if status != model.StatusApproved && status != model.StatusDenied {
		return nil, fmt.Errorf("%w: status must be approved or denied", ErrValidation)
	}

	req, err := s.requests.FindByID(ctx, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if req.Status == status {
		return req, nil
	}

	item, err := s.items.FindByID(ctx, req.ItemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.requests.UpdateStatus(ctx, req.ID, status); err != nil {
		return nil, err
	}
	req.Status = status

	// A pending follow-up from an earlier transition no longer describes
	// the record; cancel it before acting on the new status.
	s.scheduler.Cancel(req.ID)

	switch status {
	case model.StatusApproved:
		if err := s.grant(ctx, item, req.UserID); err != nil {
			return nil, err
		}
		if item.IsFolder() {
			if err := s.cascadeApproval(ctx, item, req.UserID); err != nil {
				return nil, err
			}
		}
		s.send(req.UserID, fmt.Sprintf(
			"Hi, your request has been approved. You can now access %q (%s).",
			item.Name, item.Type,
		))
		s.scheduleProcessed(req, item)
	case model.StatusDenied:
		if err := s.revoke(ctx, item, req.UserID); err != nil {
			return nil, err
		}
		s.send(req.UserID, fmt.Sprintf(
			"Hi, your request for %q was denied by the admin.", item.Name,
		))
	}

	return req, nil
}

// grant adds userID to the item's allow-list; adding twice has no effect.
func (s *AccessRequestService) grant(ctx context.Context, item *model.Item, userID string) error {
	if item.HasAllowedUser(userID) {
		return nil
	}
	users := append(append([]string{}, item.AllowedUsers...), userID)
	_, err := s.items.UpdateMetadata(ctx, item.ID, repository.MetadataUpdate{AllowedUsers: users})
	return err
}

// revoke removes userID from the item's allow-list; a no-op when absent.
func (s *AccessRequestService) revoke(ctx context.Context, item *model.Item, userID string) error {
	if !item.HasAllowedUser(userID) {
		return nil
	}
	users := make([]string, 0, len(item.AllowedUsers))
	for _, id := range item.AllowedUsers {
		if id != userID {
			users = append(users, id)
		}
	}
	_, err := s.items.UpdateMetadata(ctx, item.ID, repository.MetadataUpdate{AllowedUsers: users})
	return err
}

// cascadeApproval upserts an approved request and a grant for every
// descendant of the approved folder. Not transactional: a failure reports
// the descendant that stopped the cascade, with prior grants in place.
func (s *AccessRequestService) cascadeApproval(ctx context.Context, folder *model.Item, userID string) error {
	descendants, err := s.items.FindDescendants(ctx, folder.ID)
	if err != nil {
		return err
	}
	for i := range descendants {
		d := &descendants[i]
		if err := s.requests.Upsert(ctx, userID, d.ID, d.Type, model.StatusApproved); err != nil {
			return &SubtreeError{ItemID: d.ID, Path: d.Path, Err: err}
		}
		if err := s.grant(ctx, d, userID); err != nil {
			return &SubtreeError{ItemID: d.ID, Path: d.Path, Err: err}
		}
	}
	return nil
}

// send delivers a status notification. Failure never fails the transition.
func (s *AccessRequestService) send(userID, message string) {
	if err := s.notifier.Send(context.Background(), userID, message); err != nil {
		s.logger.Warn("notification failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// scheduleProcessed queues the delayed "processed" follow-up for an
// approval. The timer is keyed by request id and cancelled by any later
// status change on the same request.
func (s *AccessRequestService) scheduleProcessed(req *model.AccessRequest, item *model.Item) {
	if s.processedDelay <= 0 {
		return
	}
	userID := req.UserID
	name := item.Name
	s.scheduler.Schedule(req.ID, s.processedDelay, func() {
		s.send(userID, fmt.Sprintf("Hi, your access to %q has been processed.", name))
	})
}
