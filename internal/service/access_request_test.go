package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"docvault/internal/model"
	"docvault/internal/notify"
	notifyMocks "docvault/internal/notify/mocks"
	"docvault/internal/repository"
	repoMocks "docvault/internal/repository/mocks"
)

type requestServiceFixture struct {
	requests *repoMocks.MockAccessRequestRepository
	items    *repoMocks.MockItemRepository
	notifier *notifyMocks.MockNotifier
	svc      *AccessRequestService
}

func newRequestServiceFixture(processedDelay time.Duration) *requestServiceFixture {
	requests := new(repoMocks.MockAccessRequestRepository)
	items := new(repoMocks.MockItemRepository)
	notifier := new(notifyMocks.MockNotifier)
	return &requestServiceFixture{
		requests: requests,
		items:    items,
		notifier: notifier,
		svc: NewAccessRequestService(
			requests, items, notifier, notify.NewScheduler(), processedDelay, zap.NewNop(),
		),
	}
}

func TestAccessRequestService_Request(t *testing.T) {
	ctx := context.Background()
	user := model.Principal{ID: "u1", Role: model.RoleUser}

	t.Run("creates a pending request", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		f.items.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Type: model.TypeFile,
		}, nil)
		f.requests.On("FindByUserItem", ctx, "u1", "i1").Return(nil, nil)
		f.requests.On("Create", ctx, mock.MatchedBy(func(r *model.AccessRequest) bool {
			return r.UserID == "u1" &&
				r.ItemID == "i1" &&
				r.ItemType == model.TypeFile &&
				r.Status == model.StatusPending
		})).Return(&model.AccessRequest{ID: "r1", Status: model.StatusPending}, nil)

		req, err := f.svc.Request(ctx, user, "i1", model.TypeFile)

		assert.NoError(t, err)
		assert.Equal(t, model.StatusPending, req.Status)
		f.requests.AssertExpectations(t)
	})

	t.Run("rejects a duplicate regardless of status", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		f.items.On("FindByID", ctx, "i1").Return(&model.Item{ID: "i1", Type: model.TypeFile}, nil)
		f.requests.On("FindByUserItem", ctx, "u1", "i1").Return(&model.AccessRequest{
			ID: "r1", Status: model.StatusDenied,
		}, nil)

		_, err := f.svc.Request(ctx, user, "i1", model.TypeFile)

		assert.ErrorIs(t, err, ErrDuplicateRequest)
		f.requests.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("insert losing a race is still a duplicate", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		f.items.On("FindByID", ctx, "i1").Return(&model.Item{ID: "i1", Type: model.TypeFile}, nil)
		f.requests.On("FindByUserItem", ctx, "u1", "i1").Return(nil, nil)
		f.requests.On("Create", ctx, mock.Anything).Return(nil, repository.ErrDuplicate)

		_, err := f.svc.Request(ctx, user, "i1", model.TypeFile)

		assert.ErrorIs(t, err, ErrDuplicateRequest)
	})

	t.Run("missing item", func(t *testing.T) {
		f := newRequestServiceFixture(0)
		f.items.On("FindByID", ctx, "nope").Return(nil, sql.ErrNoRows)

		_, err := f.svc.Request(ctx, user, "nope", model.TypeFile)

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("item type mismatch", func(t *testing.T) {
		f := newRequestServiceFixture(0)
		f.items.On("FindByID", ctx, "i1").Return(&model.Item{ID: "i1", Type: model.TypeFolder}, nil)

		_, err := f.svc.Request(ctx, user, "i1", model.TypeFile)

		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestAccessRequestService_SetStatus(t *testing.T) {
	ctx := context.Background()

	pendingReq := func() *model.AccessRequest {
		return &model.AccessRequest{
			ID: "r1", UserID: "u1", ItemID: "i1",
			ItemType: model.TypeFile, Status: model.StatusPending,
		}
	}

	t.Run("approving a file grants the requester", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		f.requests.On("FindByID", ctx, "r1").Return(pendingReq(), nil)
		f.items.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Name: "a.txt", Type: model.TypeFile, AllowedUsers: []string{},
		}, nil)
		f.requests.On("UpdateStatus", ctx, "r1", model.StatusApproved).Return(nil)
		f.items.On("UpdateMetadata", ctx, "i1", repository.MetadataUpdate{
			AllowedUsers: []string{"u1"},
		}).Return(&model.Item{ID: "i1"}, nil)
		f.notifier.On("Send", mock.Anything, "u1", mock.MatchedBy(func(msg string) bool {
			return msg != ""
		})).Return(nil)

		req, err := f.svc.SetStatus(ctx, "r1", model.StatusApproved)

		assert.NoError(t, err)
		assert.Equal(t, model.StatusApproved, req.Status)
		f.items.AssertExpectations(t)
		f.notifier.AssertExpectations(t)
	})

	t.Run("grant is idempotent", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		f.requests.On("FindByID", ctx, "r1").Return(pendingReq(), nil)
		f.items.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Name: "a.txt", Type: model.TypeFile, AllowedUsers: []string{"u1"},
		}, nil)
		f.requests.On("UpdateStatus", ctx, "r1", model.StatusApproved).Return(nil)
		f.notifier.On("Send", mock.Anything, "u1", mock.Anything).Return(nil)

		_, err := f.svc.SetStatus(ctx, "r1", model.StatusApproved)

		assert.NoError(t, err)
		f.items.AssertNotCalled(t, "UpdateMetadata", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("approving a folder cascades to descendants", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		req := pendingReq()
		req.ItemType = model.TypeFolder
		f.requests.On("FindByID", ctx, "r1").Return(req, nil)
		f.items.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Name: "Reports", Type: model.TypeFolder, AllowedUsers: []string{},
		}, nil)
		f.requests.On("UpdateStatus", ctx, "r1", model.StatusApproved).Return(nil)
		f.items.On("UpdateMetadata", ctx, "i1", repository.MetadataUpdate{
			AllowedUsers: []string{"u1"},
		}).Return(&model.Item{ID: "i1"}, nil)

		f.items.On("FindDescendants", ctx, "i1").Return([]model.Item{
			{ID: "d1", Type: model.TypeFolder, AllowedUsers: []string{}},
			{ID: "d2", Type: model.TypeFile, AllowedUsers: []string{"u1"}},
		}, nil)
		f.requests.On("Upsert", ctx, "u1", "d1", model.TypeFolder, model.StatusApproved).Return(nil)
		f.requests.On("Upsert", ctx, "u1", "d2", model.TypeFile, model.StatusApproved).Return(nil)
		// d2 already holds the grant; only d1 gets a metadata write.
		f.items.On("UpdateMetadata", ctx, "d1", repository.MetadataUpdate{
			AllowedUsers: []string{"u1"},
		}).Return(&model.Item{ID: "d1"}, nil)

		f.notifier.On("Send", mock.Anything, "u1", mock.Anything).Return(nil)

		_, err := f.svc.SetStatus(ctx, "r1", model.StatusApproved)

		assert.NoError(t, err)
		f.requests.AssertExpectations(t)
		f.items.AssertExpectations(t)
	})

	t.Run("cascade failure names the failing descendant", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		req := pendingReq()
		req.ItemType = model.TypeFolder
		f.requests.On("FindByID", ctx, "r1").Return(req, nil)
		f.items.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Name: "Reports", Type: model.TypeFolder, AllowedUsers: []string{},
		}, nil)
		f.requests.On("UpdateStatus", ctx, "r1", model.StatusApproved).Return(nil)
		f.items.On("UpdateMetadata", ctx, "i1", mock.Anything).Return(&model.Item{ID: "i1"}, nil)
		f.items.On("FindDescendants", ctx, "i1").Return([]model.Item{
			{ID: "d1", Type: model.TypeFile, Path: "acme/Reports/a.txt", AllowedUsers: []string{}},
		}, nil)
		f.requests.On("Upsert", ctx, "u1", "d1", model.TypeFile, model.StatusApproved).
			Return(errors.New("db down"))

		_, err := f.svc.SetStatus(ctx, "r1", model.StatusApproved)

		var subtree *SubtreeError
		assert.ErrorAs(t, err, &subtree)
		assert.Equal(t, "d1", subtree.ItemID)
	})

	t.Run("denial revokes the grant", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		req := pendingReq()
		req.Status = model.StatusApproved
		f.requests.On("FindByID", ctx, "r1").Return(req, nil)
		f.items.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Name: "a.txt", Type: model.TypeFile, AllowedUsers: []string{"u1", "u2"},
		}, nil)
		f.requests.On("UpdateStatus", ctx, "r1", model.StatusDenied).Return(nil)
		f.items.On("UpdateMetadata", ctx, "i1", repository.MetadataUpdate{
			AllowedUsers: []string{"u2"},
		}).Return(&model.Item{ID: "i1"}, nil)
		f.notifier.On("Send", mock.Anything, "u1", mock.Anything).Return(nil)

		_, err := f.svc.SetStatus(ctx, "r1", model.StatusDenied)

		assert.NoError(t, err)
		f.items.AssertExpectations(t)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		f.requests.On("FindByID", ctx, "r1").Return(pendingReq(), nil)
		f.items.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Name: "a.txt", Type: model.TypeFile, AllowedUsers: []string{},
		}, nil)
		f.requests.On("UpdateStatus", ctx, "r1", model.StatusDenied).Return(nil)
		f.notifier.On("Send", mock.Anything, "u1", mock.Anything).Return(nil)

		_, err := f.svc.SetStatus(ctx, "r1", model.StatusDenied)

		assert.NoError(t, err)
		f.items.AssertNotCalled(t, "UpdateMetadata", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("same status is a no-op", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		req := pendingReq()
		req.Status = model.StatusApproved
		f.requests.On("FindByID", ctx, "r1").Return(req, nil)

		got, err := f.svc.SetStatus(ctx, "r1", model.StatusApproved)

		assert.NoError(t, err)
		assert.Equal(t, model.StatusApproved, got.Status)
		f.requests.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
		f.notifier.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("notification failure is swallowed", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		f.requests.On("FindByID", ctx, "r1").Return(pendingReq(), nil)
		f.items.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Name: "a.txt", Type: model.TypeFile, AllowedUsers: []string{},
		}, nil)
		f.requests.On("UpdateStatus", ctx, "r1", model.StatusApproved).Return(nil)
		f.items.On("UpdateMetadata", ctx, "i1", mock.Anything).Return(&model.Item{ID: "i1"}, nil)
		f.notifier.On("Send", mock.Anything, "u1", mock.Anything).Return(errors.New("provider down"))

		_, err := f.svc.SetStatus(ctx, "r1", model.StatusApproved)

		assert.NoError(t, err)
	})

	t.Run("rejects pending as a target status", func(t *testing.T) {
		f := newRequestServiceFixture(0)

		_, err := f.svc.SetStatus(ctx, "r1", model.StatusPending)

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("approval schedules the processed follow-up", func(t *testing.T) {
		f := newRequestServiceFixture(10 * time.Millisecond)

		f.requests.On("FindByID", ctx, "r1").Return(pendingReq(), nil)
		f.items.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Name: "a.txt", Type: model.TypeFile, AllowedUsers: []string{},
		}, nil)
		f.requests.On("UpdateStatus", ctx, "r1", model.StatusApproved).Return(nil)
		f.items.On("UpdateMetadata", ctx, "i1", mock.Anything).Return(&model.Item{ID: "i1"}, nil)

		done := make(chan struct{})
		f.notifier.On("Send", mock.Anything, "u1", mock.MatchedBy(func(msg string) bool {
			return msg != ""
		})).Return(nil).Run(func(args mock.Arguments) {
			if msg, ok := args.Get(2).(string); ok && msg == `Hi, your access to "a.txt" has been processed.` {
				close(done)
			}
		})

		_, err := f.svc.SetStatus(ctx, "r1", model.StatusApproved)
		assert.NoError(t, err)

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("processed follow-up never fired")
		}
	})
}
