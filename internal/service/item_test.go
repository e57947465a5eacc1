package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"docvault/internal/access"
	mirrorMocks "docvault/internal/mirror/mocks"
	"docvault/internal/model"
	"docvault/internal/repository"
	repoMocks "docvault/internal/repository/mocks"
)

type itemServiceFixture struct {
	repo      *repoMocks.MockItemRepository
	blobs     *mirrorMocks.MockMirror
	approvals *repoMocks.MockAccessRequestRepository
	svc       *ItemService
}

func newItemServiceFixture() *itemServiceFixture {
	repo := new(repoMocks.MockItemRepository)
	blobs := new(mirrorMocks.MockMirror)
	approvals := new(repoMocks.MockAccessRequestRepository)
	resolver := NewPathResolver(repo, blobs)
	evaluator := access.NewEvaluator(approvals)
	return &itemServiceFixture{
		repo:      repo,
		blobs:     blobs,
		approvals: approvals,
		svc:       NewItemService(repo, blobs, resolver, evaluator, zap.NewNop()),
	}
}

var testUser = model.Principal{ID: "u1", Name: "User One", Department: "sales", Role: model.RoleUser}

func TestItemService_CreateFolder(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a root folder", func(t *testing.T) {
		f := newItemServiceFixture()

		f.repo.On("FindFolder", ctx, "acme", (*string)(nil), "Reports").Return(nil, nil)
		f.blobs.On("EnsureDirectory", ctx, "acme/Reports").Return(nil)
		f.repo.On("Create", ctx, mock.MatchedBy(func(i *model.Item) bool {
			return i.Name == "Reports" &&
				i.Type == model.TypeFolder &&
				i.Path == "acme/Reports" &&
				i.Department == model.DeptAll &&
				i.CreatedBy == "u1"
		})).Return(&model.Item{ID: "f1", Name: "Reports", Path: "acme/Reports"}, nil)

		folder, err := f.svc.CreateFolder(ctx, testUser, CreateFolderRequest{
			Name:      "Reports",
			CompanyID: "acme",
		})

		assert.NoError(t, err)
		assert.Equal(t, "f1", folder.ID)
		f.repo.AssertExpectations(t)
		f.blobs.AssertExpectations(t)
	})

	t.Run("rejects duplicate sibling folder", func(t *testing.T) {
		f := newItemServiceFixture()

		f.repo.On("FindFolder", ctx, "acme", (*string)(nil), "Reports").
			Return(&model.Item{ID: "f0", Name: "Reports"}, nil)

		_, err := f.svc.CreateFolder(ctx, testUser, CreateFolderRequest{
			Name:      "Reports",
			CompanyID: "acme",
		})

		assert.ErrorIs(t, err, ErrValidation)
		f.blobs.AssertNotCalled(t, "EnsureDirectory", mock.Anything, mock.Anything)
	})

	t.Run("rejects name with slash", func(t *testing.T) {
		f := newItemServiceFixture()

		_, err := f.svc.CreateFolder(ctx, testUser, CreateFolderRequest{
			Name:      "a/b",
			CompanyID: "acme",
		})

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("rejects unknown department", func(t *testing.T) {
		f := newItemServiceFixture()

		_, err := f.svc.CreateFolder(ctx, testUser, CreateFolderRequest{
			Name:      "Reports",
			CompanyID: "acme",
			Metadata:  ItemMetadata{Department: "piracy"},
		})

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("parent must be an existing folder", func(t *testing.T) {
		f := newItemServiceFixture()

		parentID := "file1"
		f.repo.On("FindByID", ctx, "file1").Return(&model.Item{
			ID: "file1", Type: model.TypeFile, Path: "acme/a.txt",
		}, nil)

		_, err := f.svc.CreateFolder(ctx, testUser, CreateFolderRequest{
			Name:     "Reports",
			ParentID: &parentID,
		})

		assert.ErrorIs(t, err, ErrInvalidParent)
	})
}

func TestItemService_Upload(t *testing.T) {
	ctx := context.Background()

	t.Run("uploads a file with intermediate folders", func(t *testing.T) {
		f := newItemServiceFixture()

		f.blobs.On("EnsureDirectory", ctx, "acme").Return(nil)
		f.repo.On("FindFolder", ctx, "acme", (*string)(nil), "reports").Return(&model.Item{
			ID: "d1", Name: "reports", Type: model.TypeFolder, CompanyID: "acme", Path: "acme/reports",
		}, nil)

		content := strings.NewReader("hello")
		f.blobs.On("Put", ctx, "acme/reports/q1.pdf", content, int64(5), "application/pdf").Return(nil)
		f.repo.On("Create", ctx, mock.MatchedBy(func(i *model.Item) bool {
			return i.Type == model.TypeFile &&
				i.Name == "q1.pdf" &&
				i.Path == "acme/reports/q1.pdf" &&
				i.ParentID != nil && *i.ParentID == "d1" &&
				i.File != nil && i.File.RelativePath == "reports/q1.pdf"
		})).Return(&model.Item{ID: "i1", Name: "q1.pdf"}, nil)

		created, err := f.svc.Upload(ctx, testUser, UploadRequest{
			CompanyID: "acme",
			Files: []UploadFile{{
				RelativePath: "reports/q1.pdf",
				OriginalName: "q1.pdf",
				MimeType:     "application/pdf",
				Size:         5,
				Content:      content,
			}},
		})

		assert.NoError(t, err)
		assert.Len(t, created, 1)
		f.repo.AssertExpectations(t)
		f.blobs.AssertExpectations(t)
	})

	t.Run("keeps earlier files when a later one fails", func(t *testing.T) {
		f := newItemServiceFixture()

		f.blobs.On("EnsureDirectory", ctx, "acme").Return(nil)
		first := strings.NewReader("one")
		second := strings.NewReader("two")
		f.blobs.On("Put", ctx, "acme/a.txt", first, int64(3), "text/plain").Return(nil)
		f.repo.On("Create", ctx, mock.MatchedBy(func(i *model.Item) bool {
			return i.Name == "a.txt"
		})).Return(&model.Item{ID: "i1", Name: "a.txt"}, nil)
		f.blobs.On("Put", ctx, "acme/b.txt", second, int64(3), "text/plain").
			Return(errors.New("io error"))

		created, err := f.svc.Upload(ctx, testUser, UploadRequest{
			CompanyID: "acme",
			Files: []UploadFile{
				{OriginalName: "a.txt", MimeType: "text/plain", Size: 3, Content: first},
				{OriginalName: "b.txt", MimeType: "text/plain", Size: 3, Content: second},
			},
		})

		assert.Error(t, err)
		assert.Len(t, created, 1)
		assert.Equal(t, "a.txt", created[0].Name)
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		f := newItemServiceFixture()

		_, err := f.svc.Upload(ctx, testUser, UploadRequest{CompanyID: "acme"})

		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestItemService_Open(t *testing.T) {
	ctx := context.Background()

	t.Run("allowed returns the item", func(t *testing.T) {
		f := newItemServiceFixture()

		f.repo.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Department: model.DeptAll,
		}, nil)

		res, err := f.svc.Open(ctx, testUser, "i1")

		assert.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, "i1", res.Item.ID)
	})

	t.Run("denied offers a request", func(t *testing.T) {
		f := newItemServiceFixture()

		f.repo.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Department: model.DeptHR,
		}, nil)
		f.approvals.On("HasApproved", ctx, "u1", "i1").Return(false, nil)

		res, err := f.svc.Open(ctx, testUser, "i1")

		assert.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.True(t, res.CanRequest)
		assert.Nil(t, res.Item)
	})

	t.Run("not found", func(t *testing.T) {
		f := newItemServiceFixture()
		f.repo.On("FindByID", ctx, "nope").Return(nil, sql.ErrNoRows)

		_, err := f.svc.Open(ctx, testUser, "nope")

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestItemService_ListDescendants(t *testing.T) {
	ctx := context.Background()

	t.Run("filters contents through visibility", func(t *testing.T) {
		f := newItemServiceFixture()

		f.repo.On("FindByID", ctx, "f1").Return(&model.Item{
			ID: "f1", Type: model.TypeFolder, Department: model.DeptAll,
		}, nil)
		f.repo.On("FindDescendants", ctx, "f1").Return([]model.Item{
			{ID: "d1", Department: model.DeptAll},
			{ID: "d2", Department: model.DeptHR},
		}, nil)
		f.approvals.On("HasApproved", ctx, "u1", "d2").Return(false, nil)

		res, err := f.svc.ListDescendants(ctx, testUser, "f1")

		assert.NoError(t, err)
		assert.Len(t, res.Contents, 1)
		assert.Equal(t, "d1", res.Contents[0].ID)
	})

	t.Run("files have no contents", func(t *testing.T) {
		f := newItemServiceFixture()

		f.repo.On("FindByID", ctx, "i1").Return(&model.Item{
			ID: "i1", Type: model.TypeFile, Department: model.DeptAll,
		}, nil)

		_, err := f.svc.ListDescendants(ctx, testUser, "i1")

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestItemService_Metadata(t *testing.T) {
	ctx := context.Background()

	t.Run("UpdateAccess dedupes the allow-list", func(t *testing.T) {
		f := newItemServiceFixture()

		restricted := true
		f.repo.On("UpdateMetadata", ctx, "i1", repository.MetadataUpdate{
			IsRestricted: &restricted,
			AllowedUsers: []string{"u1", "u2"},
		}).Return(&model.Item{ID: "i1"}, nil)

		item, err := f.svc.UpdateAccess(ctx, "i1", true, []string{"u1", "u2", "u1"})

		assert.NoError(t, err)
		assert.Equal(t, "i1", item.ID)
		f.repo.AssertExpectations(t)
	})

	t.Run("UpdateExpiry clears with nil", func(t *testing.T) {
		f := newItemServiceFixture()

		f.repo.On("UpdateMetadata", ctx, "i1", repository.MetadataUpdate{
			SetExpiry: true,
		}).Return(&model.Item{ID: "i1"}, nil)

		_, err := f.svc.UpdateExpiry(ctx, "i1", nil)

		assert.NoError(t, err)
		f.repo.AssertExpectations(t)
	})

	t.Run("UpdateExpiry sets a date", func(t *testing.T) {
		f := newItemServiceFixture()

		expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		f.repo.On("UpdateMetadata", ctx, "i1", repository.MetadataUpdate{
			SetExpiry:  true,
			ExpiryDate: &expiry,
		}).Return(&model.Item{ID: "i1", ExpiryDate: &expiry}, nil)

		item, err := f.svc.UpdateExpiry(ctx, "i1", &expiry)

		assert.NoError(t, err)
		assert.Equal(t, expiry, *item.ExpiryDate)
	})

	t.Run("ShareDepartments lowercases and dedupes", func(t *testing.T) {
		f := newItemServiceFixture()

		f.repo.On("UpdateMetadata", ctx, "i1", repository.MetadataUpdate{
			SharedDepartments: []string{"sales", "hr"},
		}).Return(&model.Item{ID: "i1"}, nil)

		_, err := f.svc.ShareDepartments(ctx, "i1", []string{"Sales", "HR", "sales"})

		assert.NoError(t, err)
		f.repo.AssertExpectations(t)
	})

	t.Run("ShareDepartments requires at least one", func(t *testing.T) {
		f := newItemServiceFixture()

		_, err := f.svc.ShareDepartments(ctx, "i1", nil)

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("UpdateMetadata validates the department", func(t *testing.T) {
		f := newItemServiceFixture()

		dept := model.Department("piracy")
		_, err := f.svc.UpdateMetadata(ctx, "i1", repository.MetadataUpdate{Department: &dept})

		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("missing row maps to not found", func(t *testing.T) {
		f := newItemServiceFixture()

		restricted := false
		f.repo.On("UpdateMetadata", ctx, "nope", mock.Anything).Return(nil, sql.ErrNoRows)

		_, err := f.svc.UpdateAccess(ctx, "nope", restricted, nil)

		assert.ErrorIs(t, err, ErrNotFound)
	})
}
