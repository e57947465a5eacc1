package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	mirrorMocks "docvault/internal/mirror/mocks"
	"docvault/internal/model"
	repoMocks "docvault/internal/repository/mocks"
)

func TestTreeService_Rename(t *testing.T) {
	ctx := context.Background()

	t.Run("renames a folder and rewrites descendant paths", func(t *testing.T) {
		mRepo := new(repoMocks.MockItemRepository)
		mBlobs := new(mirrorMocks.MockMirror)

		folder := &model.Item{
			ID: "f1", Name: "A", Type: model.TypeFolder,
			CompanyID: "acme", Path: "acme/A",
		}
		mRepo.On("FindByID", ctx, "f1").Return(folder, nil)
		mBlobs.On("MoveEntry", ctx, "acme/A", "acme/A2").Return(nil)
		mRepo.On("UpdatePath", ctx, "f1", "A2", "acme/A2").Return(nil)

		sub := model.Item{ID: "f2", Name: "B", Type: model.TypeFolder, Path: "acme/A/B"}
		file := model.Item{ID: "f3", Name: "c.txt", Type: model.TypeFile, Path: "acme/A/B/c.txt"}
		mRepo.On("ChildrenOf", ctx, "f1").Return([]model.Item{sub}, nil)
		mRepo.On("UpdatePath", ctx, "f2", "B", "acme/A2/B").Return(nil)
		mRepo.On("ChildrenOf", ctx, "f2").Return([]model.Item{file}, nil)
		mRepo.On("UpdatePath", ctx, "f3", "c.txt", "acme/A2/B/c.txt").Return(nil)

		svc := NewTreeService(mRepo, mBlobs, zap.NewNop())
		item, err := svc.Rename(ctx, "f1", "A2")

		assert.NoError(t, err)
		assert.Equal(t, "A2", item.Name)
		assert.Equal(t, "acme/A2", item.Path)
		mRepo.AssertExpectations(t)
		mBlobs.AssertExpectations(t)
		// The mirror entry moved exactly once, at the top.
		mBlobs.AssertNumberOfCalls(t, "MoveEntry", 1)
	})

	t.Run("same name is a no-op", func(t *testing.T) {
		mRepo := new(repoMocks.MockItemRepository)
		mBlobs := new(mirrorMocks.MockMirror)

		mRepo.On("FindByID", ctx, "f1").Return(&model.Item{
			ID: "f1", Name: "A", Type: model.TypeFolder, Path: "acme/A",
		}, nil)

		svc := NewTreeService(mRepo, mBlobs, zap.NewNop())
		item, err := svc.Rename(ctx, "f1", "A")

		assert.NoError(t, err)
		assert.Equal(t, "A", item.Name)
		mBlobs.AssertNotCalled(t, "MoveEntry", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid name", func(t *testing.T) {
		svc := NewTreeService(new(repoMocks.MockItemRepository), new(mirrorMocks.MockMirror), zap.NewNop())

		_, err := svc.Rename(ctx, "f1", "a/b")
		assert.ErrorIs(t, err, ErrValidation)

		_, err = svc.Rename(ctx, "f1", "  ")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockItemRepository)
		mRepo.On("FindByID", ctx, "nope").Return(nil, sql.ErrNoRows)

		svc := NewTreeService(mRepo, new(mirrorMocks.MockMirror), zap.NewNop())
		_, err := svc.Rename(ctx, "nope", "X")

		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("mirror failure aborts before the record write", func(t *testing.T) {
		mRepo := new(repoMocks.MockItemRepository)
		mBlobs := new(mirrorMocks.MockMirror)

		mRepo.On("FindByID", ctx, "f1").Return(&model.Item{
			ID: "f1", Name: "A", Type: model.TypeFolder, Path: "acme/A",
		}, nil)
		mBlobs.On("MoveEntry", ctx, "acme/A", "acme/A2").Return(errors.New("disk full"))

		svc := NewTreeService(mRepo, mBlobs, zap.NewNop())
		_, err := svc.Rename(ctx, "f1", "A2")

		var subtree *SubtreeError
		assert.ErrorAs(t, err, &subtree)
		assert.Equal(t, "f1", subtree.ItemID)
		mRepo.AssertNotCalled(t, "UpdatePath", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("descendant failure names the failing node", func(t *testing.T) {
		mRepo := new(repoMocks.MockItemRepository)
		mBlobs := new(mirrorMocks.MockMirror)

		mRepo.On("FindByID", ctx, "f1").Return(&model.Item{
			ID: "f1", Name: "A", Type: model.TypeFolder, Path: "acme/A",
		}, nil)
		mBlobs.On("MoveEntry", ctx, "acme/A", "acme/A2").Return(nil)
		mRepo.On("UpdatePath", ctx, "f1", "A2", "acme/A2").Return(nil)
		mRepo.On("ChildrenOf", ctx, "f1").Return([]model.Item{
			{ID: "f2", Name: "B", Type: model.TypeFolder, Path: "acme/A/B"},
		}, nil)
		mRepo.On("UpdatePath", ctx, "f2", "B", "acme/A2/B").Return(errors.New("write failed"))

		svc := NewTreeService(mRepo, mBlobs, zap.NewNop())
		_, err := svc.Rename(ctx, "f1", "A2")

		var subtree *SubtreeError
		assert.ErrorAs(t, err, &subtree)
		assert.Equal(t, "f2", subtree.ItemID)
		assert.Equal(t, "acme/A/B", subtree.Path)
	})
}

func TestTreeService_Move(t *testing.T) {
	ctx := context.Background()

	t.Run("reassigns a subtree to another tenant", func(t *testing.T) {
		mRepo := new(repoMocks.MockItemRepository)
		mBlobs := new(mirrorMocks.MockMirror)

		parentID := "old-parent"
		folder := &model.Item{
			ID: "f1", Name: "A", Type: model.TypeFolder,
			CompanyID: "acme", ParentID: &parentID, Path: "acme/docs/A",
		}
		mRepo.On("FindByID", ctx, "f1").Return(folder, nil)
		mBlobs.On("MoveEntry", ctx, "acme/docs/A", "globex/A").Return(nil)
		// The moved root re-roots at the new tenant.
		mRepo.On("UpdateTenant", ctx, "f1", "globex", (*string)(nil), "globex/A").Return(nil)

		f1 := "f1"
		mRepo.On("ChildrenOf", ctx, "f1").Return([]model.Item{
			{ID: "f2", Name: "b.txt", Type: model.TypeFile, Path: "acme/docs/A/b.txt"},
		}, nil)
		mRepo.On("UpdateTenant", ctx, "f2", "globex", &f1, "globex/A/b.txt").Return(nil)

		svc := NewTreeService(mRepo, mBlobs, zap.NewNop())
		item, err := svc.Move(ctx, "f1", "globex")

		assert.NoError(t, err)
		assert.Equal(t, "globex", item.CompanyID)
		assert.Nil(t, item.ParentID)
		assert.Equal(t, "globex/A", item.Path)
		mRepo.AssertExpectations(t)
		mBlobs.AssertNumberOfCalls(t, "MoveEntry", 1)
	})

	t.Run("missing company id", func(t *testing.T) {
		svc := NewTreeService(new(repoMocks.MockItemRepository), new(mirrorMocks.MockMirror), zap.NewNop())
		_, err := svc.Move(ctx, "f1", "")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("not found", func(t *testing.T) {
		mRepo := new(repoMocks.MockItemRepository)
		mRepo.On("FindByID", ctx, "nope").Return(nil, sql.ErrNoRows)

		svc := NewTreeService(mRepo, new(mirrorMocks.MockMirror), zap.NewNop())
		_, err := svc.Move(ctx, "nope", "globex")

		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestTreeService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes a folder recursively, records bottom-up", func(t *testing.T) {
		mRepo := new(repoMocks.MockItemRepository)
		mBlobs := new(mirrorMocks.MockMirror)

		mRepo.On("FindByID", ctx, "f1").Return(&model.Item{
			ID: "f1", Name: "A", Type: model.TypeFolder, CompanyID: "acme", Path: "acme/A",
		}, nil)
		mRepo.On("ChildrenOf", ctx, "f1").Return([]model.Item{
			{ID: "f2", Name: "B", Type: model.TypeFolder, Path: "acme/A/B"},
		}, nil)
		mRepo.On("ChildrenOf", ctx, "f2").Return([]model.Item{
			{ID: "f3", Name: "c.txt", Type: model.TypeFile, Path: "acme/A/B/c.txt"},
		}, nil)

		var deleted []string
		record := func(args mock.Arguments) { deleted = append(deleted, args.String(1)) }
		mBlobs.On("DeleteEntry", ctx, "acme/A/B/c.txt").Return(nil)
		mBlobs.On("DeleteEntry", ctx, "acme/A/B").Return(nil)
		mBlobs.On("DeleteEntry", ctx, "acme/A").Return(nil)
		mRepo.On("Delete", ctx, "f3").Run(record).Return(nil)
		mRepo.On("Delete", ctx, "f2").Run(record).Return(nil)
		mRepo.On("Delete", ctx, "f1").Run(record).Return(nil)

		svc := NewTreeService(mRepo, mBlobs, zap.NewNop())
		err := svc.Delete(ctx, "f1")

		assert.NoError(t, err)
		// Children records go before their parent's.
		assert.Equal(t, []string{"f3", "f2", "f1"}, deleted)
		mRepo.AssertExpectations(t)
		mBlobs.AssertExpectations(t)
	})

	t.Run("deletes a file", func(t *testing.T) {
		mRepo := new(repoMocks.MockItemRepository)
		mBlobs := new(mirrorMocks.MockMirror)

		mRepo.On("FindByID", ctx, "f1").Return(&model.Item{
			ID: "f1", Name: "a.txt", Type: model.TypeFile, CompanyID: "acme", Path: "acme/a.txt",
		}, nil)
		mBlobs.On("DeleteEntry", ctx, "acme/a.txt").Return(nil)
		mRepo.On("Delete", ctx, "f1").Return(nil)

		svc := NewTreeService(mRepo, mBlobs, zap.NewNop())
		err := svc.Delete(ctx, "f1")

		assert.NoError(t, err)
		mRepo.AssertNotCalled(t, "ChildrenOf", mock.Anything, mock.Anything)
	})

	t.Run("mirror failure keeps the record", func(t *testing.T) {
		mRepo := new(repoMocks.MockItemRepository)
		mBlobs := new(mirrorMocks.MockMirror)

		mRepo.On("FindByID", ctx, "f1").Return(&model.Item{
			ID: "f1", Name: "a.txt", Type: model.TypeFile, CompanyID: "acme", Path: "acme/a.txt",
		}, nil)
		mBlobs.On("DeleteEntry", ctx, "acme/a.txt").Return(errors.New("io error"))

		svc := NewTreeService(mRepo, mBlobs, zap.NewNop())
		err := svc.Delete(ctx, "f1")

		var subtree *SubtreeError
		assert.ErrorAs(t, err, &subtree)
		assert.Equal(t, "f1", subtree.ItemID)
		mRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})
}
