package service

import (
	"context"
	"database/sql"
	"errors"
	gopath "path"
	"strings"

	"go.uber.org/zap"

	"docvault/internal/mirror"
	"docvault/internal/model"
	"docvault/internal/repository"
)

// TreeService orchestrates rename, move and delete across a whole subtree,
// keeping item records and the blob mirror in lockstep. Mutations are
// serialized per tenant; the mirror call for a node always commits before
// that node's record write. A descendant cascade is not transactional: a
// failure partway through leaves earlier descendants updated and surfaces a
// SubtreeError naming the node that stopped it.
type TreeService struct {
	items  repository.ItemRepository
	blobs  mirror.Mirror
	locks  *tenantLocks
	logger *zap.Logger
}

// NewTreeService constructs a TreeService.
func NewTreeService(items repository.ItemRepository, blobs mirror.Mirror, logger *zap.Logger) *TreeService {
	return &TreeService{
		items:  items,
		blobs:  blobs,
		locks:  newTenantLocks(),
		logger: logger,
	}
}

// Rename changes an item's leaf name, moves its mirror entry, and rewrites
// every descendant path by prefix substitution, top-down, so each child's
// new path derives from its parent's already-updated path.
func (s *TreeService) Rename(ctx context.Context, id, newName string) (*model.Item, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if strings.TrimSpace(newName) == "" || strings.Contains(newName, "/") {
		return nil, ErrValidation
	}

	item, err := s.items.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if newName == item.Name {
		return item, nil
	}

	release := s.locks.acquire(item.CompanyID)
	defer release()

	oldPath := item.Path
	newPath := gopath.Join(gopath.Dir(oldPath), newName)

	if err := s.blobs.MoveEntry(ctx, oldPath, newPath); err != nil {
		return nil, &SubtreeError{ItemID: item.ID, Path: oldPath, Err: err}
	}
	if err := s.items.UpdatePath(ctx, item.ID, newName, newPath); err != nil {
		return nil, &SubtreeError{ItemID: item.ID, Path: oldPath, Err: err}
	}

	if item.IsFolder() {
		if err := s.rewriteDescendantPaths(ctx, item.ID, oldPath, newPath); err != nil {
			return nil, err
		}
	}

	s.logger.Info("item renamed",
		zap.String("id", item.ID),
		zap.String("old_path", oldPath),
		zap.String("new_path", newPath),
	)

	item.Name = newName
	item.Path = newPath
	return item, nil
}

// rewriteDescendantPaths substitutes the old path prefix with the new one on
// every descendant. Prefix substitution, not re-resolution: the suffix below
// the renamed folder is preserved as-is. An explicit work queue processes
// parents before their children.
func (s *TreeService) rewriteDescendantPaths(ctx context.Context, rootID, oldPrefix, newPrefix string) error {
	queue := []string{rootID}
	for len(queue) > 0 {
		parentID := queue[0]
		queue = queue[1:]

		children, err := s.items.ChildrenOf(ctx, parentID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if !strings.HasPrefix(child.Path, oldPrefix) {
				continue
			}
			newChildPath := newPrefix + strings.TrimPrefix(child.Path, oldPrefix)
			if err := s.items.UpdatePath(ctx, child.ID, child.Name, newChildPath); err != nil {
				return &SubtreeError{ItemID: child.ID, Path: child.Path, Err: err}
			}
			if child.IsFolder() {
				queue = append(queue, child.ID)
			}
		}
	}
	return nil
}

// Move reassigns an item (and its whole subtree) to another tenant. The
// mirror entry moves once, at the top; descendants only get their records
// rewritten, each path derived from the parent's already-updated path. The
// moved root re-roots at the new tenant's partition.
func (s *TreeService) Move(ctx context.Context, id, newCompanyID string) (*model.Item, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if newCompanyID == "" {
		return nil, ErrValidation
	}

	item, err := s.items.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	release := s.locks.acquire(item.CompanyID, newCompanyID)
	defer release()

	oldPath := item.Path
	newPath := gopath.Join(newCompanyID, gopath.Base(oldPath))

	if err := s.blobs.MoveEntry(ctx, oldPath, newPath); err != nil {
		return nil, &SubtreeError{ItemID: item.ID, Path: oldPath, Err: err}
	}
	if err := s.items.UpdateTenant(ctx, item.ID, newCompanyID, nil, newPath); err != nil {
		return nil, &SubtreeError{ItemID: item.ID, Path: oldPath, Err: err}
	}

	if item.IsFolder() {
		if err := s.retargetDescendants(ctx, item.ID, newPath, newCompanyID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("item reassigned",
		zap.String("id", item.ID),
		zap.String("company_id", newCompanyID),
		zap.String("old_path", oldPath),
		zap.String("new_path", newPath),
	)

	item.CompanyID = newCompanyID
	item.ParentID = nil
	item.Path = newPath
	return item, nil
}

// retargetDescendants rewrites tenant and path on every descendant,
// top-down. Every descendant ends up with the moved root's company id.
func (s *TreeService) retargetDescendants(ctx context.Context, rootID, rootNewPath, companyID string) error {
	type entry struct {
		id      string
		newPath string
	}
	queue := []entry{{id: rootID, newPath: rootNewPath}}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		children, err := s.items.ChildrenOf(ctx, parent.id)
		if err != nil {
			return err
		}
		for _, child := range children {
			newChildPath := gopath.Join(parent.newPath, child.Name)
			parentID := parent.id
			if err := s.items.UpdateTenant(ctx, child.ID, companyID, &parentID, newChildPath); err != nil {
				return &SubtreeError{ItemID: child.ID, Path: child.Path, Err: err}
			}
			if child.IsFolder() {
				queue = append(queue, entry{id: child.ID, newPath: newChildPath})
			}
		}
	}
	return nil
}

// Delete removes an item and, for folders, every descendant. Files drop
// their mirror entry individually before their record; folders recurse
// first, then remove their own mirror directory recursively, then their
// record. Item records go strictly bottom-up, so a parent row is never
// deleted while children still reference it.
func (s *TreeService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}

	item, err := s.items.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	release := s.locks.acquire(item.CompanyID)
	defer release()

	if err := s.deleteRecursive(ctx, item); err != nil {
		return err
	}

	s.logger.Info("item deleted",
		zap.String("id", item.ID),
		zap.String("path", item.Path),
		zap.String("type", string(item.Type)),
	)
	return nil
}

func (s *TreeService) deleteRecursive(ctx context.Context, item *model.Item) error {
	if item.IsFolder() {
		children, err := s.items.ChildrenOf(ctx, item.ID)
		if err != nil {
			return err
		}
		for i := range children {
			if err := s.deleteRecursive(ctx, &children[i]); err != nil {
				return err
			}
		}
	}
	if err := s.blobs.DeleteEntry(ctx, item.Path); err != nil {
		return &SubtreeError{ItemID: item.ID, Path: item.Path, Err: err}
	}
	return s.items.Delete(ctx, item.ID)
}
