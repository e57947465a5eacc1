package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	gopath "path"
	"time"

	"github.com/google/uuid"

	"docvault/internal/mirror"
	"docvault/internal/model"
	"docvault/internal/repository"
)

// PathResolver finds or creates the folder chain for a list of path segments
// under a tenant. It is the only component allowed to create folders
// implicitly; every folder it creates gets its mirror directory first.
type PathResolver struct {
	items repository.ItemRepository
	blobs mirror.Mirror
}

// NewPathResolver constructs a PathResolver.
func NewPathResolver(items repository.ItemRepository, blobs mirror.Mirror) *PathResolver {
	return &PathResolver{items: items, blobs: blobs}
}

// ResolvedPath is the landing point of a resolved segment chain.
type ResolvedPath struct {
	ParentID *string // nil = tenant root
	Path     string  // canonical path of the final parent
}

// Resolve walks segments in order under the start parent, creating missing
// folders as it goes. Folder lookup is a case-sensitive exact name match
// scoped to (parentID, companyID). A non-nil startParentID must reference an
// existing folder, otherwise ErrInvalidParent.
func (r *PathResolver) Resolve(ctx context.Context, companyID string, startParentID *string, segments []string, createdBy string, department model.Department) (*ResolvedPath, error) {
	parentID := startParentID
	var base string

	if parentID != nil {
		parent, err := r.items.FindByID(ctx, *parentID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidParent
		}
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, ErrInvalidParent
		}
		base = parent.Path
		companyID = parent.CompanyID
	} else {
		base = companyID
		if err := r.blobs.EnsureDirectory(ctx, base); err != nil {
			return nil, err
		}
	}

	if department == "" {
		department = model.DeptAll
	}

	for _, segment := range segments {
		existing, err := r.items.FindFolder(ctx, companyID, parentID, segment)
		if err != nil {
			return nil, fmt.Errorf("lookup folder %q: %w", segment, err)
		}
		if existing == nil {
			folderPath := gopath.Join(base, segment)
			if err := r.blobs.EnsureDirectory(ctx, folderPath); err != nil {
				return nil, err
			}
			existing, err = r.items.Create(ctx, &model.Item{
				ID:                uuid.NewString(),
				Name:              segment,
				Type:              model.TypeFolder,
				CompanyID:         companyID,
				ParentID:          parentID,
				Path:              folderPath,
				Department:        department,
				AllowedUsers:      []string{},
				SharedDepartments: []string{},
				CreatedBy:         createdBy,
				CreatedAt:         time.Now().UTC(),
			})
			if err != nil {
				return nil, fmt.Errorf("create folder %q: %w", segment, err)
			}
		}
		base = existing.Path
		id := existing.ID
		parentID = &id
	}

	return &ResolvedPath{ParentID: parentID, Path: base}, nil
}
