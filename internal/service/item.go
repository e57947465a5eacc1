package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	gopath "path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"docvault/internal/access"
	"docvault/internal/mirror"
	"docvault/internal/model"
	"docvault/internal/repository"
)

// ItemService implements the item lifecycle: folder creation, uploads,
// listing, visibility-gated reads and access-control metadata updates.
// Structural subtree mutations live in TreeService.
type ItemService struct {
	items     repository.ItemRepository
	blobs     mirror.Mirror
	resolver  *PathResolver
	evaluator *access.Evaluator
	logger    *zap.Logger
}

// NewItemService constructs an ItemService.
func NewItemService(items repository.ItemRepository, blobs mirror.Mirror, resolver *PathResolver, evaluator *access.Evaluator, logger *zap.Logger) *ItemService {
	return &ItemService{
		items:     items,
		blobs:     blobs,
		resolver:  resolver,
		evaluator: evaluator,
		logger:    logger,
	}
}

// ItemMetadata carries the access-control fields shared by folder creation
// and upload.
type ItemMetadata struct {
	ExpiryDate   *time.Time
	IsRestricted bool
	AllowedUsers []string
	Department   model.Department
}

func (m ItemMetadata) validate() error {
	if m.Department != "" && !model.ValidDepartment(m.Department) {
		return fmt.Errorf("%w: unknown department %q", ErrValidation, m.Department)
	}
	return nil
}

func (m ItemMetadata) department() model.Department {
	if m.Department == "" {
		return model.DeptAll
	}
	return m.Department
}

// CreateFolderRequest creates one folder under a parent or at a tenant root.
type CreateFolderRequest struct {
	Name      string
	ParentID  *string
	CompanyID string
	Metadata  ItemMetadata
}

func (r CreateFolderRequest) validate() error {
	if err := validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.By(noSlash)),
	); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if r.ParentID == nil && r.CompanyID == "" {
		return fmt.Errorf("%w: companyId or parentId required", ErrValidation)
	}
	return r.Metadata.validate()
}

func noSlash(value interface{}) error {
	s, _ := value.(string)
	if strings.Contains(s, "/") {
		return errors.New("must not contain '/'")
	}
	return nil
}

// CreateFolder creates a folder item and its mirror directory.
func (s *ItemService) CreateFolder(ctx context.Context, principal model.Principal, req CreateFolderRequest) (*model.Item, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	companyID := req.CompanyID
	base := companyID
	if req.ParentID != nil {
		parent, err := s.items.FindByID(ctx, *req.ParentID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidParent
		}
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, ErrInvalidParent
		}
		companyID = parent.CompanyID
		base = parent.Path
	}

	if existing, err := s.items.FindFolder(ctx, companyID, req.ParentID, req.Name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: folder %q already exists here", ErrValidation, req.Name)
	}

	folderPath := gopath.Join(base, req.Name)
	if err := s.blobs.EnsureDirectory(ctx, folderPath); err != nil {
		return nil, err
	}

	folder, err := s.items.Create(ctx, &model.Item{
		ID:                uuid.NewString(),
		Name:              req.Name,
		Type:              model.TypeFolder,
		CompanyID:         companyID,
		ParentID:          req.ParentID,
		Path:              folderPath,
		ExpiryDate:        req.Metadata.ExpiryDate,
		IsRestricted:      req.Metadata.IsRestricted,
		AllowedUsers:      dedupe(req.Metadata.AllowedUsers),
		Department:        req.Metadata.department(),
		SharedDepartments: []string{},
		CreatedBy:         principal.ID,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder created",
		zap.String("id", folder.ID),
		zap.String("path", folder.Path),
		zap.String("company_id", folder.CompanyID),
	)
	return folder, nil
}

// UploadFile is one file of an upload batch. RelativePath may carry
// intermediate folder segments ("reports/q1/summary.pdf"), resolved through
// the path resolver before the record is created.
type UploadFile struct {
	RelativePath string
	OriginalName string
	MimeType     string
	Size         int64
	Content      io.Reader
}

// UploadRequest uploads a batch of files under a parent or a tenant root.
type UploadRequest struct {
	ParentID  *string
	CompanyID string
	Files     []UploadFile
	Metadata  ItemMetadata
}

// Upload stores every file's bytes in the mirror and creates its item
// record, resolving intermediate folders per file. The batch is not
// transactional: a failure aborts the remainder and reports the failed file,
// leaving earlier files in place.
func (s *ItemService) Upload(ctx context.Context, principal model.Principal, req UploadRequest) ([]model.Item, error) {
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("%w: no files uploaded", ErrValidation)
	}
	if req.ParentID == nil && req.CompanyID == "" {
		return nil, fmt.Errorf("%w: companyId or parentId required", ErrValidation)
	}
	if err := req.Metadata.validate(); err != nil {
		return nil, err
	}

	companyID := req.CompanyID
	baseParent := req.ParentID
	basePath := companyID
	if baseParent != nil {
		parent, err := s.items.FindByID(ctx, *baseParent)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidParent
		}
		if err != nil {
			return nil, err
		}
		if !parent.IsFolder() {
			return nil, ErrInvalidParent
		}
		companyID = parent.CompanyID
		basePath = parent.Path
	} else if err := s.blobs.EnsureDirectory(ctx, basePath); err != nil {
		return nil, err
	}

	created := make([]model.Item, 0, len(req.Files))
	for _, f := range req.Files {
		relPath := f.RelativePath
		if relPath == "" {
			relPath = f.OriginalName
		}
		parts := splitSegments(relPath)
		if len(parts) == 0 {
			return created, fmt.Errorf("%w: empty file path", ErrValidation)
		}
		fileName := parts[len(parts)-1]
		parts = parts[:len(parts)-1]

		parentID := baseParent
		dirPath := basePath
		if len(parts) > 0 {
			resolved, err := s.resolver.Resolve(ctx, companyID, baseParent, parts, principal.ID, req.Metadata.department())
			if err != nil {
				return created, fmt.Errorf("resolve path for %q: %w", relPath, err)
			}
			parentID = resolved.ParentID
			dirPath = resolved.Path
		}

		filePath := gopath.Join(dirPath, fileName)
		if err := s.blobs.Put(ctx, filePath, f.Content, f.Size, f.MimeType); err != nil {
			return created, err
		}

		item, err := s.items.Create(ctx, &model.Item{
			ID:        uuid.NewString(),
			Name:      fileName,
			Type:      model.TypeFile,
			CompanyID: companyID,
			ParentID:  parentID,
			Path:      filePath,
			File: &model.FileMeta{
				MimeType:     f.MimeType,
				ByteSize:     f.Size,
				OriginalName: f.OriginalName,
				RelativePath: relPath,
			},
			ExpiryDate:        req.Metadata.ExpiryDate,
			IsRestricted:      req.Metadata.IsRestricted,
			AllowedUsers:      dedupe(req.Metadata.AllowedUsers),
			Department:        req.Metadata.department(),
			SharedDepartments: []string{},
			CreatedBy:         principal.ID,
			CreatedAt:         time.Now().UTC(),
		})
		if err != nil {
			return created, fmt.Errorf("save file %q: %w", relPath, err)
		}
		created = append(created, *item)
	}

	s.logger.Info("files uploaded",
		zap.Int("count", len(created)),
		zap.String("company_id", companyID),
	)
	return created, nil
}

// Get returns an item after a visibility check; ErrForbidden when the
// principal may not see it.
func (s *ItemService) Get(ctx context.Context, principal model.Principal, id string) (*model.Item, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.evaluator.CanView(ctx, principal, item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrForbidden
	}
	return item, nil
}

// OpenResult is the outcome of an open attempt. A denied open still reports
// that the principal may request access.
type OpenResult struct {
	Allowed    bool        `json:"allowed"`
	CanRequest bool        `json:"can_request,omitempty"`
	Item       *model.Item `json:"item,omitempty"`
}

// Open checks visibility and returns allow plus the item, or deny plus the
// request-access hint.
func (s *ItemService) Open(ctx context.Context, principal model.Principal, id string) (*OpenResult, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.evaluator.CanView(ctx, principal, item)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &OpenResult{Allowed: false, CanRequest: true}, nil
	}
	return &OpenResult{Allowed: true, Item: item}, nil
}

// ListChildren enumerates direct children of a parent (or tenant roots).
// Listing is not visibility-filtered; per-item access is enforced on open.
func (s *ItemService) ListChildren(ctx context.Context, companyID string, parentID *string, typeFilter model.ItemType) ([]model.Item, error) {
	if typeFilter != "" && typeFilter != model.TypeFolder && typeFilter != model.TypeFile {
		return nil, fmt.Errorf("%w: unknown type %q", ErrValidation, typeFilter)
	}
	return s.items.FindChildren(ctx, repository.ChildQuery{
		CompanyID: companyID,
		ParentID:  parentID,
		Type:      typeFilter,
	})
}

// FolderContents is a folder plus its visible descendants.
type FolderContents struct {
	Folder   *model.Item  `json:"folder"`
	Contents []model.Item `json:"contents"`
}

// ListDescendants enumerates every transitive descendant of a folder,
// filtered through the visibility policy for the principal.
func (s *ItemService) ListDescendants(ctx context.Context, principal model.Principal, folderID string) (*FolderContents, error) {
	folder, err := s.find(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if !folder.IsFolder() {
		return nil, ErrNotFound
	}

	descendants, err := s.items.FindDescendants(ctx, folderID)
	if err != nil {
		return nil, err
	}

	visible := make([]model.Item, 0, len(descendants))
	for i := range descendants {
		ok, err := s.evaluator.CanView(ctx, principal, &descendants[i])
		if err != nil {
			return nil, err
		}
		if ok {
			visible = append(visible, descendants[i])
		}
	}
	return &FolderContents{Folder: folder, Contents: visible}, nil
}

// UpdateAccess replaces an item's restriction flag and allow-list. The
// allow-list is stored as a set: duplicates collapse.
func (s *ItemService) UpdateAccess(ctx context.Context, id string, isRestricted bool, allowedUsers []string) (*model.Item, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	users := dedupe(allowedUsers)
	item, err := s.items.UpdateMetadata(ctx, id, repository.MetadataUpdate{
		IsRestricted: &isRestricted,
		AllowedUsers: users,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// UpdateExpiry sets or clears an item's expiry date.
func (s *ItemService) UpdateExpiry(ctx context.Context, id string, expiry *time.Time) (*model.Item, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	item, err := s.items.UpdateMetadata(ctx, id, repository.MetadataUpdate{
		SetExpiry:  true,
		ExpiryDate: expiry,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// ShareDepartments replaces the supplementary department share list,
// lowercased and deduplicated.
func (s *ItemService) ShareDepartments(ctx context.Context, id string, departments []string) (*model.Item, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if len(departments) == 0 {
		return nil, fmt.Errorf("%w: departments array is required", ErrValidation)
	}
	lowered := make([]string, 0, len(departments))
	for _, d := range departments {
		lowered = append(lowered, strings.ToLower(d))
	}
	item, err := s.items.UpdateMetadata(ctx, id, repository.MetadataUpdate{
		SharedDepartments: dedupe(lowered),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// UpdateMetadata applies expiry/restriction/allow-list/department changes in
// one call (the combined item update endpoint).
func (s *ItemService) UpdateMetadata(ctx context.Context, id string, upd repository.MetadataUpdate) (*model.Item, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if upd.Department != nil && !model.ValidDepartment(*upd.Department) {
		return nil, fmt.Errorf("%w: unknown department %q", ErrValidation, *upd.Department)
	}
	if upd.AllowedUsers != nil {
		upd.AllowedUsers = dedupe(upd.AllowedUsers)
	}
	item, err := s.items.UpdateMetadata(ctx, id, upd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

// Departments lists the department values currently in use.
func (s *ItemService) Departments(ctx context.Context) ([]string, error) {
	return s.items.DistinctDepartments(ctx)
}

func (s *ItemService) find(ctx context.Context, id string) (*model.Item, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	item, err := s.items.FindByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

func splitSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// dedupe collapses duplicates while preserving first-seen order; grant
// membership is a set.
func dedupe(vals []string) []string {
	seen := make(map[string]struct{}, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
