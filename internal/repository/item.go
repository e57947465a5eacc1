package repository

import (
	"context"
	"time"

	"docvault/internal/model"
)

// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.

// ChildQuery selects direct children of a parent. ParentID nil selects
// tenant-root items. CompanyID and Type are optional filters.
type ChildQuery struct {
	CompanyID string
	ParentID  *string
	Type      model.ItemType
}

// MetadataUpdate carries the mutable access-control fields of an Item.
// Nil pointers (and nil slices) mean "leave unchanged"; SetExpiry with a nil
// ExpiryDate clears the expiry back to lifetime.
type MetadataUpdate struct {
	SetExpiry         bool
	ExpiryDate        *time.Time
	IsRestricted      *bool
	AllowedUsers      []string
	Department        *model.Department
	SharedDepartments []string
}

// ItemRepository defines data access for tree nodes using SQL queries only.
// No business logic here — strictly persistence operations.
type ItemRepository interface {
	// Create inserts a new item record and returns the stored row.
	Create(ctx context.Context, item *model.Item) (*model.Item, error)

	// FindByID returns an item by its ID.
	FindByID(ctx context.Context, id string) (*model.Item, error)

	// FindFolder looks up a folder by exact name under (parentID, companyID).
	// Returns nil without error when no such folder exists.
	FindFolder(ctx context.Context, companyID string, parentID *string, name string) (*model.Item, error)

	// FindChildren returns the direct children matching the query, folders
	// before files, each group sorted by name.
	FindChildren(ctx context.Context, q ChildQuery) ([]model.Item, error)

	// ChildrenOf returns every direct child of the given parent, across the
	// whole record, with no filters. Used by tree traversal.
	ChildrenOf(ctx context.Context, parentID string) ([]model.Item, error)

	// FindDescendants returns every transitive descendant of rootID exactly
	// once. Order is not significant beyond parents preceding their children.
	FindDescendants(ctx context.Context, rootID string) ([]model.Item, error)

	// UpdatePath rewrites an item's name and canonical path.
	UpdatePath(ctx context.Context, id, name, path string) error

	// UpdateTenant rewrites an item's company id, parent reference and
	// canonical path.
	UpdateTenant(ctx context.Context, id, companyID string, parentID *string, path string) error

	// UpdateMetadata applies the given field updates and returns the stored row.
	UpdateMetadata(ctx context.Context, id string, upd MetadataUpdate) (*model.Item, error)

	// Delete removes an item row by ID. Returns nil if the row did not exist.
	Delete(ctx context.Context, id string) error

	// DistinctDepartments lists the department values in use, excluding "none".
	DistinctDepartments(ctx context.Context) ([]string, error)
}
